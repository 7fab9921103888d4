// Package orchestrator sequences chat turns for one chat surface: it appends
// the user message, calls the backend, reconciles the session list and
// reveals the reply, and converts every failure into visible state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/medchat-go/internal/backend"
	"github.com/comigor/medchat-go/internal/chat"
	"github.com/comigor/medchat-go/internal/config"
	"github.com/comigor/medchat-go/internal/logger"
	"github.com/comigor/medchat-go/internal/reveal"
	"github.com/comigor/medchat-go/internal/session"
	"github.com/comigor/medchat-go/internal/voice"
)

const (
	fallbackFormat    = "I'm having trouble connecting to the server, but I received: %s"
	sendFailedMessage = "Failed to send message. Please try again."
	defaultEmptyReply = "Response received."
)

// Backend is the chat service. backend.Client and llm.Direct implement it.
type Backend interface {
	Chat(ctx context.Context, req backend.ChatRequest) (backend.ChatReply, error)
	History(ctx context.Context, sessionID string) ([]chat.HistoryEntry, error)
	ListSessions(ctx context.Context) ([]session.Session, error)
	RenameSession(ctx context.Context, sessionID, title string) (session.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Cache keeps loaded transcripts so they can be shown when the backend is
// down. history.Store implements it.
type Cache interface {
	Replace(ctx context.Context, sessionID string, msgs []chat.Message) error
	List(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
}

// Orchestrator drives one chat surface.
type Orchestrator struct {
	backend Backend
	conv    *chat.Conversation
	engine  *reveal.Engine
	cfg     config.ChatConfig

	cache      Cache
	voice      voice.Bridge
	onReveal   func(reveal.Update)
	revealOpts []reveal.Option
	afterFunc  func(time.Duration, func())
	now        func() time.Time

	speak atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	turn *stateless.StateMachine
	seq  uint64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache stores loaded transcripts in c and falls back to them when a
// history fetch hits a server fault.
func WithCache(c Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithVoice sets the bridge used to speak completed replies.
func WithVoice(b voice.Bridge) Option {
	return func(o *Orchestrator) { o.voice = b }
}

// WithRevealObserver receives every reveal update after it was applied to
// the conversation.
func WithRevealObserver(fn func(reveal.Update)) Option {
	return func(o *Orchestrator) { o.onReveal = fn }
}

// WithRevealOptions passes options to the reveal engine.
func WithRevealOptions(opts ...reveal.Option) Option {
	return func(o *Orchestrator) { o.revealOpts = append(o.revealOpts, opts...) }
}

// WithAfterFunc replaces time.AfterFunc for the delayed fallback message.
func WithAfterFunc(fn func(time.Duration, func())) Option {
	return func(o *Orchestrator) { o.afterFunc = fn }
}

// New creates an orchestrator writing into conv.
func New(b Backend, conv *chat.Conversation, appCfg config.Config, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		backend: b,
		conv:    conv,
		cfg:     appCfg.Chat,
		voice:   voice.Noop{},
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		turn:   newTurnMachine(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if strings.TrimSpace(o.cfg.EmptyReply) == "" {
		o.cfg.EmptyReply = defaultEmptyReply
	}
	o.speak.Store(appCfg.Voice.OutputEnabled)

	engineOpts := append(append([]reveal.Option{}, o.revealOpts...), reveal.WithUpdateHandler(o.applyReveal))
	o.engine = reveal.New(appCfg.Reveal.ChunkSize, appCfg.Reveal.Interval, engineOpts...)
	return o
}

// Conversation returns the state this orchestrator writes into.
func (o *Orchestrator) Conversation() *chat.Conversation { return o.conv }

// Busy reports whether a chat call is in flight or a reply is being revealed.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked() != StateIdle
}

func (o *Orchestrator) stateLocked() any {
	return o.turn.MustState()
}

// fireLocked fires t on the turn machine. o.mu must be held.
func (o *Orchestrator) fireLocked(t FSMTrigger) error {
	if err := o.turn.Fire(t); err != nil {
		logger.L.Debug("turn transition rejected", "trigger", t, "state", o.turn.MustState(), "error", err)
		return err
	}
	return nil
}

func (o *Orchestrator) fire(t FSMTrigger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.fireLocked(t)
}

// SetVoiceOutput turns speaking of completed replies on or off.
func (o *Orchestrator) SetVoiceOutput(on bool) { o.speak.Store(on) }

// VoiceOutput reports whether completed replies are spoken.
func (o *Orchestrator) VoiceOutput() bool { return o.speak.Load() }

// Send runs one user turn and blocks until the backend answered. The reply
// is then revealed in the background. Whitespace-only text returns
// ErrEmptyMessage and a submission while busy returns ErrBusy; in both cases
// nothing is appended. Backend failures are returned as *Fault after being
// shown in the conversation.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	if err := o.fireLocked(TriggerSubmit); err != nil {
		o.mu.Unlock()
		return ErrBusy
	}
	o.seq++
	seq := o.seq
	o.mu.Unlock()

	epoch, sessionID := o.conv.Current()
	o.conv.Append(epoch, chat.NewUserMessage(text))
	o.conv.DismissError()

	reply, err := o.backend.Chat(ctx, backend.ChatRequest{Message: text, SessionID: sessionID})
	if err != nil {
		o.fire(TriggerFailed)
		return o.failTurn(epoch, text, err)
	}

	o.reconcile(epoch, sessionID, text, reply)

	target := reply.Reply
	if strings.TrimSpace(target) == "" {
		target = o.cfg.EmptyReply
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	bot := chat.NewBotMessage("")
	if !o.conv.Append(epoch, bot) {
		logger.L.Info("reply discarded after navigation", "session", reply.SessionID)
		_ = o.fireLocked(TriggerDiscarded)
		return nil
	}
	_ = o.fireLocked(TriggerReplied)
	o.engine.Start(target, bot.ID, func(full string) { o.finish(seq, full) })
	return nil
}

// reconcile merges the session confirmed by reply into the session list and
// adopts a freshly minted id for the current conversation.
func (o *Orchestrator) reconcile(epoch uint64, sentID, text string, reply backend.ChatReply) {
	id := reply.SessionID
	if id == "" {
		id = sentID
	}
	if id == "" {
		return
	}

	o.conv.UpdateSessions(func(list []session.Session) []session.Session {
		title := reply.SessionTitle
		if title == "" {
			if i := session.Index(list, id); i >= 0 {
				title = list[i].Title
			} else {
				title = session.DeriveTitle(text)
			}
		}
		return session.Upsert(list, session.Session{ID: id, Title: title, CreatedAt: o.now()})
	})
	if sentID == "" {
		o.conv.Adopt(epoch, id)
	}
}

func (o *Orchestrator) applyReveal(u reveal.Update) {
	o.conv.SetText(u.MessageID, u.Text)
	if o.onReveal != nil {
		o.onReveal(u)
	}
}

func (o *Orchestrator) finish(seq uint64, full string) {
	o.mu.Lock()
	if seq != o.seq || o.stateLocked() != StateRevealing {
		o.mu.Unlock()
		return
	}
	_ = o.fireLocked(TriggerFinished)
	o.mu.Unlock()

	if o.speak.Load() {
		if err := o.voice.Speak(o.ctx, full); err != nil {
			logger.L.Warn("voice output failed", "error", err)
		}
	}
}

// failTurn shows a chat failure and, for server faults, schedules the
// synthetic reply echoing text.
func (o *Orchestrator) failTurn(epoch uint64, text string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	server := backend.IsServerFault(err)
	logger.L.Warn("chat request failed", "server_fault", server, "error", err)
	if o.conv.Epoch() == epoch {
		o.conv.SetError(backend.Message(err, sendFailedMessage))
	}

	if server {
		o.afterFunc(o.cfg.FallbackDelay, func() {
			if o.ctx.Err() != nil {
				return
			}
			o.conv.Append(epoch, chat.NewBotMessage(fmt.Sprintf(fallbackFormat, text)))
		})
	}
	return &Fault{Op: "chat", Server: server, Err: err}
}

// Close cancels the active reveal and pending fallback messages, and waits
// for the reveal goroutine.
func (o *Orchestrator) Close() {
	o.cancel()
	o.engine.Close()
}
