package chat

import (
	"sync"

	"github.com/comigor/medchat-go/internal/session"
)

// EventKind names the part of a Conversation that changed.
type EventKind int

const (
	EventMessages EventKind = iota
	EventSessions
	EventCurrent
	EventError
)

// Event is delivered to the observer after every mutation.
type Event struct {
	Kind EventKind
	// Epoch is the view epoch after the mutation.
	Epoch uint64
}

// View is an immutable copy of a Conversation.
type View struct {
	Epoch     uint64
	CurrentID string
	Messages  []Message
	Sessions  []session.Session
	Error     string
}

// Conversation owns the state of one chat surface: the visible messages, the
// session list, the current session pointer and the error banner.
//
// Every switch of the current session bumps the epoch. Writers that started
// work under an older epoch (a chat call, a history fetch) pass it back so
// that late results never land in a different session's transcript.
type Conversation struct {
	mu        sync.Mutex
	epoch     uint64
	currentID string
	messages  []Message
	sessions  []session.Session
	errText   string

	observer func(Event)
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithObserver registers fn to be called, outside the lock, after every change.
func WithObserver(fn func(Event)) Option {
	return func(c *Conversation) { c.observer = fn }
}

// NewConversation returns an empty conversation with no current session.
func NewConversation(opts ...Option) *Conversation {
	c := &Conversation{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conversation) notify(kind EventKind, epoch uint64) {
	if c.observer != nil {
		c.observer(Event{Kind: kind, Epoch: epoch})
	}
}

// Snapshot returns a copy of the whole state.
func (c *Conversation) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	sess := make([]session.Session, len(c.sessions))
	copy(sess, c.sessions)
	return View{Epoch: c.epoch, CurrentID: c.currentID, Messages: msgs, Sessions: sess, Error: c.errText}
}

// Epoch returns the current view epoch.
func (c *Conversation) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Current returns the view epoch and the current session id together.
func (c *Conversation) Current() (uint64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch, c.currentID
}

// Switch makes id the current session ("" for a new, unsaved conversation),
// clears the transcript and the error banner, and returns the new epoch.
func (c *Conversation) Switch(id string) uint64 {
	c.mu.Lock()
	c.epoch++
	c.currentID = id
	c.messages = nil
	c.errText = ""
	epoch := c.epoch
	c.mu.Unlock()

	c.notify(EventCurrent, epoch)
	return epoch
}

// Adopt sets the id of a conversation that was unsaved when epoch began. It
// reports false when the user navigated away or the session already had an id.
func (c *Conversation) Adopt(epoch uint64, id string) bool {
	c.mu.Lock()
	if c.epoch != epoch || c.currentID != "" {
		c.mu.Unlock()
		return false
	}
	c.currentID = id
	c.mu.Unlock()

	c.notify(EventCurrent, epoch)
	return true
}

// Append adds msg to the transcript if epoch is still current.
func (c *Conversation) Append(epoch uint64, msg Message) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	c.notify(EventMessages, epoch)
	return true
}

// SetText replaces the text of the message with the given id. Messages that
// are no longer visible are ignored.
func (c *Conversation) SetText(id, text string) bool {
	c.mu.Lock()
	found := false
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Text = text
			found = true
			break
		}
	}
	epoch := c.epoch
	c.mu.Unlock()

	if found {
		c.notify(EventMessages, epoch)
	}
	return found
}

// ReplaceMessages installs a loaded transcript if epoch is still current.
func (c *Conversation) ReplaceMessages(epoch uint64, msgs []Message) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	c.messages = append([]Message(nil), msgs...)
	c.mu.Unlock()

	c.notify(EventMessages, epoch)
	return true
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Sessions returns a copy of the session list.
func (c *Conversation) Sessions() []session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]session.Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// UpdateSessions applies fn to the session list atomically.
func (c *Conversation) UpdateSessions(fn func([]session.Session) []session.Session) {
	c.mu.Lock()
	c.sessions = fn(c.sessions)
	epoch := c.epoch
	c.mu.Unlock()

	c.notify(EventSessions, epoch)
}

// SetError shows text in the error banner.
func (c *Conversation) SetError(text string) {
	c.mu.Lock()
	c.errText = text
	epoch := c.epoch
	c.mu.Unlock()

	c.notify(EventError, epoch)
}

// DismissError clears the error banner.
func (c *Conversation) DismissError() {
	c.SetError("")
}

// Error returns the banner text, empty when there is none.
func (c *Conversation) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}
