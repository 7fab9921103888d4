// Package tui is the interactive chat screen.
package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/comigor/medchat-go/internal/chat"
	"github.com/comigor/medchat-go/internal/logger"
	"github.com/comigor/medchat-go/internal/orchestrator"
	"github.com/comigor/medchat-go/internal/voice"
)

const (
	sidebarWidth = 28
	inputHeight  = 3
	statusHeight = 1
)

// Notifier turns conversation events into a wake-up signal for the program.
// Notify never blocks, so it is safe to call while other locks are held;
// bursts of events collapse into one redraw.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier creates a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify is a chat.Conversation observer.
func (n *Notifier) Notify(chat.Event) {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

type changedMsg struct{}

type sendDoneMsg struct{ err error }

type switchDoneMsg struct{ err error }

type voiceMsg struct {
	gen        uint64 // recognition session the event belongs to
	kind       string // start, result, error, end
	transcript string
	err        error
}

// Options configure the chat screen.
type Options struct {
	// Theme is "light" or "dark".
	Theme string
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx      context.Context
	orch     *orchestrator.Orchestrator
	conv     *chat.Conversation
	notifier *Notifier
	voice    voice.Bridge
	draft    *voice.Draft
	voiceCh  chan voiceMsg

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	rendered map[string]rendered
	theme    string

	view      chat.View
	sending   bool
	recording bool
	voiceGen  uint64
	voiceErr  string
	width     int
	height    int
	quitting  bool
}

// New creates the chat screen. notifier must be the observer registered on
// the orchestrator's conversation.
func New(ctx context.Context, orch *orchestrator.Orchestrator, notifier *Notifier, bridge voice.Bridge, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Describe your symptoms... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = promptStyle

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	vp := viewport.New(80, 20)
	vp.SetContent("")

	if bridge == nil {
		bridge = voice.Noop{}
	}

	m := Model{
		ctx:      ctx,
		orch:     orch,
		conv:     orch.Conversation(),
		notifier: notifier,
		voice:    bridge,
		draft:    &voice.Draft{},
		voiceCh:  make(chan voiceMsg, 16),
		input:    ti,
		viewport: vp,
		spinner:  sp,
		rendered: map[string]rendered{},
		theme:    opts.Theme,
		width:    100,
		height:   30,
	}
	m.renderer = newRenderer(m.theme, m.chatWidth())
	m.view = m.conv.Snapshot()
	return m
}

func newRenderer(theme string, width int) *glamour.TermRenderer {
	style := glamour.WithAutoStyle()
	switch theme {
	case "light", "dark":
		style = glamour.WithStylePath(theme)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		logger.L.Warn("markdown renderer unavailable", "error", err)
		return nil
	}
	return r
}

// Init starts listening for conversation and voice events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForChange(), m.waitForVoice())
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.notifier.ch
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case <-ch:
			return changedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitForVoice() tea.Cmd {
	ch := m.voiceCh
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case v := <-ch:
			return v
		case <-ctx.Done():
			return nil
		}
	}
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = m.chatWidth()
		m.viewport.Height = m.chatHeight()
		m.input.Width = m.chatWidth() - 2
		m.renderer = newRenderer(m.theme, m.chatWidth())
		m.rendered = map[string]rendered{}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case changedMsg:
		m.refresh()
		return m, m.waitForChange()

	case sendDoneMsg:
		m.sending = false
		if msg.err != nil && !errors.Is(msg.err, orchestrator.ErrBusy) && !errors.Is(msg.err, orchestrator.ErrEmptyMessage) {
			logger.L.Debug("turn ended with error", "error", msg.err)
		}
		m.refresh()
		return m, nil

	case switchDoneMsg:
		m.refresh()
		return m, nil

	case voiceMsg:
		m.handleVoice(msg)
		return m, m.waitForVoice()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		if m.recording {
			_ = m.voice.StopRecognition()
		}
		return m, tea.Quit

	case "enter":
		if m.sending || m.orch.Busy() {
			return m, nil
		}
		text := m.input.Value()
		if text == "" {
			return m, nil
		}
		if m.recording {
			_ = m.voice.StopRecognition()
			m.recording = false
			m.voiceGen++
			m.draft.EndRecognition()
		}
		m.input.Reset()
		m.draft.Reset()
		m.sending = true
		return m, m.send(text)

	case "esc":
		m.conv.DismissError()
		m.voiceErr = ""
		m.refresh()
		return m, nil

	case "ctrl+n":
		m.orch.NewChat()
		m.refresh()
		return m, nil

	case "ctrl+up", "ctrl+k":
		return m, m.switchBy(-1)

	case "ctrl+down", "ctrl+j":
		return m, m.switchBy(1)

	case "ctrl+o":
		m.orch.SetVoiceOutput(!m.orch.VoiceOutput())
		return m, nil

	case "ctrl+r":
		m.toggleRecording()
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if !m.recording {
		m.draft.Set(m.input.Value())
	}
	return m, cmd
}

func (m Model) send(text string) tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return func() tea.Msg {
		return sendDoneMsg{err: orch.Send(ctx, text)}
	}
}

// switchBy moves the current session delta steps through the list. From an
// unsaved chat, moving down selects the first session.
func (m Model) switchBy(delta int) tea.Cmd {
	sessions := m.view.Sessions
	if len(sessions) == 0 {
		return nil
	}
	idx := -1
	for i, s := range sessions {
		if s.ID == m.view.CurrentID {
			idx = i
			break
		}
	}
	next := idx + delta
	if idx < 0 {
		if delta < 0 {
			return nil
		}
		next = 0
	}
	if next < 0 || next >= len(sessions) || next == idx {
		return nil
	}

	ctx, orch, id := m.ctx, m.orch, sessions[next].ID
	return func() tea.Msg {
		return switchDoneMsg{err: orch.SwitchSession(ctx, id)}
	}
}

func (m *Model) toggleRecording() {
	if m.recording {
		if err := m.voice.StopRecognition(); err != nil {
			logger.L.Warn("stop recognition failed", "error", err)
		}
		return
	}
	if !m.voice.Available() {
		m.voiceErr = voice.UserMessage(voice.ErrUnavailable)
		return
	}

	m.voiceErr = ""
	m.draft.Set(m.input.Value())
	m.draft.BeginRecognition()
	m.recording = true
	m.voiceGen++

	ch, ctx, gen := m.voiceCh, m.ctx, m.voiceGen
	post := func(v voiceMsg) {
		v.gen = gen
		select {
		case ch <- v:
		case <-ctx.Done():
		}
	}
	err := m.voice.StartRecognition(ctx, voice.Handler{
		OnStart:  func() { post(voiceMsg{kind: "start"}) },
		OnResult: func(t string) { post(voiceMsg{kind: "result", transcript: t}) },
		OnError:  func(err error) { post(voiceMsg{kind: "error", err: err}) },
		OnEnd:    func() { post(voiceMsg{kind: "end"}) },
	})
	if err != nil {
		m.recording = false
		m.draft.EndRecognition()
		m.voiceErr = voice.UserMessage(err)
	}
}

// handleVoice applies a recognition event. Events from a session that was
// already replaced or abandoned are dropped.
func (m *Model) handleVoice(v voiceMsg) {
	if v.gen != m.voiceGen {
		return
	}
	switch v.kind {
	case "result":
		m.input.SetValue(m.draft.ApplyTranscript(v.transcript))
		m.input.CursorEnd()
	case "error":
		if text := voice.UserMessage(v.err); text != "" {
			m.voiceErr = text
		}
	case "end":
		m.recording = false
		m.draft.EndRecognition()
	}
}

// refresh copies the conversation into the model and redraws the transcript.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.view = m.conv.Snapshot()
	m.viewport.SetContent(m.renderMessages())
	if atBottom || m.orch.Busy() {
		m.viewport.GotoBottom()
	}
}

func (m Model) chatWidth() int {
	w := m.width - sidebarWidth - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) chatHeight() int {
	h := m.height - inputHeight - statusHeight - 2
	if h < 3 {
		h = 3
	}
	return h
}
