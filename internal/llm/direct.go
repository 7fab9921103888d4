package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/medchat-go/internal/backend"
	"github.com/comigor/medchat-go/internal/chat"
	"github.com/comigor/medchat-go/internal/config"
	"github.com/comigor/medchat-go/internal/history"
	"github.com/comigor/medchat-go/internal/logger"
	"github.com/comigor/medchat-go/internal/session"
)

const defaultSystemPrompt = `You are a professional medical assistant.
Only answer medical and health related questions and politely refuse anything else.
Never invent symptoms the user did not mention.
Keep answers structured and concise.
End every answer with: "This is for informational purposes only."`

// fallbackReply is stored when the model returns no text.
const fallbackReply = "I'm sorry, something went wrong. Please try again."

const maxRenameLength = 120

// Direct answers chat turns with an OpenAI-compatible model and keeps
// sessions in a local history store. It offers the same operations as the
// HTTP backend and reports failures as *backend.APIError.
type Direct struct {
	llm   Client
	store *history.Store
	cfg   config.LLMConfig

	now   func() time.Time
	newID func() string
}

// NewDirect creates a Direct backend.
func NewDirect(client Client, store *history.Store, cfg config.LLMConfig) *Direct {
	return &Direct{
		llm:   client,
		store: store,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func validation(msg string) error {
	return &backend.APIError{Status: http.StatusBadRequest, Message: msg, Code: "VALIDATION_ERROR"}
}

func notFound() error {
	return &backend.APIError{Status: http.StatusNotFound, Message: "Session not found.", Code: "NOT_FOUND"}
}

// serverError reports err as a 500, unless ctx ended, which is returned as is.
func serverError(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.L.Error(msg, "error", err)
	return &backend.APIError{Status: http.StatusInternalServerError, Message: msg, Code: "SERVER_ERROR"}
}

// Chat asks the model and stores the user message together with its reply.
func (d *Direct) Chat(ctx context.Context, req backend.ChatRequest) (backend.ChatReply, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return backend.ChatReply{}, validation("Message is required.")
	}

	sess := session.Session{ID: req.SessionID}
	if req.SessionID != "" {
		found, err := d.store.Session(ctx, req.SessionID)
		if errors.Is(err, history.ErrNotFound) {
			return backend.ChatReply{}, notFound()
		}
		if err != nil {
			return backend.ChatReply{}, serverError(ctx, "Could not process chat request.", err)
		}
		sess = found
	} else {
		sess.ID = d.newID()
		sess.CreatedAt = d.now()
	}
	if strings.TrimSpace(sess.Title) == "" {
		sess.Title = session.DeriveTitle(text)
	}

	var prior []chat.Message
	if req.SessionID != "" {
		var err error
		if prior, err = d.store.List(ctx, sess.ID, d.cfg.HistoryLimit); err != nil {
			return backend.ChatReply{}, serverError(ctx, "Could not process chat request.", err)
		}
	}
	user := chat.Message{ID: d.newID(), Text: text, Sender: chat.SenderUser, Timestamp: d.now()}

	// Nothing is stored until the model answered, so a failed turn leaves
	// neither an empty session nor an unanswered user message behind.
	resp, err := d.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    d.cfg.Model,
		Messages: d.prompt(prior, text),
	})
	if err != nil {
		return backend.ChatReply{}, serverError(ctx, "Could not process chat request.", err)
	}
	logger.L.Debug("LLM response received", "session", sess.ID, "choices", len(resp.Choices))

	reply := ""
	if len(resp.Choices) > 0 {
		reply = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if reply == "" {
		reply = fallbackReply
	}
	bot := chat.Message{ID: d.newID(), Text: reply, Sender: chat.SenderBot, Timestamp: d.now()}

	if err := d.store.UpsertSession(ctx, sess); err != nil {
		return backend.ChatReply{}, serverError(ctx, "Could not process chat request.", err)
	}
	if err := d.store.Append(ctx, sess.ID, user); err != nil {
		return backend.ChatReply{}, serverError(ctx, "Could not process chat request.", err)
	}
	if err := d.store.Append(ctx, sess.ID, bot); err != nil {
		logger.L.Warn("failed to store assistant reply", "session", sess.ID, "error", err)
	}

	return backend.ChatReply{SessionID: sess.ID, SessionTitle: sess.Title, Reply: reply}, nil
}

func (d *Direct) prompt(prior []chat.Message, text string) []openai.ChatCompletionMessage {
	system := defaultSystemPrompt
	if d.cfg.SystemPrompt != "" {
		system = d.cfg.SystemPrompt
	}

	out := make([]openai.ChatCompletionMessage, 0, len(prior)+2)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, m := range prior {
		role := openai.ChatMessageRoleUser
		if m.Sender == chat.SenderBot {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
}

// History returns the stored messages of a session.
func (d *Direct) History(ctx context.Context, sessionID string) ([]chat.HistoryEntry, error) {
	if _, err := d.store.Session(ctx, sessionID); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return nil, notFound()
		}
		return nil, serverError(ctx, "Could not load chat history.", err)
	}
	msgs, err := d.store.List(ctx, sessionID, 0)
	if err != nil {
		return nil, serverError(ctx, "Could not load chat history.", err)
	}

	out := make([]chat.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text
		out = append(out, chat.HistoryEntry{
			ID:        m.ID,
			Text:      &text,
			Sender:    string(m.Sender),
			Timestamp: m.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return out, nil
}

// ListSessions returns the stored sessions, newest first.
func (d *Direct) ListSessions(ctx context.Context) ([]session.Session, error) {
	list, err := d.store.Sessions(ctx)
	if err != nil {
		return nil, serverError(ctx, "Could not load sessions.", err)
	}
	return list, nil
}

// RenameSession validates and stores a new title.
func (d *Direct) RenameSession(ctx context.Context, sessionID, title string) (session.Session, error) {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return session.Session{}, validation("Title is required.")
	}
	if len([]rune(title)) > maxRenameLength {
		return session.Session{}, validation("Title must be 120 characters or fewer.")
	}

	err := d.store.RenameSession(ctx, sessionID, title)
	if errors.Is(err, history.ErrNotFound) {
		return session.Session{}, notFound()
	}
	if err != nil {
		return session.Session{}, serverError(ctx, "Could not update session title.", err)
	}
	return session.Session{ID: sessionID, Title: title}, nil
}

// DeleteSession removes a session and its messages.
func (d *Direct) DeleteSession(ctx context.Context, sessionID string) error {
	err := d.store.DeleteSession(ctx, sessionID)
	if errors.Is(err, history.ErrNotFound) {
		return notFound()
	}
	if err != nil {
		return serverError(ctx, "Could not delete chat history.", err)
	}
	return nil
}
