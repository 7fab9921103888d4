package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/comigor/medchat-go/internal/chat"
	"github.com/comigor/medchat-go/internal/session"
)

// ChatRequest is one user turn. An empty SessionID starts a new session.
type ChatRequest struct {
	Message   string
	SessionID string
}

// ChatReply is the backend's answer to one turn.
type ChatReply struct {
	SessionID    string
	SessionTitle string
	Reply        string
}

type chatBody struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

type chatData struct {
	SessionID    ID     `json:"session_id"`
	SessionTitle string `json:"session_title"`
	Reply        string `json:"reply"`
}

// Chat sends one user message and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	body := chatBody{Message: req.Message}
	if req.SessionID != "" {
		body.SessionID = &req.SessionID
	}

	var data chatData
	if err := c.do(ctx, http.MethodPost, "chat/", body, &data); err != nil {
		return ChatReply{}, err
	}
	return ChatReply{
		SessionID:    data.SessionID.String(),
		SessionTitle: data.SessionTitle,
		Reply:        data.Reply,
	}, nil
}

type historyMessage struct {
	ID        ID      `json:"id"`
	Text      *string `json:"text"`
	Message   *string `json:"message"`
	Sender    string  `json:"sender"`
	Timestamp string  `json:"timestamp"`
	CreatedAt string  `json:"created_at"`
}

type historyData struct {
	SessionID ID               `json:"session_id"`
	Messages  []historyMessage `json:"messages"`
}

// History returns the raw messages of a session, oldest first.
func (c *Client) History(ctx context.Context, sessionID string) ([]chat.HistoryEntry, error) {
	var data historyData
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("history/%s/", url.PathEscape(sessionID)), nil, &data); err != nil {
		return nil, err
	}
	out := make([]chat.HistoryEntry, 0, len(data.Messages))
	for _, m := range data.Messages {
		out = append(out, chat.HistoryEntry{
			ID:        m.ID.String(),
			Text:      m.Text,
			Message:   m.Message,
			Sender:    m.Sender,
			Timestamp: m.Timestamp,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

type sessionData struct {
	ID        ID        `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ListSessions returns the user's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]session.Session, error) {
	var data struct {
		Sessions []sessionData `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "sessions/", nil, &data); err != nil {
		return nil, err
	}
	out := make([]session.Session, 0, len(data.Sessions))
	for _, s := range data.Sessions {
		out = append(out, session.Session{ID: s.ID.String(), Title: s.Title, CreatedAt: s.CreatedAt})
	}
	return out, nil
}

// RenameSession sets a session title and returns the title the server stored.
func (c *Client) RenameSession(ctx context.Context, sessionID, title string) (session.Session, error) {
	var data sessionData
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("sessions/%s/title/", url.PathEscape(sessionID)), body, &data); err != nil {
		return session.Session{}, err
	}
	if data.ID == "" {
		data.ID = ID(sessionID)
	}
	if data.Title == "" {
		data.Title = title
	}
	return session.Session{ID: data.ID.String(), Title: data.Title}, nil
}

// DeleteSession removes a session and its history.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("sessions/%s/", url.PathEscape(sessionID)), nil, nil)
}
