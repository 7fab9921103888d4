package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/medchat-go/internal/session"
)

func strp(s string) *string { return &s }

func TestNormalizeHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []HistoryEntry{
		{ID: "11", Text: strp("hi"), Sender: "user", Timestamp: "2026-02-28T10:00:00Z"},
		{ID: "12", Message: strp("hello, how can I help?"), Sender: "bot", CreatedAt: "2026-02-28T10:00:01.5Z"},
		{Text: strp(""), Message: strp("ignored"), Sender: "user", Timestamp: "2026-02-28T10:00:02Z"},
		{Sender: "bot"},
	}

	got := NormalizeHistory(entries, now)
	require.Len(t, got, 4)

	require.Equal(t, "11", got[0].ID)
	require.Equal(t, "hi", got[0].Text)
	require.Equal(t, SenderUser, got[0].Sender)
	require.Equal(t, time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), got[0].Timestamp)

	require.Equal(t, "hello, how can I help?", got[1].Text, "text falls back to message")
	require.Equal(t, time.Date(2026, 2, 28, 10, 0, 1, 500_000_000, time.UTC), got[1].Timestamp, "timestamp falls back to created_at")

	require.Equal(t, "", got[2].Text, "explicit empty text does not fall back")
	require.Equal(t, "2026-02-28T10:00:02Z-2", got[2].ID)

	require.Equal(t, now, got[3].Timestamp, "missing timestamps fall back to now")
	require.Equal(t, now.Format(time.RFC3339Nano)+"-3", got[3].ID)
	require.Equal(t, "", got[3].Text)
}

func TestNewMessagesHaveDistinctIDs(t *testing.T) {
	a := NewUserMessage("a")
	b := NewBotMessage("")
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, SenderUser, a.Sender)
	require.Equal(t, SenderBot, b.Sender)
	require.False(t, a.Timestamp.IsZero())
}

func TestConversation_EpochGuardsLateWrites(t *testing.T) {
	var events []Event
	c := NewConversation(WithObserver(func(e Event) { events = append(events, e) }))

	epoch := c.Epoch()
	require.True(t, c.Append(epoch, NewUserMessage("first")))

	next := c.Switch("42")
	require.Greater(t, next, epoch)
	require.Empty(t, c.Messages(), "switch clears the transcript")

	require.False(t, c.Append(epoch, NewBotMessage("late reply")))
	require.False(t, c.ReplaceMessages(epoch, []Message{NewBotMessage("stale history")}))
	require.Empty(t, c.Messages())

	require.True(t, c.ReplaceMessages(next, []Message{NewBotMessage("history")}))
	require.Len(t, c.Messages(), 1)
	require.NotEmpty(t, events)
	require.Equal(t, EventMessages, events[len(events)-1].Kind)
}

func TestConversation_Adopt(t *testing.T) {
	c := NewConversation()
	epoch := c.Epoch()

	require.True(t, c.Adopt(epoch, "42"))
	_, id := c.Current()
	require.Equal(t, "42", id)

	require.False(t, c.Adopt(epoch, "43"), "already has an id")

	c.Switch("")
	require.False(t, c.Adopt(epoch, "44"), "stale epoch")
}

func TestConversation_SetText(t *testing.T) {
	c := NewConversation()
	msg := NewBotMessage("")
	c.Append(c.Epoch(), msg)

	require.True(t, c.SetText(msg.ID, "He"))
	require.Equal(t, "He", c.Messages()[0].Text)
	require.False(t, c.SetText("missing", "x"))
}

func TestConversation_SessionsAndErrors(t *testing.T) {
	c := NewConversation()
	c.UpdateSessions(func(list []session.Session) []session.Session {
		return session.Upsert(list, session.Session{ID: "1", Title: "Cough"})
	})
	require.Equal(t, []session.Session{{ID: "1", Title: "Cough"}}, c.Sessions())

	c.SetError("Session not found.")
	require.Equal(t, "Session not found.", c.Snapshot().Error)
	c.DismissError()
	require.Empty(t, c.Error())
}
