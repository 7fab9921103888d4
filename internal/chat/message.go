// Package chat holds the client-side conversation model: messages and the
// state owner of one chat surface.
package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one entry of the visible transcript. Bot message text grows
// while it is being revealed; the ID stays the same.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a locally authored message with a fresh id.
func NewUserMessage(text string) Message {
	return Message{ID: uuid.NewString(), Text: text, Sender: SenderUser, Timestamp: time.Now().UTC()}
}

// NewBotMessage creates an assistant message with a fresh id.
func NewBotMessage(text string) Message {
	return Message{ID: uuid.NewString(), Text: text, Sender: SenderBot, Timestamp: time.Now().UTC()}
}

// HistoryEntry is a message as returned by the history endpoint, before
// normalization. Text and Message are pointers because the backend has used
// both names and an explicit empty text must not fall back.
type HistoryEntry struct {
	ID        string
	Text      *string
	Message   *string
	Sender    string
	Timestamp string
	CreatedAt string
}

// NormalizeHistory converts raw history entries into messages. Text falls
// back to Message, the timestamp falls back to CreatedAt and then to now, and
// entries without an id get "{timestamp}-{index}".
func NormalizeHistory(entries []HistoryEntry, now time.Time) []Message {
	out := make([]Message, 0, len(entries))
	for i, e := range entries {
		text := ""
		switch {
		case e.Text != nil:
			text = *e.Text
		case e.Message != nil:
			text = *e.Message
		}

		stamp := e.Timestamp
		if stamp == "" {
			stamp = e.CreatedAt
		}
		ts, ok := parseTime(stamp)
		if !ok {
			ts = now.UTC()
			if stamp == "" {
				stamp = ts.Format(time.RFC3339Nano)
			}
		}

		id := e.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", stamp, i)
		}

		out = append(out, Message{ID: id, Text: text, Sender: Sender(e.Sender), Timestamp: ts})
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
