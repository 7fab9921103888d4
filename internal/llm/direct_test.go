package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/medchat-go/internal/backend"
	"github.com/comigor/medchat-go/internal/chat"
	"github.com/comigor/medchat-go/internal/config"
	"github.com/comigor/medchat-go/internal/history"
)

type mockLLM struct {
	calls    []openai.ChatCompletionResponse
	err      error
	requests []openai.ChatCompletionRequest
}

func (m *mockLLM) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		panic("mockLLM: no more responses configured for request: " + r.Messages[len(r.Messages)-1].Content)
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
	}}}
}

func newDirect(t *testing.T, m *mockLLM) *Direct {
	t.Helper()
	store := history.Open("")
	t.Cleanup(func() { store.Close() })

	d := NewDirect(m, store, config.LLMConfig{Model: "test-model", HistoryLimit: 10})
	n := 0
	d.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	clock := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return d
}

func TestDirect_NewSessionThenFollowUp(t *testing.T) {
	m := &mockLLM{calls: []openai.ChatCompletionResponse{reply("Drink water."), reply("Rest too.")}}
	d := newDirect(t, m)
	ctx := context.Background()

	first, err := d.Chat(ctx, backend.ChatRequest{Message: "  I have a   headache "})
	require.NoError(t, err)
	require.Equal(t, "id-1", first.SessionID)
	require.Equal(t, "I have a headache", first.SessionTitle)
	require.Equal(t, "Drink water.", first.Reply)

	req := m.requests[0]
	require.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	require.Contains(t, req.Messages[0].Content, "medical assistant")
	require.Equal(t, "I have a   headache", req.Messages[1].Content)

	second, err := d.Chat(ctx, backend.ChatRequest{Message: "Anything else?", SessionID: first.SessionID})
	require.NoError(t, err)
	require.Equal(t, first.SessionID, second.SessionID)
	require.Equal(t, "I have a headache", second.SessionTitle, "title is derived only once")

	roles := []string{}
	for _, msg := range m.requests[1].Messages {
		roles = append(roles, msg.Role)
	}
	require.Equal(t, []string{"system", "user", "assistant", "user"}, roles)

	entries, err := d.History(ctx, first.SessionID)
	require.NoError(t, err)
	msgs := chat.NormalizeHistory(entries, time.Now())
	require.Len(t, msgs, 4)
	require.Equal(t, chat.SenderBot, msgs[3].Sender)
	require.Equal(t, "Rest too.", msgs[3].Text)

	list, err := d.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestDirect_Validation(t *testing.T) {
	d := newDirect(t, &mockLLM{})
	ctx := context.Background()

	_, err := d.Chat(ctx, backend.ChatRequest{Message: "   "})
	require.True(t, backend.IsClientFault(err))
	require.Equal(t, "Message is required.", backend.Message(err, ""))

	_, err = d.Chat(ctx, backend.ChatRequest{Message: "hi", SessionID: "missing"})
	require.True(t, backend.IsNotFound(err))

	_, err = d.History(ctx, "missing")
	require.True(t, backend.IsNotFound(err))
}

func TestDirect_LLMFailureIsServerFault(t *testing.T) {
	d := newDirect(t, &mockLLM{err: errors.New("upstream exploded")})

	_, err := d.Chat(context.Background(), backend.ChatRequest{Message: "hello"})
	require.True(t, backend.IsServerFault(err))
	require.Equal(t, "Could not process chat request.", backend.Message(err, ""))
}

func TestDirect_FailedTurnLeavesNothingStored(t *testing.T) {
	m := &mockLLM{err: errors.New("upstream exploded")}
	d := newDirect(t, m)
	ctx := context.Background()

	_, err := d.Chat(ctx, backend.ChatRequest{Message: "hello"})
	require.True(t, backend.IsServerFault(err))
	list, err := d.ListSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, list, "a failed first turn creates no session")

	m.err = nil
	m.calls = []openai.ChatCompletionResponse{reply("Drink water."), reply("Rest too.")}
	first, err := d.Chat(ctx, backend.ChatRequest{Message: "I have a headache"})
	require.NoError(t, err)

	m.err = errors.New("upstream exploded")
	_, err = d.Chat(ctx, backend.ChatRequest{Message: "lost question", SessionID: first.SessionID})
	require.True(t, backend.IsServerFault(err))

	m.err = nil
	_, err = d.Chat(ctx, backend.ChatRequest{Message: "Anything else?", SessionID: first.SessionID})
	require.NoError(t, err)

	last := m.requests[len(m.requests)-1]
	contents := []string{}
	for _, msg := range last.Messages[1:] {
		contents = append(contents, msg.Content)
	}
	require.Equal(t, []string{"I have a headache", "Drink water.", "Anything else?"}, contents)

	entries, err := d.History(ctx, first.SessionID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
}

func TestDirect_CanceledContext(t *testing.T) {
	d := newDirect(t, &mockLLM{err: context.Canceled})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Chat(ctx, backend.ChatRequest{Message: "hello"})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, backend.IsServerFault(err))
}

func TestDirect_EmptyModelReply(t *testing.T) {
	d := newDirect(t, &mockLLM{calls: []openai.ChatCompletionResponse{reply("  ")}})

	got, err := d.Chat(context.Background(), backend.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, fallbackReply, got.Reply)
}

func TestDirect_RenameAndDelete(t *testing.T) {
	d := newDirect(t, &mockLLM{calls: []openai.ChatCompletionResponse{reply("ok")}})
	ctx := context.Background()

	r, err := d.Chat(ctx, backend.ChatRequest{Message: "rash on arm"})
	require.NoError(t, err)

	_, err = d.RenameSession(ctx, r.SessionID, "   ")
	require.True(t, backend.IsClientFault(err))
	_, err = d.RenameSession(ctx, r.SessionID, strings.Repeat("x", 121))
	require.Equal(t, "Title must be 120 characters or fewer.", backend.Message(err, ""))

	renamed, err := d.RenameSession(ctx, r.SessionID, " Skin   rash ")
	require.NoError(t, err)
	require.Equal(t, "Skin rash", renamed.Title)

	_, err = d.RenameSession(ctx, "nope", "x")
	require.True(t, backend.IsNotFound(err))

	require.NoError(t, d.DeleteSession(ctx, r.SessionID))
	require.True(t, backend.IsNotFound(d.DeleteSession(ctx, r.SessionID)))

	list, err := d.ListSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}
