package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/medchat-go/internal/chat"
	"github.com/comigor/medchat-go/internal/session"
)

func msg(id string, sender chat.Sender, text string, at time.Time) chat.Message {
	return chat.Message{ID: id, Sender: sender, Text: text, Timestamp: at}
}

func TestStore_SessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := Open("")
	defer s.Close()

	base := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertSession(ctx, session.Session{ID: "a", Title: "Older", CreatedAt: base}))
	require.NoError(t, s.UpsertSession(ctx, session.Session{ID: "b", Title: "Newer", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.UpsertSession(ctx, session.Session{ID: "a", Title: "Older renamed", CreatedAt: base.Add(2 * time.Hour)}))

	list, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].ID)
	require.Equal(t, "a", list[1].ID)
	require.Equal(t, "Older renamed", list[1].Title)
	require.True(t, base.Equal(list[1].CreatedAt), "upsert must keep the original creation time")
}

func TestStore_RenameAndDelete(t *testing.T) {
	ctx := context.Background()
	s := Open("")
	defer s.Close()

	require.NoError(t, s.UpsertSession(ctx, session.Session{ID: "7", Title: "Cough"}))
	require.NoError(t, s.Append(ctx, "7", msg("m1", chat.SenderUser, "cough", time.Now())))

	require.NoError(t, s.RenameSession(ctx, "7", "Dry cough"))
	got, err := s.Session(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "Dry cough", got.Title)

	require.ErrorIs(t, s.RenameSession(ctx, "8", "x"), ErrNotFound)

	require.NoError(t, s.DeleteSession(ctx, "7"))
	_, err = s.Session(ctx, "7")
	require.ErrorIs(t, err, ErrNotFound)
	msgs, err := s.List(ctx, "7", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.ErrorIs(t, s.DeleteSession(ctx, "7"), ErrNotFound)
}

func TestStore_AppendListLimit(t *testing.T) {
	ctx := context.Background()
	s := Open("")
	defer s.Close()

	at := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three", "four"} {
		sender := chat.SenderUser
		if i%2 == 1 {
			sender = chat.SenderBot
		}
		require.NoError(t, s.Append(ctx, "s", msg(text, sender, text, at.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, s.Append(ctx, "other", msg("x", chat.SenderUser, "x", at)))

	all, err := s.List(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "one", all[0].Text)
	require.Equal(t, chat.SenderBot, all[1].Sender)
	require.True(t, at.Add(3*time.Second).Equal(all[3].Timestamp))

	last, err := s.List(ctx, "s", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"three", "four"}, []string{last[0].Text, last[1].Text})
}

func TestStore_Replace(t *testing.T) {
	ctx := context.Background()
	s := Open("")
	defer s.Close()

	now := time.Now()
	require.NoError(t, s.Append(ctx, "s", msg("old", chat.SenderUser, "old", now)))
	require.NoError(t, s.Replace(ctx, "s", []chat.Message{
		msg("1", chat.SenderUser, "hi", now),
		msg("2", chat.SenderBot, "hello", now),
	}))

	got, err := s.List(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "1", got[0].ID)
	require.Equal(t, "hello", got[1].Text)
}

func TestStore_PersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s := Open(path)
	require.NoError(t, s.UpsertSession(ctx, session.Session{ID: "42", Title: "Headache"}))
	require.NoError(t, s.Append(ctx, "42", msg("m", chat.SenderUser, "I have a headache", time.Now())))
	require.NoError(t, s.Close())

	reopened := Open(path)
	defer reopened.Close()
	list, err := reopened.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Headache", list[0].Title)

	msgs, err := reopened.List(ctx, "42", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestStore_CloseUnusedLeavesNoFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path := filepath.Join(dir, "history.db")

	s := Open(path)
	require.NoError(t, s.Close())
	require.NoDirExists(t, dir)
	require.NoFileExists(t, path)

	_, err := s.Sessions(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
