package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/comigor/medchat-go/internal/backend"
	"github.com/comigor/medchat-go/internal/chat"
	"github.com/comigor/medchat-go/internal/logger"
	"github.com/comigor/medchat-go/internal/session"
)

// LoadSessions seeds the session list from the backend.
func (o *Orchestrator) LoadSessions(ctx context.Context) error {
	list, err := o.backend.ListSessions(ctx)
	if err != nil {
		return o.surface("list sessions", "Failed to load sessions.", err)
	}
	o.conv.UpdateSessions(func([]session.Session) []session.Session {
		return session.Seed(list)
	})
	return nil
}

// NewChat cancels the active reveal and starts an unsaved conversation.
func (o *Orchestrator) NewChat() {
	o.navigate("")
}

// SwitchSession cancels the active reveal, makes id current and loads its
// history. A reply still in flight for the previous session is reconciled
// into the session list but never shown here.
func (o *Orchestrator) SwitchSession(ctx context.Context, id string) error {
	epoch := o.navigate(id)
	if id == "" {
		return nil
	}
	return o.loadHistory(ctx, epoch, id)
}

// navigate switches the current session. The canceled reveal keeps its
// partial text and never reaches its completion callback.
func (o *Orchestrator) navigate(id string) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.engine.Cancel() {
		logger.L.Debug("reveal canceled by navigation", "session", id)
	}
	_ = o.fireLocked(TriggerAbandoned)
	return o.conv.Switch(id)
}

func (o *Orchestrator) loadHistory(ctx context.Context, epoch uint64, id string) error {
	entries, err := o.backend.History(ctx, id)
	if err != nil {
		if o.cache != nil && backend.IsServerFault(err) {
			if cached, cerr := o.cache.List(ctx, id, 0); cerr == nil && len(cached) > 0 {
				logger.L.Info("showing cached history", "session", id, "messages", len(cached))
				o.conv.ReplaceMessages(epoch, cached)
			}
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		if o.conv.Epoch() == epoch {
			o.conv.SetError(backend.Message(err, "Failed to load chat history."))
		}
		return &Fault{Op: "load history", Server: backend.IsServerFault(err), Err: err}
	}

	msgs := chat.NormalizeHistory(entries, o.now())
	if !o.conv.ReplaceMessages(epoch, msgs) {
		return nil
	}
	if o.cache != nil {
		if err := o.cache.Replace(ctx, id, msgs); err != nil {
			logger.L.Warn("history cache update failed", "session", id, "error", err)
		}
	}
	return nil
}

// RenameSession asks the backend to rename id and applies the confirmed
// title. On failure the list is left unchanged.
func (o *Orchestrator) RenameSession(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	confirmed, err := o.backend.RenameSession(ctx, id, title)
	if err != nil {
		return o.surface("rename session", "Failed to rename session.", err)
	}
	o.conv.UpdateSessions(func(list []session.Session) []session.Session {
		return session.Rename(list, id, confirmed.Title)
	})
	return nil
}

// DeleteSession asks the backend to delete id and removes it from the list
// once confirmed. Deleting the current session starts a new chat.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	if err := o.backend.DeleteSession(ctx, id); err != nil {
		return o.surface("delete session", "Failed to delete session.", err)
	}
	o.conv.UpdateSessions(func(list []session.Session) []session.Session {
		return session.Delete(list, id)
	})
	if _, current := o.conv.Current(); current == id {
		o.navigate("")
	}
	if o.cache != nil {
		if err := o.cache.Replace(ctx, id, nil); err != nil {
			logger.L.Warn("history cache cleanup failed", "session", id, "error", err)
		}
	}
	return nil
}

// surface shows err in the error banner and wraps it in a Fault.
func (o *Orchestrator) surface(op, fallback string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	logger.L.Warn(op+" failed", "error", err)
	o.conv.SetError(backend.Message(err, fallback))
	return &Fault{Op: op, Server: backend.IsServerFault(err), Err: err}
}
