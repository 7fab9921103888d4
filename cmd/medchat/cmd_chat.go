package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/comigor/medchat-go/internal/backend"
	"github.com/comigor/medchat-go/internal/chat"
	"github.com/comigor/medchat-go/internal/logger"
	"github.com/comigor/medchat-go/internal/orchestrator"
	"github.com/comigor/medchat-go/internal/reveal"
	"github.com/comigor/medchat-go/internal/tui"
	"github.com/comigor/medchat-go/internal/voice"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat screen",
	RunE:  runChat,
}

var sendSession string

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the reply as it is revealed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendSession, "session", "s", "", "continue this session instead of starting a new one")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// The screen owns the terminal, so logs go to a file.
	if f, err := openLogFile(cfg.Log.File); err != nil {
		logger.SetOutput(io.Discard)
	} else {
		defer f.Close()
		logger.SetOutput(f)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	bridge := voice.FromConfig(cfg.Voice.SpeakCommand, cfg.Voice.RecognizeCommand)
	defer bridge.Close()

	notifier := tui.NewNotifier()
	conv := chat.NewConversation(chat.WithObserver(notifier.Notify))
	opts := []orchestrator.Option{orchestrator.WithVoice(bridge)}
	if a.client != nil {
		opts = append(opts, orchestrator.WithCache(a.store))
	}
	orch := orchestrator.New(a.chat, conv, *cfg, opts...)
	defer orch.Close()

	theme, err := bootstrap(ctx, a, orch)
	if err != nil {
		return err
	}

	model := tui.New(ctx, orch, notifier, bridge, tui.Options{Theme: theme})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat screen: %w", err)
	}
	return nil
}

// bootstrap fetches the signed-in user and the session list concurrently. It
// returns the user's preferred theme. A session list failure is shown on the
// screen; a rejected token aborts.
func bootstrap(ctx context.Context, a *app, orch *orchestrator.Orchestrator) (string, error) {
	var theme string
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if a.client == nil {
			return nil
		}
		if a.client.Token() == "" {
			return fmt.Errorf("not signed in: run medchat login")
		}
		u, err := a.client.Me(gctx)
		if err != nil {
			if backend.IsClientFault(err) {
				return fmt.Errorf("not signed in: run medchat login: %w", err)
			}
			logger.L.Warn("loading user failed", "error", err)
			return nil
		}
		theme = u.PreferredTheme
		return nil
	})

	g.Go(func() error {
		if err := orch.LoadSessions(gctx); err != nil {
			logger.L.Warn("loading sessions failed", "error", err)
		}
		return nil
	})

	return theme, g.Wait()
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("log.file is not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

func runSend(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	done := make(chan struct{})
	var printed int
	observer := func(u reveal.Update) {
		// Updates carry the text revealed so far; print only the new part.
		if len(u.Text) > printed {
			fmt.Fprint(out, u.Text[printed:])
			printed = len(u.Text)
		}
		if u.Done {
			fmt.Fprintln(out)
			close(done)
		}
	}

	changed := make(chan struct{}, 1)
	conv := chat.NewConversation(chat.WithObserver(func(e chat.Event) {
		if e.Kind != chat.EventMessages {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	}))
	orch := orchestrator.New(a.chat, conv, *cfg, orchestrator.WithRevealObserver(observer))
	defer orch.Close()

	if sendSession != "" {
		conv.Switch(sendSession)
	}

	if err := orch.Send(cmd.Context(), strings.Join(args, " ")); err != nil {
		var fault *orchestrator.Fault
		if errors.As(err, &fault) && fault.Server {
			if text, ok := awaitFallback(cmd.Context(), conv, changed, cfg.Chat.FallbackDelay+time.Second); ok {
				fmt.Fprintln(out, text)
			}
		}
		if msg := conv.Error(); msg != "" {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}

	select {
	case <-done:
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}

	if _, id := conv.Current(); id != "" && id != sendSession {
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", id)
	}
	return nil
}

// awaitFallback waits for the synthetic reply the orchestrator appends after
// a server fault and returns its text.
func awaitFallback(ctx context.Context, conv *chat.Conversation, changed <-chan struct{}, timeout time.Duration) (string, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		msgs := conv.Messages()
		if n := len(msgs); n > 0 && msgs[n-1].Sender == chat.SenderBot {
			return msgs[n-1].Text, true
		}
		select {
		case <-changed:
		case <-deadline.C:
			return "", false
		case <-ctx.Done():
			return "", false
		}
	}
}
