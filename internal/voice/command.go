package voice

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/comigor/medchat-go/internal/logger"
)

// Command drives external speech programs. The speak command receives the
// text as its last argument. The recognize command prints one line per
// result, each line being the transcript so far; it runs until it exits or
// recognition is stopped.
type Command struct {
	speakArgv     []string
	recognizeArgv []string

	mu        sync.Mutex
	speakStop context.CancelFunc
	recStop   context.CancelFunc
	wg        sync.WaitGroup
}

// NewCommand builds a bridge from argv slices. Either may be empty.
func NewCommand(speakArgv, recognizeArgv []string) *Command {
	return &Command{speakArgv: speakArgv, recognizeArgv: recognizeArgv}
}

// FromConfig splits shell-like command lines on whitespace and returns Noop
// when neither is set.
func FromConfig(speak, recognize string) Bridge {
	if strings.TrimSpace(speak) == "" && strings.TrimSpace(recognize) == "" {
		return Noop{}
	}
	return NewCommand(strings.Fields(speak), strings.Fields(recognize))
}

// Available reports whether a recognize command is configured.
func (c *Command) Available() bool { return len(c.recognizeArgv) > 0 }

// Speak interrupts the previous utterance and starts a new one.
func (c *Command) Speak(ctx context.Context, text string) error {
	if len(c.speakArgv) == 0 || strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.speakStop != nil {
		c.speakStop()
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.speakStop = cancel
	c.mu.Unlock()

	args := append(append([]string{}, c.speakArgv[1:]...), text)
	cmd := exec.CommandContext(sctx, c.speakArgv[0], args...)
	if err := cmd.Start(); err != nil {
		cancel()
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		if err := cmd.Wait(); err != nil && sctx.Err() == nil {
			logger.L.Warn("speak command failed", "error", err)
		}
	}()
	return nil
}

// StartRecognition stops any running session and starts a new one.
func (c *Command) StartRecognition(ctx context.Context, h Handler) error {
	if !c.Available() {
		return ErrUnavailable
	}

	c.mu.Lock()
	if c.recStop != nil {
		c.recStop()
	}
	rctx, cancel := context.WithCancel(ctx)
	c.recStop = cancel
	c.mu.Unlock()

	cmd := exec.CommandContext(rctx, c.recognizeArgv[0], c.recognizeArgv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return err
	}

	if h.OnStart != nil {
		h.OnStart()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		heard := false
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			heard = true
			if h.OnResult != nil {
				h.OnResult(line)
			}
		}

		waitErr := cmd.Wait()
		switch {
		case rctx.Err() != nil:
		case waitErr != nil:
			if h.OnError != nil {
				h.OnError(waitErr)
			}
		case !heard:
			if h.OnError != nil {
				h.OnError(ErrNoSpeech)
			}
		}
		if h.OnEnd != nil {
			h.OnEnd()
		}
	}()
	return nil
}

// StopRecognition ends the running session. OnEnd still fires.
func (c *Command) StopRecognition() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recStop == nil {
		return nil
	}
	c.recStop()
	c.recStop = nil
	return nil
}

// Close stops everything and waits for the processes to exit.
func (c *Command) Close() error {
	c.mu.Lock()
	if c.speakStop != nil {
		c.speakStop()
	}
	if c.recStop != nil {
		c.recStop()
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

var _ Bridge = (*Command)(nil)
var _ Bridge = Noop{}

