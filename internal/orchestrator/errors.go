package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage is returned for whitespace-only input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned when a turn is submitted while the previous one is
	// still waiting for the backend or being revealed.
	ErrBusy = errors.New("a reply is still in progress")
	// ErrEmptyTitle is returned when renaming a session to blank text.
	ErrEmptyTitle = errors.New("title is empty")
)

// Fault is a backend failure that was already shown in the conversation.
type Fault struct {
	Op string
	// Server is true for transport errors and 5xx responses.
	Server bool
	Err    error
}

func (f *Fault) Error() string {
	kind := "client"
	if f.Server {
		kind = "server"
	}
	return fmt.Sprintf("%s failed (%s fault): %v", f.Op, kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
