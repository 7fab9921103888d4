// Package voice abstracts speech output and speech recognition behind a
// capability interface. Hosts without a speech engine get Noop.
package voice

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the host has no speech engine.
var ErrUnavailable = errors.New("speech engine unavailable")

// ErrNoSpeech reports a recognition session that heard nothing. It is not
// shown to the user.
var ErrNoSpeech = errors.New("no speech detected")

// Handler receives recognition events. Any field may be nil.
type Handler struct {
	OnStart  func()
	OnResult func(transcript string)
	OnError  func(err error)
	OnEnd    func()
}

// Bridge is the platform speech capability.
type Bridge interface {
	// Available reports whether recognition can be started.
	Available() bool
	// Speak starts saying text and returns without waiting. A new call
	// interrupts the previous utterance.
	Speak(ctx context.Context, text string) error
	// StartRecognition begins streaming transcripts into h.
	StartRecognition(ctx context.Context, h Handler) error
	// StopRecognition ends the running recognition session, if any.
	StopRecognition() error
	// Close releases any running process.
	Close() error
}

// Noop is the bridge used when no speech engine is configured.
type Noop struct{}

func (Noop) Available() bool                     { return false }
func (Noop) Speak(context.Context, string) error { return nil }
func (Noop) StopRecognition() error              { return nil }
func (Noop) Close() error                        { return nil }

func (Noop) StartRecognition(context.Context, Handler) error {
	return ErrUnavailable
}

// UserMessage converts a recognition error into the inline text shown next to
// the input. It returns "" for errors that should stay silent.
func UserMessage(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrNoSpeech), errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, ErrUnavailable):
		return "Speech recognition is not supported on this device."
	default:
		return "Couldn't capture voice clearly. Please try again."
	}
}
