package voice

import (
	"strings"
	"sync"
)

// Draft is the text being composed in the input box. While recording, each
// transcript replaces everything after the base captured at recognition
// start, so restarting recognition never duplicates typed text.
type Draft struct {
	mu        sync.Mutex
	text      string
	base      string
	recording bool
}

// Text returns the current draft.
func (d *Draft) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Set replaces the draft, as when the user types.
func (d *Draft) Set(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

// Reset clears the draft after it was sent.
func (d *Draft) Reset() {
	d.Set("")
}

// BeginRecognition captures the base prefix: the current text plus a
// separating space, or nothing for an empty draft.
func (d *Draft) BeginRecognition() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.base = ""
	if d.text != "" {
		d.base = d.text + " "
	}
	d.recording = true
}

// ApplyTranscript sets the draft to base + transcript. It returns the new text.
func (d *Draft) ApplyTranscript(transcript string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.recording {
		return d.text
	}
	d.text = d.base + strings.TrimLeft(transcript, " \t\r\n")
	return d.text
}

// EndRecognition stops applying transcripts.
func (d *Draft) EndRecognition() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording = false
}

// Recording reports whether a recognition session is feeding the draft.
func (d *Draft) Recording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recording
}
