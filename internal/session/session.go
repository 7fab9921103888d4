// Package session reconciles the locally displayed session list with
// server-confirmed session ids and titles. All functions are pure: they
// return a new slice and never modify their input.
package session

import (
	"strings"
	"time"
)

// Session is a persisted conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Index returns the position of id in list, or -1.
func Index(list []Session, id string) int {
	for i, s := range list {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Upsert merges incoming into list. A known id keeps its position and gets
// the incoming title; an unknown id is inserted at the front. Entries without
// an id are ignored.
func Upsert(list []Session, incoming Session) []Session {
	if incoming.ID == "" {
		return clone(list)
	}
	if i := Index(list, incoming.ID); i >= 0 {
		out := clone(list)
		out[i].Title = incoming.Title
		if out[i].CreatedAt.IsZero() {
			out[i].CreatedAt = incoming.CreatedAt
		}
		return out
	}
	out := make([]Session, 0, len(list)+1)
	out = append(out, incoming)
	return append(out, list...)
}

// Rename sets the title of id. The caller applies it only after the server
// confirmed the new title. Unknown ids leave the list unchanged.
func Rename(list []Session, id, title string) []Session {
	out := clone(list)
	if i := Index(out, id); i >= 0 {
		out[i].Title = title
	}
	return out
}

// Delete removes id from the list. Clearing the active session pointer when
// it referenced id is the caller's responsibility.
func Delete(list []Session, id string) []Session {
	out := make([]Session, 0, len(list))
	for _, s := range list {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// Seed normalizes a freshly fetched list: entries without id are dropped and
// the first occurrence of an id wins.
func Seed(list []Session) []Session {
	seen := make(map[string]struct{}, len(list))
	out := make([]Session, 0, len(list))
	for _, s := range list {
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// MaxTitleLength is the longest title DeriveTitle produces, in runes.
const MaxTitleLength = 80

// DeriveTitle turns the first message of a session into a title: whitespace
// runs collapse to one space and long text is cut to MaxTitleLength runes
// ending in "...".
func DeriveTitle(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	r := []rune(cleaned)
	if len(r) <= MaxTitleLength {
		return cleaned
	}
	return strings.TrimRight(string(r[:MaxTitleLength-3]), " ") + "..."
}

func clone(list []Session) []Session {
	out := make([]Session, len(list))
	copy(out, list)
	return out
}
