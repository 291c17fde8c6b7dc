// Package transcript merges incremental speech-to-text deltas into a clean
// conversation log.
//
// The live session delivers partial transcript fragments for both sides of
// the conversation in arbitrary interleaving. The Reconciler accumulates
// them per speaker and flushes finalized entries only when the backend
// signals that a turn is complete, so the log never contains half-spoken
// text.
package transcript

import (
	"strings"
	"sync"
)

// Speaker identifies who produced a transcript fragment.
type Speaker string

const (
	// SpeakerUser is the person talking into the microphone.
	SpeakerUser Speaker = "user"
	// SpeakerModel is the AI side of the conversation.
	SpeakerModel Speaker = "model"
)

// Entry is one finalized line of the conversation log.
// Entries are immutable once appended.
type Entry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Reconciler accumulates partial transcript deltas and flushes them into
// finalized entries on turn completion. Safe for concurrent use.
type Reconciler struct {
	mu      sync.Mutex
	user    strings.Builder
	model   strings.Builder
	entries []Entry
}

// New creates an empty Reconciler.
func New() *Reconciler {
	return &Reconciler{}
}

// AddDelta appends a transcript fragment to the speaker's accumulator.
// Final fragments update the accumulator like any other; the accumulator
// stays open until TurnComplete.
func (r *Reconciler) AddDelta(speaker Speaker, text string, final bool) {
	if text == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch speaker {
	case SpeakerUser:
		r.user.WriteString(text)
	case SpeakerModel:
		r.model.WriteString(text)
	}
}

// TurnComplete flushes both accumulators into finalized entries, user
// before model, and resets them. Empty accumulators produce no entry, so a
// turn-complete with nothing accumulated is a no-op.
// Returns the entries appended by this turn.
func (r *Reconciler) TurnComplete() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var appended []Entry
	if text := r.user.String(); text != "" {
		appended = append(appended, Entry{Speaker: SpeakerUser, Text: text})
	}
	if text := r.model.String(); text != "" {
		appended = append(appended, Entry{Speaker: SpeakerModel, Text: text})
	}

	r.user.Reset()
	r.model.Reset()
	r.entries = append(r.entries, appended...)

	return appended
}

// Interim returns the in-progress (not yet finalized) text for a speaker.
// Useful for live "currently saying..." display; interim text never
// appears in Entries.
func (r *Reconciler) Interim(speaker Speaker) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch speaker {
	case SpeakerUser:
		return r.user.String()
	case SpeakerModel:
		return r.model.String()
	}
	return ""
}

// Entries returns a copy of the finalized conversation log.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Reset clears the log and both accumulators.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.user.Reset()
	r.model.Reset()
	r.entries = nil
}
