package transcript

import (
	"testing"
)

func TestFlushOrderUserBeforeModel(t *testing.T) {
	tests := []struct {
		name   string
		deltas []struct {
			speaker Speaker
			text    string
			final   bool
		}
	}{
		{
			name: "user first",
			deltas: []struct {
				speaker Speaker
				text    string
				final   bool
			}{
				{SpeakerUser, "what is ", false},
				{SpeakerUser, "the news", true},
				{SpeakerModel, "Here are ", false},
				{SpeakerModel, "the headlines.", true},
			},
		},
		{
			name: "model first",
			deltas: []struct {
				speaker Speaker
				text    string
				final   bool
			}{
				{SpeakerModel, "Here are ", false},
				{SpeakerUser, "what is ", false},
				{SpeakerModel, "the headlines.", true},
				{SpeakerUser, "the news", true},
			},
		},
		{
			name: "model final arrives before user final",
			deltas: []struct {
				speaker Speaker
				text    string
				final   bool
			}{
				{SpeakerModel, "Here are the headlines.", true},
				{SpeakerUser, "what is the news", true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			for _, d := range tt.deltas {
				r.AddDelta(d.speaker, d.text, d.final)
			}

			appended := r.TurnComplete()
			if len(appended) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(appended))
			}
			if appended[0].Speaker != SpeakerUser {
				t.Errorf("first entry should be user, got %s", appended[0].Speaker)
			}
			if appended[0].Text != "what is the news" {
				t.Errorf("user text mismatch: %q", appended[0].Text)
			}
			if appended[1].Speaker != SpeakerModel {
				t.Errorf("second entry should be model, got %s", appended[1].Speaker)
			}
			if appended[1].Text != "Here are the headlines." {
				t.Errorf("model text mismatch: %q", appended[1].Text)
			}
		})
	}
}

func TestTurnCompleteEmptyIsNoOp(t *testing.T) {
	r := New()

	appended := r.TurnComplete()
	if len(appended) != 0 {
		t.Errorf("expected no entries, got %d", len(appended))
	}
	if len(r.Entries()) != 0 {
		t.Errorf("log should stay empty, got %d entries", len(r.Entries()))
	}
}

func TestTurnCompleteOneSided(t *testing.T) {
	r := New()
	r.AddDelta(SpeakerModel, "Breaking story.", true)

	appended := r.TurnComplete()
	if len(appended) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(appended))
	}
	if appended[0].Speaker != SpeakerModel {
		t.Errorf("expected model entry, got %s", appended[0].Speaker)
	}
}

func TestAccumulatorsResetAfterTurn(t *testing.T) {
	r := New()
	r.AddDelta(SpeakerUser, "first turn", true)
	r.TurnComplete()

	if got := r.Interim(SpeakerUser); got != "" {
		t.Errorf("user accumulator not reset: %q", got)
	}

	r.AddDelta(SpeakerUser, "second turn", true)
	appended := r.TurnComplete()
	if len(appended) != 1 || appended[0].Text != "second turn" {
		t.Errorf("second turn polluted by first: %+v", appended)
	}

	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Text != "first turn" || entries[1].Text != "second turn" {
		t.Errorf("log order wrong: %+v", entries)
	}
}

func TestInterimVisibleBeforeFlush(t *testing.T) {
	r := New()
	r.AddDelta(SpeakerUser, "still talk", false)
	r.AddDelta(SpeakerUser, "ing", false)

	if got := r.Interim(SpeakerUser); got != "still talking" {
		t.Errorf("interim mismatch: %q", got)
	}
	if len(r.Entries()) != 0 {
		t.Error("interim text must not appear in the finalized log")
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	r := New()
	r.AddDelta(SpeakerUser, "hello", true)
	r.TurnComplete()

	entries := r.Entries()
	entries[0].Text = "mutated"

	if r.Entries()[0].Text != "hello" {
		t.Error("Entries exposed internal state")
	}
}

func TestReset(t *testing.T) {
	r := New()
	r.AddDelta(SpeakerUser, "hello", true)
	r.TurnComplete()
	r.AddDelta(SpeakerModel, "pending", false)

	r.Reset()

	if len(r.Entries()) != 0 {
		t.Error("log not cleared")
	}
	if r.Interim(SpeakerModel) != "" {
		t.Error("accumulator not cleared")
	}
}
