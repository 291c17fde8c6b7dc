package player

import (
	"errors"
	"testing"
	"time"
)

func TestClipPlayerRequiresClip(t *testing.T) {
	p := NewClipPlayer(NewManualClock(), newTestSink(t), nil)
	defer p.Close()

	if err := p.Play(0); !errors.Is(err, ErrNoClip) {
		t.Errorf("Play without clip: got %v, want ErrNoClip", err)
	}
	if err := p.Seek(time.Second); !errors.Is(err, ErrNoClip) {
		t.Errorf("Seek without clip: got %v, want ErrNoClip", err)
	}
}

func TestClipPlayerPauseResume(t *testing.T) {
	clock := NewManualClock()
	p := NewClipPlayer(clock, newTestSink(t), nil)
	defer p.Close()

	p.Load(makeBuffer(t, time.Second, 24000))

	if err := p.Play(0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	clock.Advance(300 * time.Millisecond)

	p.Pause()
	if p.Playing() {
		t.Error("still playing after pause")
	}
	if got := p.Position(); got != 300*time.Millisecond {
		t.Errorf("paused position %v, want 300ms", got)
	}

	// Pausing while paused changes nothing.
	clock.Advance(time.Second)
	p.Pause()
	if got := p.Position(); got != 300*time.Millisecond {
		t.Errorf("position moved while paused: %v", got)
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	clock.Advance(200 * time.Millisecond)
	if got := p.Position(); got != 500*time.Millisecond {
		t.Errorf("position after resume %v, want 500ms", got)
	}
}

func TestClipPlayerPlayOffsetClamped(t *testing.T) {
	clock := NewManualClock()
	p := NewClipPlayer(clock, newTestSink(t), nil)
	defer p.Close()

	p.Load(makeBuffer(t, time.Second, 24000))

	if err := p.Play(-5 * time.Second); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := p.Position(); got != 0 {
		t.Errorf("negative offset should clamp to 0, got %v", got)
	}

	if err := p.Play(10 * time.Second); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := p.Position(); got != time.Second {
		t.Errorf("oversized offset should clamp to clip end, got %v", got)
	}
}

func TestClipPlayerSeek(t *testing.T) {
	clock := NewManualClock()
	p := NewClipPlayer(clock, newTestSink(t), nil)
	defer p.Close()

	p.Load(makeBuffer(t, time.Second, 24000))

	// Seeking while paused moves the stored offset.
	if err := p.Seek(400 * time.Millisecond); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := p.Position(); got != 400*time.Millisecond {
		t.Errorf("position %v, want 400ms", got)
	}
	if p.Playing() {
		t.Error("seek must not start playback")
	}

	// Clamped at both ends.
	if err := p.Seek(-10 * time.Second); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := p.Position(); got != 0 {
		t.Errorf("position %v, want 0", got)
	}
	if err := p.Seek(10 * time.Second); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := p.Position(); got != time.Second {
		t.Errorf("position %v, want clip end", got)
	}
}

func TestClipPlayerRateScalesPosition(t *testing.T) {
	clock := NewManualClock()
	p := NewClipPlayer(clock, newTestSink(t), nil)
	defer p.Close()

	p.Load(makeBuffer(t, 2*time.Second, 24000))

	if err := p.Play(0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	clock.Advance(100 * time.Millisecond)

	if err := p.SetRate(2.0); err != nil {
		t.Fatalf("SetRate: %v", err)
	}
	clock.Advance(100 * time.Millisecond)

	// 100ms at 1x plus 100ms at 2x.
	if got := p.Position(); got != 300*time.Millisecond {
		t.Errorf("position %v, want 300ms", got)
	}

	if err := p.SetRate(0); err == nil {
		t.Error("rate 0 should be rejected")
	}
	if err := p.SetRate(-1); err == nil {
		t.Error("negative rate should be rejected")
	}
}

func TestClipPlayerNaturalEndAdvancesPlaylist(t *testing.T) {
	// Real clock: short tracks run to their natural end and the player
	// walks the playlist without intervention.
	p := NewClipPlayer(NewClock(), newTestSink(t), nil)
	defer p.Close()

	advanced := make(chan int, 4)
	finished := make(chan struct{}, 1)
	p.OnAdvance = func(index int, _ Track) { advanced <- index }
	p.OnFinished = func() { finished <- struct{}{} }

	tracks := []Track{
		{ID: "a", Title: "first", Buffer: makeBuffer(t, 40*time.Millisecond, 24000)},
		{ID: "b", Title: "second", Buffer: makeBuffer(t, 40*time.Millisecond, 24000)},
	}
	if err := p.LoadPlaylist(tracks); err != nil {
		t.Fatalf("LoadPlaylist: %v", err)
	}
	if err := p.Play(0); err != nil {
		t.Fatalf("Play: %v", err)
	}

	select {
	case idx := <-advanced:
		if idx != 1 {
			t.Errorf("advanced to index %d, want 1", idx)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("player never advanced past the first track")
	}

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("player never reported the playlist finished")
	}
	if p.Playing() {
		t.Error("still playing after the last track ended")
	}
}

func TestClipPlayerManualStopDoesNotAdvance(t *testing.T) {
	p := NewClipPlayer(NewClock(), newTestSink(t), nil)
	defer p.Close()

	advanced := make(chan int, 1)
	p.OnAdvance = func(index int, _ Track) { advanced <- index }

	tracks := []Track{
		{ID: "a", Buffer: makeBuffer(t, time.Second, 24000)},
		{ID: "b", Buffer: makeBuffer(t, time.Second, 24000)},
	}
	if err := p.LoadPlaylist(tracks); err != nil {
		t.Fatalf("LoadPlaylist: %v", err)
	}
	if err := p.Play(0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	p.Pause()

	select {
	case idx := <-advanced:
		t.Fatalf("manual stop advanced the playlist to %d", idx)
	case <-time.After(200 * time.Millisecond):
	}
	if got := p.TrackIndex(); got != 0 {
		t.Errorf("track index %d after manual stop, want 0", got)
	}
}

func TestClipPlayerNextPrevious(t *testing.T) {
	clock := NewManualClock()
	p := NewClipPlayer(clock, newTestSink(t), nil)
	defer p.Close()

	tracks := []Track{
		{ID: "a", Buffer: makeBuffer(t, time.Second, 24000)},
		{ID: "b", Buffer: makeBuffer(t, 2*time.Second, 24000)},
	}
	if err := p.LoadPlaylist(tracks); err != nil {
		t.Fatalf("LoadPlaylist: %v", err)
	}

	if err := p.Previous(); !errors.Is(err, ErrNoClip) {
		t.Errorf("Previous at start: got %v, want ErrNoClip", err)
	}

	if err := p.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := p.TrackIndex(); got != 1 {
		t.Errorf("track index %d, want 1", got)
	}
	if got := p.Position(); got != 0 {
		t.Errorf("position %v at new track, want 0", got)
	}
	if p.Playing() {
		t.Error("Next while paused must not start playback")
	}

	if err := p.Next(); !errors.Is(err, ErrNoClip) {
		t.Errorf("Next past end: got %v, want ErrNoClip", err)
	}

	if err := p.Previous(); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if got := p.TrackIndex(); got != 0 {
		t.Errorf("track index %d, want 0", got)
	}
}

func TestClipPlayerLoadResetsState(t *testing.T) {
	clock := NewManualClock()
	p := NewClipPlayer(clock, newTestSink(t), nil)
	defer p.Close()

	tracks := []Track{
		{ID: "a", Buffer: makeBuffer(t, time.Second, 24000)},
		{ID: "b", Buffer: makeBuffer(t, time.Second, 24000)},
	}
	if err := p.LoadPlaylist(tracks); err != nil {
		t.Fatalf("LoadPlaylist: %v", err)
	}
	if err := p.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	p.Load(makeBuffer(t, 3*time.Second, 24000))

	if got := p.TrackIndex(); got != 0 {
		t.Errorf("track index %d after Load, want 0", got)
	}
	if got := p.Position(); got != 0 {
		t.Errorf("position %v after Load, want 0", got)
	}
	if err := p.Next(); !errors.Is(err, ErrNoClip) {
		t.Error("playlist should be discarded by Load")
	}
}
