package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reponsekdz2/go-newsvoice/pkg/audio"
	"github.com/reponsekdz2/go-newsvoice/pkg/audioio"
)

// Scheduler plays an arriving stream of audio chunks belonging to one
// continuous model turn back-to-back, with no gap and no overlap,
// regardless of arrival jitter.
//
// The single serialization point is the cursor: each chunk is scheduled to
// start exactly where the previous chunk ends (or now, whichever is
// later), and the cursor advances by the chunk's duration. On interruption
// every live source is hard-stopped and the cursor resets, so the next
// turn starts from the current clock time instead of a stale future point.
type Scheduler struct {
	clock  Clock
	sink   audioio.Sink
	logger *slog.Logger

	mu        sync.Mutex
	nextStart time.Duration // zero = unset; next chunk starts at max(this, now)
	active    map[uint64]*streamSource
	nextID    uint64
	closed    bool
}

// streamSource is one scheduled-but-not-finished chunk.
type streamSource struct {
	id      uint64
	buf     *audio.Buffer
	startAt time.Duration
	start   *time.Timer
	end     *time.Timer
}

// NewScheduler creates a Scheduler writing to sink on the given clock.
func NewScheduler(clock Clock, sink audioio.Sink, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clock,
		sink:   sink,
		logger: logger,
		active: make(map[uint64]*streamSource),
	}
}

// EnqueueEncoded decodes a base64 PCM16 chunk and schedules it.
// A malformed chunk is logged and dropped; playback continues with the
// next valid chunk. The returned error reports the drop to the caller.
func (s *Scheduler) EnqueueEncoded(data string, sampleRate, channels int) error {
	raw, err := audio.DecodeBase64(data)
	if err != nil {
		s.logger.Warn("dropping undecodable audio chunk", "error", err)
		return err
	}

	buf, err := audio.PCM16ToFloat(raw, sampleRate, channels)
	if err != nil {
		s.logger.Warn("dropping misaligned audio chunk", "error", err, "bytes", len(raw))
		return err
	}

	s.Enqueue(buf)
	return nil
}

// Enqueue schedules buf to start exactly when the previously enqueued
// chunk ends, never in the past. Returns the start time assigned on the
// playback clock.
func (s *Scheduler) Enqueue(buf *audio.Buffer) time.Duration {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return 0
	}

	now := s.clock.Now()
	startAt := s.nextStart
	if startAt < now {
		// Decode or delivery outran the cursor; never schedule in the past.
		startAt = now
	}

	s.nextID++
	id := s.nextID
	src := &streamSource{id: id, buf: buf, startAt: startAt}
	s.active[id] = src
	s.nextStart = startAt + buf.Duration()

	src.start = time.AfterFunc(startAt-now, func() { s.fire(id) })
	s.mu.Unlock()

	return startAt
}

// fire hands the chunk to the sink at its scheduled start time.
func (s *Scheduler) fire(id uint64) {
	s.mu.Lock()
	src, ok := s.active[id]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	src.end = time.AfterFunc(src.buf.Duration(), func() { s.complete(id) })
	sink := s.sink
	buf := src.buf
	s.mu.Unlock()

	var chunk audioio.AudioChunk
	chunk.FromBytes(buf.PCM16(), buf.SampleRate, buf.Channels())
	if err := sink.Write(context.Background(), chunk); err != nil {
		s.logger.Warn("sink rejected scheduled chunk", "error", err)
	}
}

// complete removes a source that finished playing naturally.
func (s *Scheduler) complete(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Interrupt hard-stops every live source, clears the set, and resets the
// cursor. The state mutation completes before Interrupt returns, so a
// chunk arriving afterwards is always scheduled against current time.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	for _, src := range s.active {
		if src.start != nil {
			src.start.Stop()
		}
		if src.end != nil {
			src.end.Stop()
		}
	}
	stopped := len(s.active)
	s.active = make(map[uint64]*streamSource)
	s.nextStart = 0
	sink := s.sink
	s.mu.Unlock()

	if err := sink.Clear(); err != nil {
		s.logger.Warn("failed to clear sink on interrupt", "error", err)
	}
	if stopped > 0 {
		s.logger.Debug("playback interrupted", "sources_stopped", stopped)
	}
}

// ActiveCount returns the number of scheduled-but-not-finished sources.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the time at which the next chunk would be scheduled,
// zero if unset.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Close stops all sources and rejects further chunks.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, src := range s.active {
		if src.start != nil {
			src.start.Stop()
		}
		if src.end != nil {
			src.end.Stop()
		}
	}
	s.active = make(map[uint64]*streamSource)
	s.nextStart = 0
	s.mu.Unlock()
}
