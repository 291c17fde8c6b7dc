package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/reponsekdz2/go-newsvoice/pkg/audio"
	"github.com/reponsekdz2/go-newsvoice/pkg/audioio"
)

// ErrNoClip is returned when a transport control is used before a clip is
// loaded.
var ErrNoClip = errors.New("player: no clip loaded")

// endTolerance separates a clip that ran to its natural end from one that
// was stopped moments earlier by a transport control. Only a natural end
// advances the playlist.
const endTolerance = 100 * time.Millisecond

// Track is one narrated item in a playlist.
type Track struct {
	ID     string
	Title  string
	Buffer *audio.Buffer
}

// ClipPlayer plays a single decoded clip with pause/resume, seeking, and
// rate control, and auto-advances through a playlist when a clip ends
// naturally.
//
// Playback position is derived, not ticked: it is the offset at which the
// current run began plus the clock time elapsed since, scaled by the rate.
type ClipPlayer struct {
	clock  Clock
	sink   audioio.Sink
	logger *slog.Logger

	// OnAdvance is called after an automatic playlist advance, outside the
	// player lock. Optional.
	OnAdvance func(index int, track Track)
	// OnFinished is called when the last track ends naturally, outside the
	// player lock. Optional.
	OnFinished func()

	mu       sync.Mutex
	playlist []Track
	index    int
	buf      *audio.Buffer
	rate     float64
	playing  bool

	// startedAt and playOffset describe the current run; offset holds the
	// position while paused.
	startedAt  time.Duration
	playOffset time.Duration
	offset     time.Duration

	endTimer *time.Timer
	gen      uint64 // invalidates stale end timers
	closed   bool
}

// NewClipPlayer creates a stopped ClipPlayer writing to sink.
func NewClipPlayer(clock Clock, sink audioio.Sink, logger *slog.Logger) *ClipPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClipPlayer{
		clock:  clock,
		sink:   sink,
		logger: logger,
		rate:   1.0,
	}
}

// Load replaces the current clip, discarding any playlist, and leaves the
// player paused at offset zero.
func (p *ClipPlayer) Load(buf *audio.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.playlist = nil
	p.index = 0
	p.buf = buf
	p.offset = 0
	p.playing = false
}

// LoadPlaylist replaces the current clip with a playlist, positioned at its
// first track, paused at offset zero.
func (p *ClipPlayer) LoadPlaylist(tracks []Track) error {
	if len(tracks) == 0 {
		return ErrNoClip
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.playlist = make([]Track, len(tracks))
	copy(p.playlist, tracks)
	p.index = 0
	p.buf = p.playlist[0].Buffer
	p.offset = 0
	p.playing = false
	return nil
}

// Play starts playback from the given clip offset. A negative offset plays
// from the beginning; an offset past the end is clamped to the end.
func (p *ClipPlayer) Play(offset time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf == nil {
		return ErrNoClip
	}
	return p.playLocked(offset)
}

// Resume continues playback from the paused position. Resuming while
// already playing restarts the run from the current position, which is
// audibly a no-op.
func (p *ClipPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf == nil {
		return ErrNoClip
	}
	if p.playing {
		return p.playLocked(p.positionLocked())
	}
	return p.playLocked(p.offset)
}

// Pause freezes playback at the current position. Pausing while paused is
// a no-op.
func (p *ClipPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return
	}
	p.offset = p.positionLocked()
	p.stopLocked()
	p.playing = false
}

// Seek moves the position by delta, clamped to the clip bounds, preserving
// the play/pause state.
func (p *ClipPlayer) Seek(delta time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf == nil {
		return ErrNoClip
	}

	pos := p.positionLocked() + delta
	if pos < 0 {
		pos = 0
	}
	if max := p.buf.Duration(); pos > max {
		pos = max
	}

	if p.playing {
		return p.playLocked(pos)
	}
	p.offset = pos
	return nil
}

// SetRate changes the playback rate. Rates at or below zero are rejected.
// If the clip is playing, the run restarts at the current position with
// the new rate.
func (p *ClipPlayer) SetRate(rate float64) error {
	if rate <= 0 {
		return errors.New("player: rate must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		p.rate = rate
		return nil
	}
	pos := p.positionLocked()
	p.rate = rate
	return p.playLocked(pos)
}

// Next jumps to the next playlist track, preserving the play/pause state.
func (p *ClipPlayer) Next() error {
	return p.jump(+1)
}

// Previous jumps to the previous playlist track, preserving the play/pause
// state.
func (p *ClipPlayer) Previous() error {
	return p.jump(-1)
}

func (p *ClipPlayer) jump(step int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.index + step
	if next < 0 || next >= len(p.playlist) {
		return ErrNoClip
	}

	wasPlaying := p.playing
	p.stopLocked()
	p.index = next
	p.buf = p.playlist[next].Buffer
	p.offset = 0
	p.playing = false

	if wasPlaying {
		return p.playLocked(0)
	}
	return nil
}

// Position returns the current playback position within the clip.
func (p *ClipPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// Playing reports whether the player is currently playing.
func (p *ClipPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// TrackIndex returns the current playlist position, zero for a bare clip.
func (p *ClipPlayer) TrackIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Rate returns the current playback rate.
func (p *ClipPlayer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// Close stops playback and rejects further transport controls.
func (p *ClipPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.stopLocked()
	p.playing = false
	p.closed = true
	p.buf = nil
	p.playlist = nil
}

// playLocked starts a run from offset. Caller holds p.mu and has checked
// p.buf.
func (p *ClipPlayer) playLocked(offset time.Duration) error {
	if p.closed {
		return ErrNoClip
	}

	p.stopLocked()

	dur := p.buf.Duration()
	if offset < 0 {
		offset = 0
	}
	if offset > dur {
		offset = dur
	}

	p.playOffset = offset
	p.startedAt = p.clock.Now()
	p.playing = true

	if err := p.writeRemaining(offset); err != nil {
		p.playing = false
		return err
	}

	remaining := dur - offset
	scaled := time.Duration(float64(remaining) / p.rate)
	p.gen++
	gen := p.gen
	p.endTimer = time.AfterFunc(scaled, func() { p.onEnd(gen) })
	return nil
}

// writeRemaining hands the tail of the clip from offset onward to the
// sink, resampled if the rate is not 1x. Caller holds p.mu.
func (p *ClipPlayer) writeRemaining(offset time.Duration) error {
	startFrame := int(float64(offset) / float64(time.Second) * float64(p.buf.SampleRate))
	if startFrame > p.buf.Frames() {
		startFrame = p.buf.Frames()
	}

	tail := &audio.Buffer{
		Data:       make([][]float32, p.buf.Channels()),
		SampleRate: p.buf.SampleRate,
	}
	for ch := range p.buf.Data {
		tail.Data[ch] = p.buf.Data[ch][startFrame:]
	}

	samples := audioio.BytesToSamples(tail.PCM16())
	if p.rate != 1.0 {
		// Squeezing the samples into fewer (or more) frames at the sink's
		// fixed rate plays them faster (or slower).
		samples = audioio.Resample(samples, p.buf.SampleRate, int(float64(p.buf.SampleRate)/p.rate))
	}

	chunk := audioio.AudioChunk{
		Samples:    samples,
		SampleRate: p.buf.SampleRate,
		Channels:   p.buf.Channels(),
	}
	return p.sink.Write(context.Background(), chunk)
}

// stopLocked cancels the pending end timer and flushes queued audio out of
// the sink. Caller holds p.mu.
func (p *ClipPlayer) stopLocked() {
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
	p.gen++
	if err := p.sink.Clear(); err != nil {
		p.logger.Warn("failed to clear sink", "error", err)
	}
}

// onEnd fires when the scheduled run length elapses.
func (p *ClipPlayer) onEnd(gen uint64) {
	p.mu.Lock()

	if p.closed || gen != p.gen || !p.playing || p.buf == nil {
		p.mu.Unlock()
		return
	}

	dur := p.buf.Duration()
	pos := p.positionLocked()

	// A run that ends more than the tolerance short of the clip was cut off
	// by a control, not by running out of audio; leave the position alone.
	if pos < dur-endTolerance {
		p.mu.Unlock()
		return
	}

	p.playing = false
	p.offset = dur
	p.endTimer = nil

	// Natural end: advance through the playlist.
	if p.index+1 < len(p.playlist) {
		p.index++
		p.buf = p.playlist[p.index].Buffer
		p.offset = 0
		idx := p.index
		track := p.playlist[idx]
		onAdvance := p.OnAdvance
		if err := p.playLocked(0); err != nil {
			p.logger.Warn("failed to start next track", "error", err, "track", track.ID)
		}
		p.mu.Unlock()

		if onAdvance != nil {
			onAdvance(idx, track)
		}
		return
	}

	onFinished := p.OnFinished
	p.mu.Unlock()

	if onFinished != nil {
		onFinished()
	}
}

// positionLocked derives the current clip position. Caller holds p.mu.
func (p *ClipPlayer) positionLocked() time.Duration {
	if !p.playing {
		return p.offset
	}
	elapsed := p.clock.Now() - p.startedAt
	pos := p.playOffset + time.Duration(float64(elapsed)*p.rate)
	if p.buf != nil {
		if max := p.buf.Duration(); pos > max {
			return max
		}
	}
	return pos
}
