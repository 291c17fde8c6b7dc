package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoSink plays audio through the system speaker via oto.
//
// The sink keeps an internal byte buffer; oto pulls from it on its own
// realtime thread through the io.Reader it is handed. Write never blocks
// on the audio hardware.
type OtoSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	running bool
	closed  bool

	otoCtx *oto.Context
	player *oto.Player
	buf    []byte

	chunksWritten atomic.Int64
}

// newOtoSink creates a speaker sink. The output device is not opened until
// Start.
func newOtoSink(cfg Config, logger *slog.Logger) (*OtoSink, error) {
	s := &OtoSink{
		cfg:    cfg,
		logger: logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Start opens the output device.
func (s *OtoSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   s.cfg.SampleRate,
		ChannelCount: s.cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("oto: create context: %w", err)
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.otoCtx = otoCtx
	s.running = true
	s.buf = s.buf[:0]

	s.logger.Info("speaker output started",
		"backend", s.Name(),
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
	)

	return nil
}

// Write queues a chunk for playback. Playback begins on the first write.
func (s *OtoSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}

	s.buf = append(s.buf, chunk.Bytes()...)
	s.chunksWritten.Add(1)

	if s.player == nil {
		s.player = s.otoCtx.NewPlayer(&sinkReader{sink: s})
		s.player.Play()
	}

	s.cond.Signal()
	return nil
}

// sinkReader is the pull side handed to oto.
type sinkReader struct {
	sink *OtoSink
}

func (r *sinkReader) Read(p []byte) (int, error) {
	s := r.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed && s.running {
		s.cond.Wait()
	}

	if len(s.buf) == 0 {
		// Drained after close/stop: feed silence so oto winds down cleanly.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush waits until all queued audio has been handed to the device.
func (s *OtoSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		pending := len(s.buf)
		player := s.player
		s.mu.Unlock()

		if pending == 0 && (player == nil || player.BufferedSize() == 0) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Clear discards buffered audio and resets the device-side queue.
// Used for barge-in interruption.
func (s *OtoSink) Clear() error {
	s.mu.Lock()
	s.buf = s.buf[:0]
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		player.Close()
	}
	return nil
}

// Stop halts playback.
func (s *OtoSink) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.buf = s.buf[:0]
	player := s.player
	s.player = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}

	s.logger.Info("speaker output stopped", "chunks", s.chunksWritten.Load())
	return nil
}

// Config returns the audio configuration.
func (s *OtoSink) Config() Config {
	return s.cfg
}

// Name returns "oto".
func (s *OtoSink) Name() string {
	return "oto"
}

// Close releases resources. Closing twice is a no-op.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	otoCtx := s.otoCtx
	s.otoCtx = nil
	s.mu.Unlock()

	if otoCtx != nil {
		otoCtx.Suspend()
	}
	return nil
}

var _ Sink = (*OtoSink)(nil)
