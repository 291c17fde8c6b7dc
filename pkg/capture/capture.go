// Package capture turns microphone input into the base64 PCM chunks the
// live session uplink expects.
//
// The pipeline reads raw samples from an audioio.Source, re-windows them
// into fixed-size frames regardless of how the device slices its buffers,
// and hands each frame to the chunk callback already encoded for the wire.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/reponsekdz2/go-newsvoice/pkg/audio"
	"github.com/reponsekdz2/go-newsvoice/pkg/audioio"
)

// ErrMicrophoneAccess is returned when the capture device cannot be
// opened. It wraps the backend error.
var ErrMicrophoneAccess = errors.New("capture: microphone access denied")

// levelLogEvery is how many frames pass between input-level debug logs.
const levelLogEvery = 32

// Chunk is one encoded frame ready for the uplink.
type Chunk struct {
	// Data is base64-encoded little-endian PCM16.
	Data string `json:"data"`
	// MIMEType describes the payload, e.g. "audio/pcm;rate=16000".
	MIMEType string `json:"mimeType"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFrameSize overrides the emitted frame size (samples per chunk).
// Defaults to the source's configured frame size.
func WithFrameSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.frameSize = n
		}
	}
}

// Pipeline captures from a source and emits encoded chunks.
type Pipeline struct {
	source    audioio.Source
	onChunk   func(Chunk)
	logger    *slog.Logger
	frameSize int
	mimeType  string

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	emitted uint64
}

// New creates a Pipeline reading from source. onChunk is called from the
// pipeline goroutine for every emitted frame; it must not block for long.
func New(source audioio.Source, onChunk func(Chunk), logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := source.Config()
	p := &Pipeline{
		source:    source,
		onChunk:   onChunk,
		logger:    logger,
		frameSize: cfg.FrameSize,
		mimeType:  fmt.Sprintf("audio/pcm;rate=%d", cfg.SampleRate),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start opens the device and begins emitting chunks. Starting a running
// pipeline is a no-op. A device failure is reported as ErrMicrophoneAccess.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}

	if err := p.source.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrMicrophoneAccess, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.run(runCtx)

	p.logger.Info("capture started",
		"backend", p.source.Name(),
		"frame_size", p.frameSize,
		"mime_type", p.mimeType,
	)
	return nil
}

// run reads device buffers and re-windows them into frames.
func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)

	var pending []int16
	for {
		chunk, err := p.source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Warn("capture read failed", "error", err)
			return
		}

		pending = append(pending, chunk.Samples...)
		for len(pending) >= p.frameSize {
			frame := make([]int16, p.frameSize)
			copy(frame, pending[:p.frameSize])
			pending = pending[p.frameSize:]
			p.emit(frame)
		}
	}
}

// emit encodes one frame and delivers it.
func (p *Pipeline) emit(frame []int16) {
	chunk := Chunk{
		Data:     audio.EncodeBase64(audioio.SamplesToBytes(frame)),
		MIMEType: p.mimeType,
	}

	p.mu.Lock()
	p.emitted++
	emitted := p.emitted
	onChunk := p.onChunk
	p.mu.Unlock()

	if emitted%levelLogEvery == 0 {
		p.logger.Debug("input level",
			"rms", audioio.CalculateRMS(frame),
			"chunks", emitted,
		)
	}

	if onChunk != nil {
		onChunk(chunk)
	}
}

// Stop halts capture and waits for the pipeline goroutine to exit.
// Stopping a stopped pipeline is a no-op. The device stays open; Start
// resumes capture.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	done := p.done
	p.mu.Unlock()

	err := p.source.Stop()
	<-done

	p.logger.Debug("capture stopped", "chunks_emitted", p.Emitted())
	return err
}

// Close stops capture and releases the device. Safe to call multiple
// times and on a pipeline that never started.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	stopErr := p.Stop()
	closeErr := p.source.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}

// Running reports whether the pipeline is capturing.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Emitted returns the number of chunks emitted since creation.
func (p *Pipeline) Emitted() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emitted
}
