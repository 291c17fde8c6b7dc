package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoSource captures microphone audio via miniaudio.
type MalgoSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	// pending accumulates device callback samples until a full frame is
	// available. Touched only with mu held.
	pending []int16

	streamCh chan AudioChunk

	chunksRead atomic.Int64
	overruns   atomic.Int64
}

// newMalgoSource creates a microphone source. The device is not opened
// until Start.
func newMalgoSource(cfg Config, logger *slog.Logger) (*MalgoSource, error) {
	return &MalgoSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan AudioChunk, 16),
	}, nil
}

// Start opens the capture device and begins streaming frames.
func (s *MalgoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return fmt.Errorf("malgo: init context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.onDeviceData(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		return fmt.Errorf("malgo: init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		return fmt.Errorf("malgo: start capture device: %w", err)
	}

	s.malgoCtx = malgoCtx
	s.device = device
	s.running = true
	s.streamCh = make(chan AudioChunk, 16)
	s.pending = s.pending[:0]

	s.logger.Info("microphone capture started",
		"backend", s.Name(),
		"sample_rate", s.cfg.SampleRate,
		"frame_size", s.cfg.FrameSize,
	)

	return nil
}

// onDeviceData runs on the miniaudio thread. It appends samples and emits
// whole frames without blocking.
func (s *MalgoSource) onDeviceData(input []byte) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.pending = append(s.pending, BytesToSamples(input)...)

	frameSamples := s.cfg.FrameSize * s.cfg.Channels
	for len(s.pending) >= frameSamples {
		frame := make([]int16, frameSamples)
		copy(frame, s.pending[:frameSamples])
		s.pending = s.pending[frameSamples:]

		chunk := AudioChunk{
			Samples:    frame,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
		}
		select {
		case s.streamCh <- chunk:
			s.chunksRead.Add(1)
		default:
			// Consumer is behind; drop rather than stall the audio thread.
			s.overruns.Add(1)
		}
	}
	s.mu.Unlock()
}

// Read returns the next captured frame.
func (s *MalgoSource) Read(ctx context.Context) (AudioChunk, error) {
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-s.streamCh:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stop halts capture and releases the device.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	device := s.device
	malgoCtx := s.malgoCtx
	streamCh := s.streamCh
	s.device = nil
	s.malgoCtx = nil
	// Released before stopping the device: the miniaudio data callback
	// takes this mutex and device.Stop waits for it to drain.
	s.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Uninit()
	}
	if malgoCtx != nil {
		malgoCtx.Uninit()
	}
	close(streamCh)

	s.logger.Info("microphone capture stopped",
		"chunks", s.chunksRead.Load(),
		"overruns", s.overruns.Load(),
	)

	return nil
}

// Config returns the audio configuration.
func (s *MalgoSource) Config() Config {
	return s.cfg
}

// Name returns "malgo".
func (s *MalgoSource) Name() string {
	return "malgo"
}

// Close releases resources.
func (s *MalgoSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

var _ Source = (*MalgoSource)(nil)
