package capture

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/reponsekdz2/go-newsvoice/pkg/audio"
	"github.com/reponsekdz2/go-newsvoice/pkg/audioio"
)

func mockSource(t *testing.T, opts ...audioio.MockSourceOption) *audioio.MockSource {
	t.Helper()
	cfg := audioio.Config{
		Backend:    audioio.BackendMock,
		SampleRate: 16000,
		Channels:   1,
		FrameSize:  160, // 10ms device buffers
	}
	return audioio.NewMockSource(cfg, nil, opts...)
}

func TestPipelineReWindowsDeviceBuffers(t *testing.T) {
	chunks := make(chan Chunk, 16)
	src := mockSource(t, audioio.WithSineWave(440, 0.5))

	// Device emits 160-sample buffers; the pipeline emits 480-sample frames.
	p := New(src, func(c Chunk) { chunks <- c }, nil, WithFrameSize(480))

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	select {
	case c := <-chunks:
		if c.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("mime type %q, want audio/pcm;rate=16000", c.MIMEType)
		}
		raw, err := audio.DecodeBase64(c.Data)
		if err != nil {
			t.Fatalf("chunk payload not valid base64: %v", err)
		}
		if len(raw) != 480*2 {
			t.Errorf("frame size %d bytes, want %d", len(raw), 480*2)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk emitted")
	}
}

func TestPipelineMicrophoneAccessError(t *testing.T) {
	backendErr := errors.New("device busy")
	src := mockSource(t, audioio.WithStartFailure(backendErr))

	p := New(src, nil, nil)
	err := p.Start(context.Background())
	if !errors.Is(err, ErrMicrophoneAccess) {
		t.Errorf("expected ErrMicrophoneAccess, got %v", err)
	}
	if p.Running() {
		t.Error("pipeline running after failed start")
	}
}

func TestPipelineStopIdempotent(t *testing.T) {
	src := mockSource(t)
	p := New(src, nil, nil)

	// Stopping before starting is a no-op.
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.Running() {
		t.Fatal("pipeline should be running")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if p.Running() {
		t.Error("pipeline running after stop")
	}
	if src.Running() {
		t.Error("source still capturing after pipeline stop")
	}
}

func TestPipelineCloseReleasesSource(t *testing.T) {
	src := mockSource(t)
	p := New(src, nil, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := p.Start(context.Background()); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Start after Close: got %v, want ErrClosedPipe", err)
	}
}

func TestPipelineStartWhileRunningIsNoOp(t *testing.T) {
	src := mockSource(t)
	p := New(src, nil, nil)
	defer p.Close()

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
}
