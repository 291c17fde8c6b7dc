package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Backend:    BackendMock,
		SampleRate: 16000,
		Channels:   1,
		FrameSize:  160, // 10ms frames keep the tests fast
	}
}

func TestMockSourceEmitsFrames(t *testing.T) {
	src := NewMockSource(testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer src.Close()

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}

	if len(chunk.Samples) != 160 {
		t.Errorf("expected 160 samples, got %d", len(chunk.Samples))
	}
	if chunk.SampleRate != 16000 {
		t.Errorf("expected rate 16000, got %d", chunk.SampleRate)
	}
	if chunk.Duration() != 10*time.Millisecond {
		t.Errorf("expected 10ms duration, got %v", chunk.Duration())
	}
}

func TestMockSourceSineWave(t *testing.T) {
	src := NewMockSource(testConfig(), nil, WithSineWave(440, 0.5))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer src.Close()

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}

	if CalculateRMS(chunk.Samples) == 0 {
		t.Error("expected non-silent sine output")
	}
}

func TestMockSourceStopEndsStream(t *testing.T) {
	src := NewMockSource(testConfig(), nil)

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	// Second stop is a no-op.
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}

	// Drain anything emitted before the stop, then expect EOF.
	readCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	for {
		_, err := src.Read(readCtx)
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF after stop, got %v", err)
		}
		break
	}
}

func TestMockSourceStopWhileGenerating(t *testing.T) {
	// Stop while the generator is mid-send must not close the stream
	// channel out from under it.
	cfg := testConfig()
	cfg.FrameSize = 16 // 1ms frames keep the generator busy

	for i := 0; i < 25; i++ {
		src := NewMockSource(cfg, nil)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)

		if err := src.Start(ctx); err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
		go src.Stop()

		for {
			_, err := src.Read(ctx)
			if err == nil {
				continue
			}
			if !errors.Is(err, io.EOF) {
				t.Fatalf("expected io.EOF after stop, got %v", err)
			}
			break
		}
		cancel()
	}
}

func TestMockSourceStartFailure(t *testing.T) {
	want := errors.New("no such device")
	src := NewMockSource(testConfig(), nil, WithStartFailure(want))

	if err := src.Start(context.Background()); !errors.Is(err, want) {
		t.Errorf("expected injected failure, got %v", err)
	}
}

func TestMockSinkRecordsAndClears(t *testing.T) {
	sink := NewMockSink(testConfig(), nil)
	ctx := context.Background()

	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	chunk := AudioChunk{Samples: make([]int16, 160), SampleRate: 16000, Channels: 1}
	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	if got := len(sink.Written()); got != 2 {
		t.Errorf("expected 2 written chunks, got %d", got)
	}

	if err := sink.Clear(); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if got := len(sink.Written()); got != 0 {
		t.Errorf("expected 0 chunks after clear, got %d", got)
	}
	if sink.Cleared() != 1 {
		t.Errorf("expected 1 clear, got %d", sink.Cleared())
	}
}

func TestMockSinkClosedRejectsWrites(t *testing.T) {
	sink := NewMockSink(testConfig(), nil)
	ctx := context.Background()

	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	// Closing twice must not fail.
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	chunk := AudioChunk{Samples: make([]int16, 160), SampleRate: 16000, Channels: 1}
	if err := sink.Write(ctx, chunk); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("expected ErrClosedPipe after close, got %v", err)
	}
}
