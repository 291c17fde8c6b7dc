package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reponsekdz2/go-newsvoice/pkg/audio"
	"github.com/reponsekdz2/go-newsvoice/pkg/audioio"
	"github.com/reponsekdz2/go-newsvoice/pkg/capture"
	"github.com/reponsekdz2/go-newsvoice/pkg/transcript"
)

func convSource(t *testing.T, opts ...audioio.MockSourceOption) *audioio.MockSource {
	t.Helper()
	cfg := audioio.Config{
		Backend:    audioio.BackendMock,
		SampleRate: audioio.CaptureRate,
		Channels:   1,
		FrameSize:  160,
	}
	return audioio.NewMockSource(cfg, nil, opts...)
}

func convSink(t *testing.T) *audioio.MockSink {
	t.Helper()
	cfg := audioio.DefaultPlaybackConfig()
	cfg.Backend = audioio.BackendMock
	return audioio.NewMockSink(cfg, nil)
}

func TestConversationEndToEnd(t *testing.T) {
	gotMicChunk := make(chan struct{})
	endpoint := liveTestServer(t, func(conn *websocket.Conn) {
		if !ackSetup(t, conn) {
			return
		}

		// Wait for microphone audio before replying.
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if _, ok := msg["realtime_input"]; ok {
				break
			}
		}
		close(gotMicChunk)

		reply := audio.EncodeBase64(make([]byte, 4800)) // 100ms of silence
		msgs := []map[string]any{
			{"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": reply}},
					},
				},
			}},
			{"serverContent": map[string]any{"inputTranscription": map[string]any{"text": "what's the news"}}},
			{"serverContent": map[string]any{"outputTranscription": map[string]any{"text": "Here are today's headlines."}}},
			{"serverContent": map[string]any{"turnComplete": true}},
		}
		for _, msg := range msgs {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	source := convSource(t, audioio.WithSineWave(440, 0.5))
	sink := convSink(t)

	conv, err := NewConversation(testConfig(endpoint), source, sink, nil)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	entries := make(chan transcript.Entry, 4)
	conv.OnEntry = func(e transcript.Entry) { entries <- e }

	if err := conv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer conv.Close()

	select {
	case <-gotMicChunk:
	case <-time.After(3 * time.Second):
		t.Fatal("server never received microphone audio")
	}

	// The turn flushes user before model.
	select {
	case e := <-entries:
		if e.Speaker != transcript.SpeakerUser || e.Text != "what's the news" {
			t.Errorf("first entry %+v, want user question", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no transcript entry delivered")
	}
	select {
	case e := <-entries:
		if e.Speaker != transcript.SpeakerModel {
			t.Errorf("second entry %+v, want model answer", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("model entry never delivered")
	}

	// The model's audio reached the speaker path.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(sink.Written()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(sink.Written()) == 0 {
		t.Error("model audio never reached the sink")
	}

	if err := conv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// Every resource is released exactly once, on every path.
	if source.Running() {
		t.Error("microphone still capturing after close")
	}
	if conv.State() != StateClosed {
		t.Errorf("state %s after close, want closed", conv.State())
	}
	if err := conv.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case <-conv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done never closed")
	}
}

func TestConversationInterruptStopsPlayback(t *testing.T) {
	source := convSource(t)
	sink := convSink(t)

	conv, err := NewConversation(Config{APIKey: "test-key"}, source, sink, nil)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if err := sink.Start(context.Background()); err != nil {
		t.Fatalf("sink start: %v", err)
	}

	// Feed the reducer directly: audio, then an interruption.
	chunk := audio.EncodeBase64(make([]byte, 48000)) // 1s
	conv.handleEvent(AudioEvent{Data: chunk, MIMEType: "audio/pcm;rate=24000"})
	if conv.scheduler.Cursor() == 0 {
		t.Fatal("audio chunk did not advance the playback cursor")
	}

	conv.handleEvent(InterruptedEvent{})
	if got := conv.scheduler.Cursor(); got != 0 {
		t.Errorf("cursor %v after interrupt, want 0", got)
	}
	if sink.Cleared() != 1 {
		t.Errorf("sink cleared %d times, want 1", sink.Cleared())
	}

	// Audio after the interruption schedules from current time.
	conv.handleEvent(AudioEvent{Data: chunk, MIMEType: "audio/pcm;rate=24000"})
	if conv.scheduler.ActiveCount() == 0 {
		t.Error("post-interrupt audio was not scheduled")
	}
}

func TestConversationTurnCompleteFlushesTranscript(t *testing.T) {
	source := convSource(t)
	sink := convSink(t)

	conv, err := NewConversation(Config{APIKey: "test-key"}, source, sink, nil)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	var entries []transcript.Entry
	conv.OnEntry = func(e transcript.Entry) { entries = append(entries, e) }

	conv.handleEvent(TranscriptEvent{Speaker: transcript.SpeakerModel, Text: "Top story: ", Final: false})
	conv.handleEvent(TranscriptEvent{Speaker: transcript.SpeakerUser, Text: "headlines please", Final: true})
	conv.handleEvent(TranscriptEvent{Speaker: transcript.SpeakerModel, Text: "markets rallied.", Final: true})

	if len(entries) != 0 {
		t.Fatal("entries flushed before turn completion")
	}

	conv.handleEvent(TurnCompleteEvent{})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Speaker != transcript.SpeakerUser {
		t.Errorf("user entry must come first, got %s", entries[0].Speaker)
	}
	if entries[1].Text != "Top story: markets rallied." {
		t.Errorf("model text %q", entries[1].Text)
	}

	// An empty turn appends nothing.
	conv.handleEvent(TurnCompleteEvent{})
	if len(entries) != 2 {
		t.Errorf("empty turn appended entries: %d", len(entries))
	}
}

func TestConversationMicrophoneFailureSurfaces(t *testing.T) {
	deviceErr := errors.New("device busy")
	source := convSource(t, audioio.WithStartFailure(deviceErr))
	sink := convSink(t)

	conv, err := NewConversation(Config{APIKey: "test-key"}, source, sink, nil)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	var got error
	conv.OnError = func(err error) { got = err }

	conv.handleEvent(SetupCompleteEvent{})
	if !errors.Is(got, capture.ErrMicrophoneAccess) {
		t.Errorf("expected ErrMicrophoneAccess, got %v", got)
	}
}

func TestConversationConnectFailureReleasesSink(t *testing.T) {
	source := convSource(t)
	sink := convSink(t)

	// Nothing listens on this port; Connect must fail.
	conv, err := NewConversation(testConfig("ws://127.0.0.1:1"), source, sink, nil)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	if err := conv.Start(context.Background()); err == nil {
		t.Fatal("Start should fail against an unreachable endpoint")
	}

	// The error exit must not leave the output device running.
	if sink.Running() {
		t.Error("sink still running after failed start")
	}
	if source.Running() {
		t.Error("source still running after failed start")
	}
	if conv.State() != StateClosed {
		t.Errorf("state %s after failed start, want closed", conv.State())
	}
	select {
	case <-conv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done never closed after failed start")
	}
}

func TestConversationCloseBeforeStart(t *testing.T) {
	conv, err := NewConversation(Config{APIKey: "test-key"}, convSource(t), convSink(t), nil)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if err := conv.Close(); err != nil {
		t.Errorf("Close before Start: %v", err)
	}
	if conv.State() != StateClosed {
		t.Errorf("state %s, want closed", conv.State())
	}
}
