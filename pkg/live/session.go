// Package live maintains a realtime speech-to-speech session with the
// Gemini Live API over WebSocket.
//
// A Session owns the socket and translates wire messages into typed
// events; a Conversation wires a Session to the capture pipeline, the
// playback scheduler, and the transcript reconciler.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"log/slog"
)

const (
	// liveURL is the Gemini Live bidirectional streaming endpoint.
	liveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	handshakeTimeout = 10 * time.Second
)

// State is the session lifecycle state. Transitions are one-way:
// Idle -> Connecting -> Listening -> Closed, with Closed reachable from
// every state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateListening  State = "listening"
	StateClosed     State = "closed"
)

// Sentinel errors for session misuse.
var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("live: missing API key")
	// ErrNotConnected is returned when sending before the session is
	// listening.
	ErrNotConnected = errors.New("live: session not connected")
	// ErrAlreadyStarted is returned when connecting twice.
	ErrAlreadyStarted = errors.New("live: session already started")
)

// Config holds the session configuration.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// Model is the live model resource name,
	// e.g. "models/gemini-2.0-flash-exp".
	Model string

	// Voice selects the prebuilt voice (Puck, Charon, Kore, Fenrir, Aoede).
	Voice string

	// SystemPrompt steers the model. Optional.
	SystemPrompt string

	// Endpoint overrides the live URL. For tests.
	Endpoint string
}

// Session is one WebSocket connection to the live backend.
type Session struct {
	id     string
	cfg    Config
	logger *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	mu    sync.Mutex
	state State

	events    chan Event
	reading   bool
	closeOnce sync.Once
}

// NewSession creates an idle session.
func NewSession(cfg Config, logger *slog.Logger) (*Session, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &Session{
		id:     id,
		cfg:    cfg,
		logger: logger.With("session_id", id),
		state:  StateIdle,
		events: make(chan Event, 64),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the event stream. The channel is closed after a
// ClosedEvent is delivered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Connect dials the backend and sends the setup message. The session
// moves to Connecting immediately and to Listening when the backend
// acknowledges setup; consume Events to observe the transition.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		prev := s.state
		s.mu.Unlock()
		if prev == StateClosed {
			return ErrNotConnected
		}
		return ErrAlreadyStarted
	}
	s.state = StateConnecting
	s.mu.Unlock()

	endpoint := s.cfg.Endpoint
	if endpoint == "" {
		endpoint = liveURL
	}
	url := fmt.Sprintf("%s?key=%s", endpoint, s.cfg.APIKey)

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		s.setState(StateClosed)
		return fmt.Errorf("live: failed to connect: %w", err)
	}

	s.wsMu.Lock()
	s.ws = ws
	s.wsMu.Unlock()

	if err := s.sendSetup(); err != nil {
		s.Close()
		return fmt.Errorf("live: failed to configure session: %w", err)
	}

	s.mu.Lock()
	s.reading = true
	s.mu.Unlock()
	go s.readLoop()

	s.logger.Info("live session connecting", "model", s.cfg.Model, "voice", s.cfg.Voice)
	return nil
}

// sendSetup sends the initial session configuration.
func (s *Session) sendSetup() error {
	generationConfig := map[string]any{
		"response_modalities": []string{"AUDIO"},
	}
	if s.cfg.Voice != "" {
		generationConfig["speech_config"] = map[string]any{
			"voice_config": map[string]any{
				"prebuilt_voice_config": map[string]any{
					"voice_name": s.cfg.Voice,
				},
			},
		}
	}

	setupBody := map[string]any{
		"model":                      s.cfg.Model,
		"generation_config":          generationConfig,
		"input_audio_transcription":  map[string]any{},
		"output_audio_transcription": map[string]any{},
	}
	if s.cfg.SystemPrompt != "" {
		setupBody["system_instruction"] = map[string]any{
			"parts": []map[string]any{{"text": s.cfg.SystemPrompt}},
		}
	}

	return s.sendJSON(map[string]any{"setup": setupBody})
}

// SendChunk sends one base64 PCM16 chunk on the uplink.
func (s *Session) SendChunk(data, mimeType string) error {
	if s.State() != StateListening {
		return ErrNotConnected
	}

	return s.sendJSON(map[string]any{
		"realtime_input": map[string]any{
			"media_chunks": []map[string]any{
				{"data": data, "mime_type": mimeType},
			},
		},
	})
}

// SendText sends a typed user turn, for text input alongside speech.
func (s *Session) SendText(text string) error {
	if s.State() != StateListening {
		return ErrNotConnected
	}

	return s.sendJSON(map[string]any{
		"client_content": map[string]any{
			"turns": []map[string]any{
				{
					"role":  "user",
					"parts": []map[string]any{{"text": text}},
				},
			},
			"turn_complete": true,
		},
	})
}

// Close tears the session down. Safe to call from any state, any number
// of times. A ClosedEvent is delivered and the event channel closed.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setState(StateClosed)

		s.wsMu.Lock()
		ws := s.ws
		s.wsMu.Unlock()

		s.mu.Lock()
		reading := s.reading
		s.mu.Unlock()

		if ws != nil {
			err = ws.Close()
		}
		if !reading {
			// No read loop to finish the channel.
			s.events <- ClosedEvent{}
			close(s.events)
		}
		s.logger.Info("live session closed")
	})
	return err
}

// readLoop pumps wire messages into the event channel. It owns the
// channel close.
func (s *Session) readLoop() {
	defer close(s.events)

	for {
		s.wsMu.Lock()
		ws := s.ws
		s.wsMu.Unlock()

		_, raw, err := ws.ReadMessage()
		if err != nil {
			if s.State() == StateClosed {
				s.events <- ClosedEvent{}
				return
			}
			s.setState(StateClosed)
			s.logger.Warn("live session read failed", "error", err)
			s.events <- ErrorEvent{Err: err}
			s.events <- ClosedEvent{Err: err}
			return
		}

		for _, ev := range parseServerMessage(raw) {
			if _, ok := ev.(SetupCompleteEvent); ok {
				s.setState(StateListening)
				s.logger.Info("live session listening")
			}
			s.events <- ev
		}
	}
}

// sendJSON writes one JSON message, serialized against concurrent
// senders.
func (s *Session) sendJSON(v any) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	if s.ws == nil {
		return ErrNotConnected
	}
	return s.ws.WriteJSON(v)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	// Closed is terminal.
	if s.state != StateClosed {
		s.state = state
	}
	s.mu.Unlock()
}
