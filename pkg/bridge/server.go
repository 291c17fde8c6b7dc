// Package bridge exposes the realtime conversation to browser clients.
//
// It serves a small HTTP API for session state and transcript history,
// and fans live transcript updates out to WebSocket subscribers through
// broadcast hubs.
package bridge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/reponsekdz2/go-newsvoice/pkg/hub"
	"github.com/reponsekdz2/go-newsvoice/pkg/transcript"
)

// transcriptBacklog bounds the history replayed to new subscribers.
const transcriptBacklog = 200

// SessionState is the conversation status shown on the portal.
type SessionState struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	MicActive bool   `json:"mic_active"`
	Entries   int    `json:"entries"`
	UpdatedAt string `json:"updated_at"`
}

// TranscriptMessage is one update on the transcript stream.
type TranscriptMessage struct {
	// Kind is "entry" for finalized lines, "interim" for in-progress text.
	Kind    string `json:"kind"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Time    string `json:"time"`
}

// Server is the browser-facing bridge.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	state   SessionState
	stateMu sync.RWMutex

	entries   []TranscriptMessage
	entriesMu sync.RWMutex

	transcriptHub *hub.Hub
	stateHub      *hub.Hub

	// OnSay is invoked for POST /api/say with the typed text. Optional.
	OnSay func(text string) error
}

// NewServer creates a bridge server listening on the given port.
func NewServer(port string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		port:          port,
		logger:        logger.With("component", "bridge"),
		entries:       make([]TranscriptMessage, 0, transcriptBacklog),
		transcriptHub: hub.New("transcript", logger),
		stateHub:      hub.New("state", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "newsvoice bridge",
		DisableStartupMessage: true,
	})

	// CORS for the portal frontend during development.
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/transcript", s.handleTranscript)
	api.Post("/say", s.handleSay)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/transcript", websocket.New(s.handleTranscriptWS))
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	s.app = app
	return s
}

// Start runs the hubs and blocks serving HTTP.
func (s *Server) Start() error {
	go s.transcriptHub.Run()
	go s.stateHub.Run()

	s.logger.Info("bridge listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("bridge server failed", "error", err)
		}
	}()
}

// Shutdown stops the hubs and the HTTP listener.
func (s *Server) Shutdown() error {
	s.transcriptHub.Stop()
	s.stateHub.Stop()
	return s.app.Shutdown()
}

// UpdateState mutates the session state and broadcasts it.
func (s *Server) UpdateState(update func(*SessionState)) {
	s.stateMu.Lock()
	update(&s.state)
	s.state.UpdatedAt = time.Now().Format(time.RFC3339)
	state := s.state
	s.stateMu.Unlock()

	s.stateHub.BroadcastJSON(state)
}

// PublishEntry records a finalized transcript line and broadcasts it.
func (s *Server) PublishEntry(entry transcript.Entry) {
	msg := TranscriptMessage{
		Kind:    "entry",
		Speaker: string(entry.Speaker),
		Text:    entry.Text,
		Time:    time.Now().Format("15:04:05"),
	}

	s.entriesMu.Lock()
	s.entries = append(s.entries, msg)
	if len(s.entries) > transcriptBacklog {
		s.entries = s.entries[1:]
	}
	count := len(s.entries)
	s.entriesMu.Unlock()

	s.transcriptHub.BroadcastJSON(msg)
	s.UpdateState(func(st *SessionState) { st.Entries = count })
}

// PublishInterim broadcasts in-progress text without recording it.
func (s *Server) PublishInterim(speaker transcript.Speaker, text string) {
	s.transcriptHub.BroadcastJSON(TranscriptMessage{
		Kind:    "interim",
		Speaker: string(speaker),
		Text:    text,
		Time:    time.Now().Format("15:04:05"),
	})
}

// State returns a copy of the current session state.
func (s *Server) State() SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.State())
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	s.entriesMu.RLock()
	out := make([]TranscriptMessage, len(s.entries))
	copy(out, s.entries)
	s.entriesMu.RUnlock()

	return c.JSON(out)
}

func (s *Server) handleSay(c *fiber.Ctx) error {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if body.Text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text required")
	}
	if s.OnSay == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no active session")
	}
	if err := s.OnSay(body.Text); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// handleTranscriptWS replays the backlog, then streams live updates.
func (s *Server) handleTranscriptWS(c *websocket.Conn) {
	s.entriesMu.RLock()
	for _, msg := range s.entries {
		if err := c.WriteJSON(msg); err != nil {
			break
		}
	}
	s.entriesMu.RUnlock()

	hub.NewClient(s.transcriptHub, c).Run()
}

// handleStateWS sends the current state, then streams changes.
func (s *Server) handleStateWS(c *websocket.Conn) {
	if err := c.WriteJSON(s.State()); err != nil {
		return
	}
	hub.NewClient(s.stateHub, c).Run()
}
