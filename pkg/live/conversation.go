package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/reponsekdz2/go-newsvoice/pkg/audioio"
	"github.com/reponsekdz2/go-newsvoice/pkg/capture"
	"github.com/reponsekdz2/go-newsvoice/pkg/player"
	"github.com/reponsekdz2/go-newsvoice/pkg/transcript"
)

// Conversation wires a live session to the microphone, the speaker, and
// the transcript log.
//
// All session events are applied by a single goroutine, so ordering
// guarantees from the wire (an interruption processed before the audio
// that follows it) carry through to playback and the transcript.
type Conversation struct {
	session   *Session
	pipeline  *capture.Pipeline
	scheduler *player.Scheduler
	recon     *transcript.Reconciler
	sink      audioio.Sink
	logger    *slog.Logger

	// OnEntry is called for each finalized transcript entry. Optional.
	OnEntry func(transcript.Entry)
	// OnState is called on session state changes. Optional.
	OnState func(State)
	// OnError is called on transport errors. Optional.
	OnError func(error)

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewConversation assembles a conversation from a session config and the
// audio endpoints. The source feeds the uplink; the sink plays the model's
// speech.
func NewConversation(cfg Config, source audioio.Source, sink audioio.Sink, logger *slog.Logger) (*Conversation, error) {
	if logger == nil {
		logger = slog.Default()
	}

	session, err := NewSession(cfg, logger)
	if err != nil {
		return nil, err
	}

	c := &Conversation{
		session: session,
		recon:   transcript.New(),
		sink:    sink,
		logger:  logger.With("session_id", session.ID()),
		done:    make(chan struct{}),
	}

	c.scheduler = player.NewScheduler(player.NewClock(), sink, c.logger)
	c.pipeline = capture.New(source, c.sendChunk, c.logger)
	return c, nil
}

// Start connects the session and begins dispatching events. The
// microphone stays off until the backend acknowledges setup.
func (c *Conversation) Start(ctx context.Context) error {
	if err := c.sink.Start(ctx); err != nil {
		return err
	}

	c.emitState(StateConnecting)
	if err := c.session.Connect(ctx); err != nil {
		// The sink is already running; a failed connect must release it
		// like every other transition into Closed.
		c.Close()
		return err
	}

	go c.run()
	return nil
}

// run applies session events in order until the session closes, then
// tears everything down.
func (c *Conversation) run() {
	for ev := range c.session.Events() {
		c.handleEvent(ev)
	}
	c.Close()
}

// handleEvent is the single reducer for session events.
func (c *Conversation) handleEvent(ev Event) {
	switch ev := ev.(type) {
	case SetupCompleteEvent:
		// Backend is listening; open the microphone.
		if err := c.pipeline.Start(context.Background()); err != nil {
			c.logger.Error("failed to start capture", "error", err)
			c.emitError(err)
			return
		}
		c.emitState(StateListening)

	case AudioEvent:
		// Malformed chunks are logged and dropped inside the scheduler.
		_ = c.scheduler.EnqueueEncoded(ev.Data, ev.SampleRate(), 1)

	case InterruptedEvent:
		c.scheduler.Interrupt()

	case TranscriptEvent:
		c.recon.AddDelta(ev.Speaker, ev.Text, ev.Final)

	case TurnCompleteEvent:
		for _, entry := range c.recon.TurnComplete() {
			if c.OnEntry != nil {
				c.OnEntry(entry)
			}
		}

	case TextEvent:
		// Audio-only sessions rarely produce text parts; keep them visible.
		c.logger.Debug("model text part", "text", ev.Text)

	case ErrorEvent:
		c.emitError(ev.Err)

	case ClosedEvent:
		if ev.Err != nil {
			c.logger.Warn("session ended with error", "error", ev.Err)
		}
	}
}

// sendChunk forwards one captured chunk to the uplink. Drops are logged;
// a send failure must not stall the capture goroutine.
func (c *Conversation) sendChunk(chunk capture.Chunk) {
	if err := c.session.SendChunk(chunk.Data, chunk.MIMEType); err != nil {
		c.logger.Debug("dropped uplink chunk", "error", err)
	}
}

// SendText submits a typed user message into the conversation.
func (c *Conversation) SendText(text string) error {
	return c.session.SendText(text)
}

// Entries returns the finalized transcript so far.
func (c *Conversation) Entries() []transcript.Entry {
	return c.recon.Entries()
}

// Interim returns the in-progress transcript text for a speaker.
func (c *Conversation) Interim(speaker transcript.Speaker) string {
	return c.recon.Interim(speaker)
}

// State returns the session state.
func (c *Conversation) State() State {
	return c.session.State()
}

// SessionID returns the underlying session identifier.
func (c *Conversation) SessionID() string {
	return c.session.ID()
}

// Done is closed after teardown completes.
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

// Close tears the conversation down: microphone, playback, and socket,
// in that order. Each resource is released independently, so one failure
// never leaks the others. Safe to call multiple times.
func (c *Conversation) Close() error {
	c.closeOnce.Do(func() {
		var errs []error

		if err := c.pipeline.Close(); err != nil {
			c.logger.Warn("capture teardown failed", "error", err)
			errs = append(errs, err)
		}

		c.scheduler.Close()
		if err := c.sink.Close(); err != nil {
			c.logger.Warn("playback teardown failed", "error", err)
			errs = append(errs, err)
		}

		if err := c.session.Close(); err != nil {
			c.logger.Warn("session teardown failed", "error", err)
			errs = append(errs, err)
		}

		c.emitState(StateClosed)
		c.closeErr = errors.Join(errs...)
		close(c.done)
	})
	return c.closeErr
}

func (c *Conversation) emitState(state State) {
	if c.OnState != nil {
		c.OnState(state)
	}
}

func (c *Conversation) emitError(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
