package live

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/reponsekdz2/go-newsvoice/pkg/transcript"
)

// Event is a message from the live session, delivered in arrival order on
// Session.Events.
type Event interface {
	isEvent()
}

// SetupCompleteEvent signals that the backend accepted the session
// configuration and is listening.
type SetupCompleteEvent struct{}

// AudioEvent carries one base64 PCM16 chunk of model speech.
type AudioEvent struct {
	Data     string
	MIMEType string
}

// SampleRate extracts the rate from the MIME type, defaulting to the
// downlink rate when unspecified.
func (e AudioEvent) SampleRate() int {
	if _, after, ok := strings.Cut(e.MIMEType, "rate="); ok {
		if rate, err := strconv.Atoi(after); err == nil && rate > 0 {
			return rate
		}
	}
	return 24000
}

// TranscriptEvent carries a partial transcription delta for one speaker.
type TranscriptEvent struct {
	Speaker transcript.Speaker
	Text    string
	Final   bool
}

// TextEvent carries a text part of the model's response.
type TextEvent struct {
	Text string
}

// TurnCompleteEvent signals the end of a conversation turn.
type TurnCompleteEvent struct{}

// InterruptedEvent signals that the user started speaking over the model
// and playback must stop immediately.
type InterruptedEvent struct{}

// ErrorEvent carries a transport or protocol error.
type ErrorEvent struct {
	Err error
}

// ClosedEvent is the final event on the channel. Err is nil for a clean
// shutdown.
type ClosedEvent struct {
	Err error
}

func (SetupCompleteEvent) isEvent() {}
func (AudioEvent) isEvent()         {}
func (TranscriptEvent) isEvent()    {}
func (TextEvent) isEvent()          {}
func (TurnCompleteEvent) isEvent()  {}
func (InterruptedEvent) isEvent()   {}
func (ErrorEvent) isEvent()         {}
func (ClosedEvent) isEvent()        {}

// parseServerMessage maps one wire message to zero or more events.
// Unknown message shapes produce no events.
func parseServerMessage(raw []byte) []Event {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	if _, ok := msg["setupComplete"]; ok {
		return []Event{SetupCompleteEvent{}}
	}

	content, ok := msg["serverContent"].(map[string]any)
	if !ok {
		return nil
	}

	var events []Event

	// An interruption invalidates any audio in the same message, so it
	// comes first.
	if interrupted, ok := content["interrupted"].(bool); ok && interrupted {
		events = append(events, InterruptedEvent{})
	}

	if modelTurn, ok := content["modelTurn"].(map[string]any); ok {
		if parts, ok := modelTurn["parts"].([]any); ok {
			for _, part := range parts {
				partMap, ok := part.(map[string]any)
				if !ok {
					continue
				}
				if inline, ok := partMap["inlineData"].(map[string]any); ok {
					mimeType, _ := inline["mimeType"].(string)
					if data, ok := inline["data"].(string); ok && strings.HasPrefix(mimeType, "audio/pcm") {
						events = append(events, AudioEvent{Data: data, MIMEType: mimeType})
					}
				}
				if text, ok := partMap["text"].(string); ok && text != "" {
					events = append(events, TextEvent{Text: text})
				}
			}
		}
	}

	if tr, ok := content["inputTranscription"].(map[string]any); ok {
		if text, ok := tr["text"].(string); ok && text != "" {
			final, _ := tr["finished"].(bool)
			events = append(events, TranscriptEvent{Speaker: transcript.SpeakerUser, Text: text, Final: final})
		}
	}
	if tr, ok := content["outputTranscription"].(map[string]any); ok {
		if text, ok := tr["text"].(string); ok && text != "" {
			final, _ := tr["finished"].(bool)
			events = append(events, TranscriptEvent{Speaker: transcript.SpeakerModel, Text: text, Final: final})
		}
	}

	if turnComplete, ok := content["turnComplete"].(bool); ok && turnComplete {
		events = append(events, TurnCompleteEvent{})
	}

	return events
}
