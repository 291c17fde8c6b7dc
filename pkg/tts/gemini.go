package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

const (
	providerGemini = "gemini"

	// geminiDefaultModel is the dedicated TTS model.
	geminiDefaultModel = "gemini-2.5-flash-preview-tts"

	// geminiDefaultVoice is one of the prebuilt voices
	// (Puck, Charon, Kore, Fenrir, Aoede).
	geminiDefaultVoice = "Kore"
)

// Gemini implements Provider using the Gemini API's speech generation.
// Output is always 24kHz mono PCM16.
type Gemini struct {
	config *Config
	client *genai.Client
	logger *slog.Logger
}

// NewGemini creates a Gemini TTS provider.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = geminiDefaultVoice
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create client: %w", err))
	}

	return &Gemini{
		config: cfg,
		client: client,
		logger: cfg.Logger.With("component", "tts.gemini"),
	}, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (g *Gemini) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(providerGemini, ErrEmptyText)
	}

	start := time.Now()

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: g.config.Voice,
				},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(text), genConfig)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("generate: %w", err))
	}

	audio := extractAudio(resp)
	if len(audio) == 0 {
		return nil, WrapError(providerGemini, ErrNoAudio)
	}

	latency := time.Since(start).Milliseconds()
	format := DefaultFormat()

	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", g.config.Model,
		"voice", g.config.Voice,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// extractAudio collects inline PCM from all candidate parts.
func extractAudio(resp *genai.GenerateContentResponse) []byte {
	var audio []byte
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			audio = append(audio, part.InlineData.Data...)
		}
	}
	return audio
}

// Health verifies the provider is configured. Connectivity is exercised
// on the first synthesis.
func (g *Gemini) Health(ctx context.Context) error {
	if g.config.APIKey == "" {
		return WrapError(providerGemini, ErrNoAPIKey)
	}
	return ctx.Err()
}

// Close releases resources. The underlying client is HTTP-based and
// holds none.
func (g *Gemini) Close() error {
	return nil
}

var _ Provider = (*Gemini)(nil)
