// Package config provides configuration helpers for go-newsvoice commands.
package config

import (
	"fmt"
	"os"
)

// Defaults for the AI backend.
const (
	DefaultLiveModel = "models/gemini-2.0-flash-exp"
	DefaultTTSModel  = "gemini-2.5-flash-preview-tts"
	DefaultVoice     = "Kore"
)

// GeminiAPIKey returns the API key from GEMINI_API_KEY.
// Exits with a usage message if not set.
func GeminiAPIKey() string {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: GEMINI_API_KEY=... go run ./cmd/...")
		os.Exit(1)
	}
	return key
}

// Voice returns the narration voice from NEWSVOICE_VOICE.
// Falls back to the provided default, then the package default.
func Voice(defaultVoice string) string {
	if v := os.Getenv("NEWSVOICE_VOICE"); v != "" {
		return v
	}
	if defaultVoice != "" {
		return defaultVoice
	}
	return DefaultVoice
}

// LiveModel returns the live-session model from NEWSVOICE_LIVE_MODEL.
func LiveModel() string {
	if m := os.Getenv("NEWSVOICE_LIVE_MODEL"); m != "" {
		return m
	}
	return DefaultLiveModel
}

// TTSModel returns the one-shot narration model from NEWSVOICE_TTS_MODEL.
func TTSModel() string {
	if m := os.Getenv("NEWSVOICE_TTS_MODEL"); m != "" {
		return m
	}
	return DefaultTTSModel
}

// TTSEndpoint returns an optional REST synthesis endpoint from
// NEWSVOICE_TTS_ENDPOINT. Empty means the hosted Gemini provider is used.
func TTSEndpoint() string {
	return os.Getenv("NEWSVOICE_TTS_ENDPOINT")
}
