// Package tts provides a unified interface for text-to-speech providers
// used to narrate articles.
//
// All providers return raw PCM16 audio so the result can go straight to
// the clip player without transcoding. Providers implement the Provider
// interface, enabling seamless switching without changing caller code.
//
// Example usage:
//
//	provider, _ := tts.NewGemini(ctx,
//	    tts.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	    tts.WithVoice("Kore"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Markets rallied today...")
//	// result.Audio contains PCM16 audio bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio
	// buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and configuration.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains raw little-endian PCM16 bytes.
	Audio []byte

	// Format describes the audio encoding.
	Format AudioFormat

	// Duration is the playback duration derived from the byte count.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the synthesis round-trip time in milliseconds.
	LatencyMs int64
}

// AudioFormat describes PCM encoding parameters.
type AudioFormat struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth per sample, 16 for PCM16.
	BitDepth int
}

// DefaultFormat is the format every provider here produces: 24kHz mono
// PCM16, matching the playback downlink.
func DefaultFormat() AudioFormat {
	return AudioFormat{
		SampleRate: 24000,
		Channels:   1,
		BitDepth:   16,
	}
}

// PCMDuration computes the playback duration of raw PCM bytes in the
// given format.
func PCMDuration(byteLen int, format AudioFormat) time.Duration {
	bytesPerFrame := format.Channels * format.BitDepth / 8
	if bytesPerFrame <= 0 || format.SampleRate <= 0 {
		return 0
	}
	frames := byteLen / bytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(format.SampleRate)
}
