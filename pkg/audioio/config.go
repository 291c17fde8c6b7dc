// Package audioio provides cross-platform audio capture and playback.
//
// This package supports multiple backends:
//   - malgo (miniaudio) - microphone capture
//   - oto - speaker playback
//   - Mock - CI/testing without hardware
//
// The backend is selected automatically, or can be explicitly specified
// via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendMalgo uses miniaudio for microphone capture.
	BackendMalgo Backend = "malgo"
	// BackendOto uses oto for speaker playback.
	BackendOto Backend = "oto"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Standard sample rates for the AI backend wire format.
const (
	// CaptureRate is the uplink rate expected by the live session.
	CaptureRate = 16000
	// PlaybackRate is the downlink rate produced by the AI backend.
	PlaybackRate = 24000
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (selects best available for the direction)
	Backend Backend `json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `json:"channels"`

	// FrameSize is the number of samples per emitted chunk.
	// Default: 4096 for capture.
	FrameSize int `json:"frame_size"`

	// Device is the platform-specific device identifier.
	// Empty means the system default.
	Device string `json:"device"`
}

// DefaultCaptureConfig returns the capture configuration expected by the
// live session uplink: 16kHz mono, 4096-sample frames.
func DefaultCaptureConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: CaptureRate,
		Channels:   1,
		FrameSize:  4096,
	}
}

// DefaultPlaybackConfig returns the playback configuration matching the AI
// backend downlink: 24kHz mono.
func DefaultPlaybackConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: PlaybackRate,
		Channels:   1,
		FrameSize:  1024,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame_size must be positive, got %d", c.FrameSize)
	}
	return nil
}

// FrameBytes returns the size of one frame in bytes (int16 samples).
func (c *Config) FrameBytes() int {
	return c.FrameSize * c.Channels * 2
}

// FrameDuration returns the playback duration of one frame.
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}
