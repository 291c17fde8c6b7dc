// Package audio implements the PCM wire codec shared by capture and playback.
//
// The AI backend exchanges raw little-endian PCM16 audio wrapped in base64:
// 16kHz mono on the uplink, 24kHz mono on the downlink. The functions here
// are pure transforms between that wire format and normalized float buffers.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for malformed payloads.
var (
	// ErrDecode is returned when a base64 payload contains invalid characters.
	ErrDecode = errors.New("audio: malformed base64 payload")

	// ErrInvalidAudioData is returned when a PCM16 byte stream is not aligned
	// to whole frames (2 bytes per sample times the channel count).
	ErrInvalidAudioData = errors.New("audio: byte length not aligned to frame size")
)

// Buffer holds decoded PCM audio as one float32 slice per channel,
// normalized to [-1.0, 1.0). A Buffer is owned by whoever decoded it until
// it is handed to a playback source.
type Buffer struct {
	// Data is channel-major: Data[ch][frame].
	Data [][]float32

	// SampleRate in Hz.
	SampleRate int
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Frames returns the number of frames (samples per channel).
func (b *Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// PCM16 re-interleaves the buffer into little-endian PCM16 bytes.
func (b *Buffer) PCM16() []byte {
	frames := b.Frames()
	channels := b.Channels()
	out := make([]byte, frames*channels*2)
	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < channels; ch++ {
			s := clampToInt16(b.Data[ch][frame])
			i := (frame*channels + ch) * 2
			out[i] = byte(s)
			out[i+1] = byte(s >> 8)
		}
	}
	return out
}

// EncodeBase64 encodes bytes as standard base64 with padding, no wrapping.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a standard base64 string.
// Returns an error wrapping ErrDecode on malformed input.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return data, nil
}

// PCM16ToFloat interprets data as interleaved little-endian signed 16-bit
// samples and deinterleaves them into a normalized float Buffer.
// Returns an error wrapping ErrInvalidAudioData if the byte length is not a
// multiple of 2*channels.
func PCM16ToFloat(data []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	if len(data)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes, %d channels", ErrInvalidAudioData, len(data), channels)
	}

	frames := len(data) / 2 / channels
	buf := &Buffer{
		Data:       make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for ch := range buf.Data {
		buf.Data[ch] = make([]float32, frames)
	}

	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < channels; ch++ {
			i := (frame*channels + ch) * 2
			s := int16(data[i]) | int16(data[i+1])<<8
			buf.Data[ch][frame] = float32(s) / 32768.0
		}
	}
	return buf, nil
}

// FloatToPCM16 converts normalized float samples to little-endian PCM16
// bytes, clamping to the int16 range before truncation.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := clampToInt16(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func clampToInt16(s float32) int16 {
	v := float64(s) * 32768.0
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}
