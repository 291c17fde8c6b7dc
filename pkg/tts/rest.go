package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reponsekdz2/go-newsvoice/internal/httpc"
)

const providerREST = "rest"

// REST implements Provider against a self-hosted synthesis endpoint.
// The endpoint accepts POST {"text": ..., "voice": ...} and returns
// {"audio": "<base64 PCM16>", "sample_rate": 24000}.
type REST struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewREST creates a REST TTS provider. The base URL is required.
func NewREST(opts ...Option) (*REST, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		return nil, WrapError(providerREST, fmt.Errorf("base URL required"))
	}

	return &REST{
		config: cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "tts.rest"),
	}, nil
}

type restRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	Model string `json:"model,omitempty"`
}

type restResponse struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate"`
	Error      string `json:"error,omitempty"`
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (r *REST) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(providerREST, ErrEmptyText)
	}

	start := time.Now()

	body, err := json.Marshal(restRequest{
		Text:  text,
		Voice: r.config.Voice,
		Model: r.config.Model,
	})
	if err != nil {
		return nil, WrapError(providerREST, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := r.doWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, r.parseError(resp)
	}

	var decoded restResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, WrapError(providerREST, fmt.Errorf("decode response: %w", err))
	}

	audio, err := base64.StdEncoding.DecodeString(decoded.Audio)
	if err != nil {
		return nil, WrapError(providerREST, fmt.Errorf("decode audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerREST, ErrNoAudio)
	}

	format := DefaultFormat()
	if decoded.SampleRate > 0 {
		format.SampleRate = decoded.SampleRate
	}
	latency := time.Since(start).Milliseconds()

	r.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"sample_rate", format.SampleRate,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// doWithRetry posts the payload, retrying retryable API errors.
func (r *REST) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	url := r.config.BaseURL + "/synthesize"

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.config.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(providerREST, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if r.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerREST, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := r.parseError(resp)
		resp.Body.Close()
		var ae *APIError
		if !errors.As(apiErr, &ae) || !ae.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		r.logger.Warn("retrying synthesis", "attempt", attempt+1, "error", apiErr)
	}
	return nil, lastErr
}

// parseError builds an APIError from a non-200 response.
func (r *REST) parseError(resp *http.Response) error {
	msg := resp.Status
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(body) > 0 {
		var decoded restResponse
		if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
			msg = decoded.Error
		} else {
			msg = string(body)
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Provider:   providerREST,
	}
}

// Health checks the endpoint's health route.
func (r *REST) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.BaseURL+"/health", nil)
	if err != nil {
		return WrapError(providerREST, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return WrapError(providerREST, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status, Provider: providerREST}
	}
	return nil
}

// Close releases idle connections.
func (r *REST) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

var _ Provider = (*REST)(nil)
