// newsvoice - realtime voice conversation with the news assistant.
// Speaks and listens through the default audio devices; prints the
// finalized transcript as the conversation progresses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reponsekdz2/go-newsvoice/internal/config"
	"github.com/reponsekdz2/go-newsvoice/internal/log"
	"github.com/reponsekdz2/go-newsvoice/pkg/audioio"
	"github.com/reponsekdz2/go-newsvoice/pkg/live"
	"github.com/reponsekdz2/go-newsvoice/pkg/transcript"
)

const defaultPrompt = `You are a friendly news assistant for a browser news portal.
Answer questions about current events conversationally, in short spoken
sentences. When asked for headlines, give the three most important ones.`

func main() {
	cfg, backend, logLevel := parseFlags()
	log.Init(logLevel)
	logger := log.L()

	captureCfg := audioio.DefaultCaptureConfig()
	captureCfg.Backend = backend
	source, err := audioio.NewSource(captureCfg, logger)
	if err != nil {
		logger.Error("failed to open microphone", "error", err)
		os.Exit(1)
	}

	playbackCfg := audioio.DefaultPlaybackConfig()
	playbackCfg.Backend = backend
	sink, err := audioio.NewSink(playbackCfg, logger)
	if err != nil {
		logger.Error("failed to open speaker", "error", err)
		os.Exit(1)
	}

	conv, err := live.NewConversation(cfg, source, sink, logger)
	if err != nil {
		logger.Error("failed to build conversation", "error", err)
		os.Exit(1)
	}

	conv.OnEntry = func(e transcript.Entry) {
		label := "you"
		if e.Speaker == transcript.SpeakerModel {
			label = "assistant"
		}
		fmt.Printf("%s: %s\n", label, e.Text)
	}
	conv.OnState = func(state live.State) {
		logger.Info("session state", "state", state)
		if state == live.StateListening {
			fmt.Println("Listening. Speak into the microphone; Ctrl-C to quit.")
		}
	}
	conv.OnError = func(err error) {
		logger.Warn("session error", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := conv.Start(ctx); err != nil {
		logger.Error("failed to start conversation", "error", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-conv.Done():
	}

	if err := conv.Close(); err != nil {
		logger.Warn("teardown finished with errors", "error", err)
	}
}

// parseFlags parses command line flags and returns the session config,
// audio backend, and log level.
func parseFlags() (live.Config, audioio.Backend, string) {
	voice := flag.String("voice", "", "Voice name (Puck, Charon, Kore, Fenrir, Aoede)")
	model := flag.String("model", "", "Live model (overrides NEWSVOICE_LIVE_MODEL)")
	prompt := flag.String("prompt", defaultPrompt, "System prompt for the assistant")
	backend := flag.String("audio", string(audioio.BackendAuto), "Audio backend: auto, mock")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg := live.Config{
		APIKey:       config.GeminiAPIKey(),
		Model:        config.LiveModel(),
		Voice:        config.Voice(*voice),
		SystemPrompt: *prompt,
	}
	if *model != "" {
		cfg.Model = *model
	}

	return cfg, audioio.Backend(*backend), *logLevel
}
