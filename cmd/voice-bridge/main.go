// voice-bridge - runs a live conversation and exposes it to the browser.
// Serves session state and the live transcript over HTTP/WebSocket so the
// news portal frontend can render the conversation.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reponsekdz2/go-newsvoice/internal/config"
	"github.com/reponsekdz2/go-newsvoice/internal/log"
	"github.com/reponsekdz2/go-newsvoice/pkg/audioio"
	"github.com/reponsekdz2/go-newsvoice/pkg/bridge"
	"github.com/reponsekdz2/go-newsvoice/pkg/live"
	"github.com/reponsekdz2/go-newsvoice/pkg/transcript"
)

func main() {
	port := flag.String("port", "8090", "HTTP port for the bridge")
	voice := flag.String("voice", "", "Voice name (Puck, Charon, Kore, Fenrir, Aoede)")
	backend := flag.String("audio", string(audioio.BackendAuto), "Audio backend: auto, mock")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	log.Init(*logLevel)
	logger := log.L()

	captureCfg := audioio.DefaultCaptureConfig()
	captureCfg.Backend = audioio.Backend(*backend)
	source, err := audioio.NewSource(captureCfg, logger)
	if err != nil {
		logger.Error("failed to open microphone", "error", err)
		os.Exit(1)
	}

	playbackCfg := audioio.DefaultPlaybackConfig()
	playbackCfg.Backend = audioio.Backend(*backend)
	sink, err := audioio.NewSink(playbackCfg, logger)
	if err != nil {
		logger.Error("failed to open speaker", "error", err)
		os.Exit(1)
	}

	cfg := live.Config{
		APIKey: config.GeminiAPIKey(),
		Model:  config.LiveModel(),
		Voice:  config.Voice(*voice),
	}

	conv, err := live.NewConversation(cfg, source, sink, logger)
	if err != nil {
		logger.Error("failed to build conversation", "error", err)
		os.Exit(1)
	}

	srv := bridge.NewServer(*port, logger)
	srv.OnSay = conv.SendText

	conv.OnEntry = srv.PublishEntry
	conv.OnState = func(state live.State) {
		srv.UpdateState(func(st *bridge.SessionState) {
			st.State = string(state)
			st.MicActive = state == live.StateListening
		})
	}
	conv.OnError = func(err error) {
		logger.Warn("session error", "error", err)
	}
	srv.UpdateState(func(st *bridge.SessionState) {
		st.SessionID = conv.SessionID()
		st.State = string(live.StateIdle)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := conv.Start(ctx); err != nil {
		logger.Error("failed to start conversation", "error", err)
		os.Exit(1)
	}
	srv.StartAsync()

	// Surface interim text so the portal can show live captions.
	go pollInterim(ctx, conv, srv)

	select {
	case <-ctx.Done():
	case <-conv.Done():
	}

	if err := conv.Close(); err != nil {
		logger.Warn("teardown finished with errors", "error", err)
	}
	if err := srv.Shutdown(); err != nil {
		logger.Warn("bridge shutdown failed", "error", err)
	}
}

// pollInterim pushes in-progress captions to subscribers.
func pollInterim(ctx context.Context, conv *live.Conversation, srv *bridge.Server) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastUser, lastModel string
	for {
		select {
		case <-ctx.Done():
			return
		case <-conv.Done():
			return
		case <-ticker.C:
		}

		if text := conv.Interim(transcript.SpeakerUser); text != lastUser {
			lastUser = text
			srv.PublishInterim(transcript.SpeakerUser, text)
		}
		if text := conv.Interim(transcript.SpeakerModel); text != lastModel {
			lastModel = text
			srv.PublishInterim(transcript.SpeakerModel, text)
		}
	}
}
