// narrate - reads an article aloud through the speakers.
// Text comes from -text, -file, or stdin; blank lines split the article
// into tracks that play back to back.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/reponsekdz2/go-newsvoice/internal/config"
	"github.com/reponsekdz2/go-newsvoice/internal/log"
	"github.com/reponsekdz2/go-newsvoice/pkg/audio"
	"github.com/reponsekdz2/go-newsvoice/pkg/audioio"
	"github.com/reponsekdz2/go-newsvoice/pkg/player"
	"github.com/reponsekdz2/go-newsvoice/pkg/tts"
)

func main() {
	text := flag.String("text", "", "Text to narrate")
	file := flag.String("file", "", "File to narrate (use - for stdin)")
	voice := flag.String("voice", "", "Voice name (Puck, Charon, Kore, Fenrir, Aoede)")
	rate := flag.Float64("rate", 1.0, "Playback rate (0.5-2.0)")
	backend := flag.String("audio", string(audioio.BackendAuto), "Audio backend: auto, mock")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	log.Init(*logLevel)
	logger := log.L()

	article, err := readArticle(*text, *file)
	if err != nil {
		logger.Error("failed to read article", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := buildProvider(ctx, *voice)
	if err != nil {
		logger.Error("failed to build TTS provider", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	playbackCfg := audioio.DefaultPlaybackConfig()
	playbackCfg.Backend = audioio.Backend(*backend)
	sink, err := audioio.NewSink(playbackCfg, logger)
	if err != nil {
		logger.Error("failed to open speaker", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	if err := sink.Start(ctx); err != nil {
		logger.Error("failed to start playback", "error", err)
		os.Exit(1)
	}

	tracks, err := synthesizeTracks(ctx, provider, article)
	if err != nil {
		logger.Error("synthesis failed", "error", err)
		os.Exit(1)
	}

	p := player.NewClipPlayer(player.NewClock(), sink, logger)
	defer p.Close()

	finished := make(chan struct{})
	p.OnAdvance = func(index int, track player.Track) {
		logger.Info("next paragraph", "index", index)
	}
	p.OnFinished = func() { close(finished) }

	if err := p.LoadPlaylist(tracks); err != nil {
		logger.Error("nothing to play", "error", err)
		os.Exit(1)
	}
	if err := p.SetRate(*rate); err != nil {
		logger.Error("invalid rate", "error", err)
		os.Exit(1)
	}
	if err := p.Play(0); err != nil {
		logger.Error("playback failed", "error", err)
		os.Exit(1)
	}

	select {
	case <-finished:
		// Let the device drain the tail.
		if err := sink.Flush(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("flush failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("interrupted")
	}
}

// readArticle resolves the narration text from flags or stdin.
func readArticle(text, file string) (string, error) {
	if text != "" {
		return text, nil
	}
	if file == "" {
		return "", fmt.Errorf("provide -text or -file")
	}

	var raw []byte
	var err error
	if file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", fmt.Errorf("article is empty")
	}
	return string(raw), nil
}

// buildProvider prefers a self-hosted endpoint when configured, with the
// hosted Gemini voice as fallback.
func buildProvider(ctx context.Context, voice string) (tts.Provider, error) {
	gemini, err := tts.NewGemini(ctx,
		tts.WithAPIKey(config.GeminiAPIKey()),
		tts.WithModel(config.TTSModel()),
		tts.WithVoice(config.Voice(voice)),
	)
	if err != nil {
		return nil, err
	}

	endpoint := config.TTSEndpoint()
	if endpoint == "" {
		return gemini, nil
	}

	rest, err := tts.NewREST(
		tts.WithBaseURL(endpoint),
		tts.WithVoice(config.Voice(voice)),
	)
	if err != nil {
		return nil, err
	}
	return tts.NewChain(rest, gemini)
}

// synthesizeTracks turns each paragraph into a playable track.
func synthesizeTracks(ctx context.Context, provider tts.Provider, article string) ([]player.Track, error) {
	var tracks []player.Track
	for i, paragraph := range splitParagraphs(article) {
		result, err := provider.Synthesize(ctx, paragraph)
		if err != nil {
			return nil, fmt.Errorf("paragraph %d: %w", i+1, err)
		}

		buf, err := audio.PCM16ToFloat(result.Audio, result.Format.SampleRate, result.Format.Channels)
		if err != nil {
			return nil, fmt.Errorf("paragraph %d: %w", i+1, err)
		}

		tracks = append(tracks, player.Track{
			ID:     fmt.Sprintf("p%d", i+1),
			Title:  firstWords(paragraph, 6),
			Buffer: buf,
		})
	}
	return tracks, nil
}

// splitParagraphs splits on blank lines, dropping empty segments.
func splitParagraphs(article string) []string {
	var out []string
	for _, part := range strings.Split(article, "\n\n") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// firstWords returns up to n leading words for track titles.
func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
