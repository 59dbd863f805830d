//go:build whisper_cpp

package whisper

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

// maxSamples bounds a single utterance at 30 seconds.
const maxSamples = 30 * SampleRate

type cppEngine struct {
	model    whisperpkg.Model
	threads  uint
	language string
	mu       sync.Mutex // whisper.cpp contexts are not safe to run concurrently
}

func NewEngine(opts Options) (Engine, error) {
	threads := uint(runtime.NumCPU())
	if opts.Threads > 0 {
		threads = uint(opts.Threads)
		log.Info().Int("threads", opts.Threads).Msg("whisper: using configured thread count")
	} else {
		log.Info().Uint("threads", threads).Msg("whisper: using default thread count (CPU cores)")
	}

	m, err := whisperpkg.New(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", opts.ModelPath, err)
	}
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	log.Info().Str("model", opts.ModelPath).Str("language", lang).Msg("whisper: model loaded")
	return &cppEngine{model: m, threads: threads, language: lang}, nil
}

func (e *cppEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

func (e *cppEngine) Process(samples []float32) (string, string, error) {
	// Below 100ms whisper tends to hallucinate; treat it as silence.
	if len(samples) < SampleRate/10 {
		log.Debug().Int("samples", len(samples)).Msg("whisper: skipping too-short audio")
		return "", "", nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(samples) > maxSamples {
		log.Warn().Int("samples", len(samples)).Int("max", maxSamples).Msg("whisper: truncating long audio")
		samples = samples[:maxSamples]
	}

	ctx, err := e.model.NewContext()
	if err != nil {
		return "", "", fmt.Errorf("create context: %w", err)
	}
	ctx.SetThreads(e.threads)
	if err := ctx.SetLanguage(e.language); err != nil {
		return "", "", fmt.Errorf("set language %q: %w", e.language, err)
	}
	ctx.SetSplitOnWord(true)
	ctx.SetMaxSegmentLength(0)
	ctx.SetMaxTokensPerSegment(0)
	ctx.SetAudioCtx(0)

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		log.Error().Err(err).Int("samples", len(samples)).Msg("whisper: process failed")
		return "", "", fmt.Errorf("process audio: %w", err)
	}

	var segments []string
	for {
		seg, err := ctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Msg("whisper: error reading segment")
			break
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}
	full := strings.TrimSpace(strings.Join(segments, " "))

	lang := ctx.Language()
	if lang == "" || lang == "auto" {
		lang = ctx.DetectedLanguage()
	}
	log.Debug().Str("lang", lang).Int("segments", len(segments)).Int("samples", len(samples)).Msg("whisper: transcription complete")
	return full, lang, nil
}
