package transcribe

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/spendvoice/internal/audio"
	"github.com/obiente/spendvoice/internal/whisper"
)

// Local runs an in-process whisper.cpp engine.
type Local struct {
	engine whisper.Engine
}

// NewLocal wraps an engine; audio is downmixed and resampled to 16 kHz.
func NewLocal(e whisper.Engine) *Local { return &Local{engine: e} }

func (l *Local) Transcribe(ctx context.Context, clip audio.Clip) (Result, error) {
	samples := clip.MonoFloat32()
	if clip.SampleRate != whisper.SampleRate {
		samples = audio.ResampleLinear(samples, clip.SampleRate, whisper.SampleRate)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	started := time.Now()
	text, lang, err := l.engine.Process(samples)
	if err != nil {
		return Result{}, err
	}
	log.Debug().Dur("took", time.Since(started)).Int("samples", len(samples)).Msg("transcribe: local whisper done")
	return Result{Text: text, Language: lang}, nil
}

func (l *Local) Close() error { return l.engine.Close() }
