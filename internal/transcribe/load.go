package transcribe

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/spendvoice/internal/whisper"
)

const (
	BackendWhisper       = "whisper"
	BackendWhisperServer = "whisper-server"
	BackendOpenAI        = "openai"
)

// Options selects and configures a backend.
type Options struct {
	Backend   string
	ModelPath string
	ServerURL string
	Model     string
	Language  string
	APIKey    string
	BaseURL   string
	Threads   int
	TempDir   string
	Timeout   time.Duration
}

// Load initializes the configured backend once. It never fails outright: a
// backend that cannot start comes back as an unavailable Capability so the
// caller can report the reason up front.
func Load(o Options) *Capability {
	name := strings.ToLower(strings.TrimSpace(o.Backend))
	if name == "" {
		name = BackendWhisper
	}

	var (
		t   Transcriber
		err error
	)
	switch name {
	case BackendWhisper:
		var e whisper.Engine
		e, err = whisper.NewEngine(whisper.Options{ModelPath: o.ModelPath, Threads: o.Threads, Language: o.Language})
		if err == nil {
			t = NewLocal(e)
		}
	case BackendWhisperServer:
		t, err = NewServer(o.ServerURL, o.Language, o.TempDir, o.Timeout)
	case BackendOpenAI:
		t, err = NewOpenAI(OpenAIOptions{
			APIKey:   o.APIKey,
			BaseURL:  o.BaseURL,
			Model:    o.Model,
			Language: o.Language,
			TempDir:  o.TempDir,
			Timeout:  o.Timeout,
		})
	default:
		err = fmt.Errorf("unknown backend %q; supported: %s, %s, %s", name, BackendWhisper, BackendWhisperServer, BackendOpenAI)
	}
	if err != nil {
		log.Warn().Err(err).Str("backend", name).Msg("transcribe: backend unavailable")
		return Unavailable(name, err)
	}
	log.Info().Str("backend", name).Msg("transcribe: backend ready")
	return Ready(name, t)
}
