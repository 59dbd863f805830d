// Package app wires configuration into a running service.
//
// New builds the speech and extraction adapters, the pipeline, metrics and
// the HTTP surface; Serve runs it until the context ends; Shutdown releases
// the adapters. Test doubles are injected with options.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/obiente/spendvoice/internal/capture"
	"github.com/obiente/spendvoice/internal/config"
	"github.com/obiente/spendvoice/internal/extract"
	serverhttp "github.com/obiente/spendvoice/internal/http"
	"github.com/obiente/spendvoice/internal/llm"
	"github.com/obiente/spendvoice/internal/llm/anyllm"
	"github.com/obiente/spendvoice/internal/llm/gemini"
	llmopenai "github.com/obiente/spendvoice/internal/llm/openai"
	"github.com/obiente/spendvoice/internal/observe"
	"github.com/obiente/spendvoice/internal/pipeline"
	"github.com/obiente/spendvoice/internal/transcribe"
	"github.com/obiente/spendvoice/internal/ws"
)

// shutdownGrace bounds how long in-flight requests get once Serve's context
// ends.
const shutdownGrace = 10 * time.Second

// keylessProviders run locally and need no API key.
var keylessProviders = []string{"ollama", "llamacpp", "llamafile"}

type App struct {
	cfg config.Config

	stt      *transcribe.Capability
	ext      *extract.Extractor
	device   capture.Device
	pipeline *pipeline.Pipeline
	handler  http.Handler

	// closers run in order during Shutdown.
	closers  []func(context.Context) error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithTranscriber skips loading the configured speech backend.
func WithTranscriber(c *transcribe.Capability) Option {
	return func(a *App) { a.stt = c }
}

// WithExtractor skips building the configured LLM provider.
func WithExtractor(e *extract.Extractor) Option {
	return func(a *App) { a.ext = e }
}

// WithDevice replaces the local input device.
func WithDevice(d capture.Device) Option {
	return func(a *App) { a.device = d }
}

// New builds the application. Adapters that cannot start do not fail New;
// they are reported as unavailable on /healthz and on first use.
func New(ctx context.Context, cfg config.Config, version string, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	m := observe.Discard()
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		p, err := observe.InitProvider(ctx, "spendvoice", version)
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		m = p.Metrics
		metricsHandler = p.Handler()
		a.closers = append(a.closers, p.Shutdown)
	}

	if a.stt == nil {
		a.stt = NewTranscriber(cfg)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.stt.Close() })
	if a.ext == nil {
		a.ext = NewExtractor(ctx, cfg.Extraction)
	}
	if a.device == nil {
		a.device = capture.NewDevice()
	}

	a.pipeline = pipeline.New(a.stt, a.ext, pipeline.Options{
		AutoSubmit: cfg.EditGate.AutoSubmit,
		Tick:       cfg.EditGate.Tick,
		Metrics:    m,
	})
	sessions := ws.NewServer(a.pipeline, ws.Options{
		Capture: cfg.Capture,
		Device:  a.device,
		Metrics: m,
	})
	a.handler = serverhttp.NewRouter(serverhttp.Deps{
		Pipeline:       a.pipeline,
		Sessions:       sessions,
		Device:         a.device,
		Metrics:        m,
		MetricsHandler: metricsHandler,
	})

	st := a.pipeline.Status()
	logStatus("transcription", st.Transcription)
	logStatus("extraction", st.Extraction)
	return a, nil
}

func logStatus(what string, c pipeline.Component) {
	if c.Ready {
		log.Info().Str("backend", c.Name).Msgf("app: %s ready", what)
		return
	}
	log.Warn().Str("backend", c.Name).Str("reason", c.Reason).Msgf("app: %s unavailable", what)
}

// Handler is the HTTP surface.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline is the shared session pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Run listens on the configured address and serves until ctx ends.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then drains in-flight requests.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("spendvoice server starting")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Shutdown releases adapters and flushes metrics. Remaining closers are
// skipped once ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				log.Warn().Int("remaining", len(a.closers)-i).Msg("app: shutdown deadline exceeded")
				shutdownErr = err
				return
			}
			if err := closer(ctx); err != nil {
				log.Warn().Err(err).Int("index", i).Msg("app: closer error")
			}
		}
		log.Info().Msg("app: shutdown complete")
	})
	return shutdownErr
}

// NewTranscriber loads the configured speech backend.
func NewTranscriber(cfg config.Config) *transcribe.Capability {
	t := cfg.Transcription
	return transcribe.Load(transcribe.Options{
		Backend:   t.Backend,
		ModelPath: t.ModelPath,
		ServerURL: t.ServerURL,
		Model:     t.Model,
		Language:  t.Language,
		APIKey:    t.APIKey,
		BaseURL:   t.BaseURL,
		Threads:   t.Threads,
		TempDir:   cfg.TempDir,
		Timeout:   t.Timeout,
	})
}

// NewExtractor builds the configured LLM provider. A provider that cannot be
// built, including a hosted one without a key, yields an unavailable
// extractor carrying the reason.
func NewExtractor(ctx context.Context, cfg config.Extraction) *extract.Extractor {
	p, err := newProvider(ctx, cfg)
	if err != nil {
		return extract.Unavailable(err)
	}
	return extract.New(p, extract.Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Strict:      cfg.ValidateJSON,
		Timeout:     cfg.Timeout,
	})
}

func newProvider(ctx context.Context, cfg config.Extraction) (llm.Provider, error) {
	model := cfg.ModelName()
	if cfg.APIKey == "" && !slices.Contains(keylessProviders, cfg.Provider) {
		return nil, fmt.Errorf("no API key for %s; set LLM_API_KEY or extraction.api_key", cfg.Provider)
	}
	switch cfg.Provider {
	case "openai":
		var opts []llmopenai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, llmopenai.WithTimeout(cfg.Timeout))
		}
		return llmopenai.New(cfg.APIKey, model, opts...)
	case "gemini":
		return gemini.New(ctx, cfg.APIKey, model)
	default:
		var opts []anyllmlib.Option
		if cfg.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
		}
		return anyllm.New(cfg.Provider, model, opts...)
	}
}
