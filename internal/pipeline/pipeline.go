// Package pipeline runs one session through transcription, the edit gate and
// extraction, reporting every step to a Presenter.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/obiente/spendvoice/internal/audio"
	"github.com/obiente/spendvoice/internal/editgate"
	"github.com/obiente/spendvoice/internal/extract"
	"github.com/obiente/spendvoice/internal/logger"
	"github.com/obiente/spendvoice/internal/observe"
	"github.com/obiente/spendvoice/internal/session"
	"github.com/obiente/spendvoice/internal/transcribe"
)

// Presenter receives the visible events of a run. Calls for one session are
// never concurrent except Countdown, which arrives from the gate's goroutine
// while the run waits.
type Presenter interface {
	Transcript(res transcribe.Result)
	Countdown(remaining time.Duration)
	Resolved(out editgate.Outcome)
	Processing()
	Result(res extract.Result)
	Failure(code, message string)
}

// Options configures the edit gate and instrumentation.
type Options struct {
	AutoSubmit time.Duration
	Tick       time.Duration
	Clock      editgate.Clock
	Metrics    *observe.Metrics
}

// Pipeline is shared by all sessions.
type Pipeline struct {
	stt  *transcribe.Capability
	ext  *extract.Extractor
	opts Options
}

// New wires a pipeline.
func New(stt *transcribe.Capability, ext *extract.Extractor, opts Options) *Pipeline {
	if opts.Metrics == nil {
		opts.Metrics = observe.Discard()
	}
	return &Pipeline{stt: stt, ext: ext, opts: opts}
}

// Run takes a captured clip through to a presented result. It starts a new
// run on sess, cancelling any earlier one. Every failure is reported to ui
// before it is returned; a run superseded by a newer one returns its context
// error without reporting.
func (p *Pipeline) Run(ctx context.Context, sess *session.Session, clip audio.Clip, ui Presenter) error {
	ctx, err := sess.Begin(ctx)
	if err != nil {
		return p.Fail(ctx, sess, ui, err)
	}
	l := logger.ForSession(logger.FromContext(ctx), sess.ID)
	ctx = logger.WithContext(ctx, l)

	sess.SetClip(clip)
	res, err := p.transcribeSession(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.Fail(ctx, sess, ui, err)
	}
	gate := editgate.New(editgate.Options{
		Timeout: p.opts.AutoSubmit,
		Tick:    p.opts.Tick,
		Clock:   p.opts.Clock,
		OnTick:  ui.Countdown,
	})
	// The backend may have ignored cancellation; a superseded run must not
	// touch the live session.
	if err := sess.Attach(ctx, res, gate); err != nil {
		return err
	}
	ui.Transcript(res)
	if err := gate.Start(res.Text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.Fail(ctx, sess, ui, err)
	}

	out, err := gate.Wait(ctx)
	if err != nil {
		// Superseded by a new recording or the connection went away.
		return err
	}
	p.opts.Metrics.RecordGate(ctx, string(out.Reason))
	l.Info().Str("reason", string(out.Reason)).Dur("elapsed", out.Elapsed).Msg("pipeline: transcript resolved")
	ui.Resolved(out)

	return p.submit(ctx, sess, out.Text, ui)
}

// Submit extracts text on the session's current transcript without a new
// recording. Submitting the same text twice replaces the earlier result.
func (p *Pipeline) Submit(ctx context.Context, sess *session.Session, text string, ui Presenter) error {
	ctx, err := sess.Continue(ctx)
	if err != nil {
		return p.Fail(ctx, sess, ui, err)
	}
	ctx = logger.WithContext(ctx, logger.ForSession(logger.FromContext(ctx), sess.ID))
	return p.submit(ctx, sess, text, ui)
}

func (p *Pipeline) submit(ctx context.Context, sess *session.Session, text string, ui Presenter) error {
	if strings.TrimSpace(text) == "" {
		return p.Fail(ctx, sess, ui, transcribe.ErrNoOutput)
	}
	sess.SetPhase(session.PhaseExtracting)
	ui.Processing()

	res, err := p.Extract(ctx, text)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return p.Fail(ctx, sess, ui, err)
	}
	if err := sess.Present(ctx, res); err != nil {
		return err
	}
	ui.Result(res)
	return nil
}

func (p *Pipeline) transcribeSession(ctx context.Context, sess *session.Session) (transcribe.Result, error) {
	clip, ok := sess.TakeClip()
	if !ok {
		return transcribe.Result{}, transcribe.ErrNoOutput
	}
	sess.SetPhase(session.PhaseTranscribing)
	return p.Transcribe(ctx, clip)
}

// Transcribe runs the speech backend once and records its latency.
func (p *Pipeline) Transcribe(ctx context.Context, clip audio.Clip) (transcribe.Result, error) {
	l := logger.FromContext(ctx)
	started := time.Now()
	res, err := p.stt.Transcribe(ctx, clip)
	took := time.Since(started)
	if p.stt.Available() {
		p.opts.Metrics.RecordSTT(ctx, p.stt.Name(), took)
	}
	if err != nil {
		l.Warn().Err(err).Str("backend", p.stt.Name()).Dur("took", took).Msg("pipeline: transcription failed")
		return transcribe.Result{}, err
	}
	l.Info().
		Str("backend", p.stt.Name()).
		Dur("took", took).
		Dur("audio", clip.Duration()).
		Int("chars", len(res.Text)).
		Msg("pipeline: transcribed")
	return res, nil
}

// Extract runs the extractor once and records its latency.
func (p *Pipeline) Extract(ctx context.Context, text string) (extract.Result, error) {
	l := logger.FromContext(ctx)
	started := time.Now()
	res, err := p.ext.Extract(ctx, text)
	took := time.Since(started)
	if p.ext.Available() {
		p.opts.Metrics.RecordExtraction(ctx, p.ext.Name(), took, err)
	}
	if err != nil {
		l.Warn().Err(err).Str("provider", p.ext.Name()).Dur("took", took).Msg("pipeline: extraction failed")
		return extract.Result{}, err
	}
	l.Info().Str("provider", res.Provider).Dur("took", took).Int("records", len(res.Records)).Msg("pipeline: extracted")
	return res, nil
}

// Fail records err on the session, counts it and shows it to the user. It
// returns err.
func (p *Pipeline) Fail(ctx context.Context, sess *session.Session, ui Presenter, err error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	code, msg := Describe(err)
	sess.Fail(err)
	p.opts.Metrics.RecordFailure(ctx, code)
	logEvent(logger.FromContext(ctx), err).Str("session_id", sess.ID).Str("code", code).Msg("pipeline: step failed")
	ui.Failure(code, msg)
	return err
}

func logEvent(l zerolog.Logger, err error) *zerolog.Event {
	if errors.Is(err, transcribe.ErrModelUnavailable) || errors.Is(err, extract.ErrUnavailable) {
		return l.Error().Err(err)
	}
	return l.Warn().Err(err)
}

// Component is the readiness of one adapter.
type Component struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Status reports adapter readiness.
type Status struct {
	Transcription Component `json:"transcription"`
	Extraction    Component `json:"extraction"`
}

// Ready reports whether both adapters are usable.
func (s Status) Ready() bool { return s.Transcription.Ready && s.Extraction.Ready }

// Status returns the readiness of both adapters.
func (p *Pipeline) Status() Status {
	st := Status{
		Transcription: Component{Name: p.stt.Name(), Ready: p.stt.Available()},
		Extraction:    Component{Name: p.ext.Name(), Ready: p.ext.Available()},
	}
	if err := p.stt.Err(); err != nil {
		st.Transcription.Reason = err.Error()
	}
	if err := p.ext.Err(); err != nil {
		st.Extraction.Reason = err.Error()
	}
	return st
}
