// Package session holds the state of one capture-to-result interaction. A
// session is owned by one connection; a new recording resets it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/obiente/spendvoice/internal/audio"
	"github.com/obiente/spendvoice/internal/editgate"
	"github.com/obiente/spendvoice/internal/extract"
	"github.com/obiente/spendvoice/internal/transcribe"
)

// Phase is where the session is in the pipeline.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseRecording    Phase = "recording"
	PhaseTranscribing Phase = "transcribing"
	PhaseEditing      Phase = "editing"
	PhaseExtracting   Phase = "extracting"
	PhasePresented    Phase = "presented"
	PhaseFailed       Phase = "failed"
)

// ErrHalted is returned by Begin once a session-terminal failure occurred.
var ErrHalted = errors.New("session: halted")

// Session is safe for concurrent use.
type Session struct {
	ID string

	mu         sync.Mutex
	phase      Phase
	clip       *audio.Clip
	transcript *transcribe.Result
	gate       *editgate.Gate
	result     *extract.Result
	lastErr    error
	halt       error
	cancel     context.CancelFunc
}

// New returns an idle session with a fresh id.
func New() *Session {
	return &Session{ID: uuid.NewString(), phase: PhaseIdle}
}

// Begin starts a new run. Any run still in flight is cancelled and its edit
// gate aborted; per-run state is cleared. The returned context ends when the
// next run begins, Reset is called, or parent is done.
func (s *Session) Begin(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halt != nil {
		return nil, s.halt
	}
	s.resetLocked()
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return ctx, nil
}

// Continue starts a follow-up run on the current transcript, such as a
// re-submission. It cancels whatever is in flight but keeps session state.
func (s *Session) Continue(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halt != nil {
		return nil, s.halt
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return ctx, nil
}

// Reset cancels any run and clears per-run state. A halted session stays
// halted.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.gate != nil {
		s.gate.Abort()
	}
	s.phase = PhaseIdle
	s.clip = nil
	s.transcript = nil
	s.gate = nil
	s.result = nil
	s.lastErr = nil
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// SetClip stores the captured clip until transcription consumes it.
func (s *Session) SetClip(c audio.Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clip = &c
}

// TakeClip returns the stored clip and forgets it.
func (s *Session) TakeClip() (audio.Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clip == nil {
		return audio.Clip{}, false
	}
	c := *s.clip
	s.clip = nil
	return c, true
}

// Attach stores the transcript and edit gate of the run that owns ctx and
// moves the session to editing. A run that has been superseded stores
// nothing and gets its context error back.
func (s *Session) Attach(ctx context.Context, r transcribe.Result, g *editgate.Gate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.transcript = &r
	s.gate = g
	s.phase = PhaseEditing
	return nil
}

// Transcript returns the transcript of the current run, if any.
func (s *Session) Transcript() (transcribe.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcript == nil {
		return transcribe.Result{}, false
	}
	return *s.transcript, true
}

// Gate returns the current edit gate or nil.
func (s *Session) Gate() *editgate.Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate
}

// Present replaces the last result and clears the last failure, unless the
// run that owns ctx has been superseded.
func (s *Session) Present(ctx context.Context, r extract.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.result = &r
	s.lastErr = nil
	s.phase = PhasePresented
	return nil
}

// Result returns the last extraction result, if any.
func (s *Session) Result() (extract.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return extract.Result{}, false
	}
	return *s.result, true
}

// Fail records err as the last failure. A model-unavailable failure halts the
// session: later calls to Begin return it.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.phase = PhaseFailed
	if errors.Is(err, transcribe.ErrModelUnavailable) && s.halt == nil {
		s.halt = fmt.Errorf("%w: %w", ErrHalted, err)
	}
}

// Err returns the last failure of the current run.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Halted reports whether the session can no longer run.
func (s *Session) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halt != nil
}

// Close cancels any run. The session must not be used afterwards.
func (s *Session) Close() {
	s.Reset()
}
