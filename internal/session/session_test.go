package session

import (
	"context"
	"errors"
	"testing"

	"github.com/obiente/spendvoice/internal/audio"
	"github.com/obiente/spendvoice/internal/editgate"
	"github.com/obiente/spendvoice/internal/extract"
	"github.com/obiente/spendvoice/internal/transcribe"
)

func TestNewSessionsHaveDistinctIDs(t *testing.T) {
	a, b := New(), New()
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids %q and %q", a.ID, b.ID)
	}
	if a.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle", a.Phase())
	}
}

func TestBeginCancelsPreviousRunAndClearsState(t *testing.T) {
	s := New()
	first, err := s.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	g := editgate.New(editgate.Options{})
	if err := g.Start("draft"); err != nil {
		t.Fatal(err)
	}
	if err := s.Attach(first, transcribe.Result{Text: "draft"}, g); err != nil {
		t.Fatal(err)
	}
	if err := s.Present(first, extract.Result{Text: "{}"}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-first.Done():
	default:
		t.Error("previous run context not cancelled")
	}
	if _, err := g.Wait(context.Background()); !errors.Is(err, editgate.ErrAborted) {
		t.Errorf("previous gate Wait = %v, want ErrAborted", err)
	}
	if _, ok := s.Transcript(); ok {
		t.Error("transcript survived a new run")
	}
	if _, ok := s.Result(); ok {
		t.Error("result survived a new run")
	}
	if s.Gate() != nil {
		t.Error("gate survived a new run")
	}
}

func TestContinueKeepsState(t *testing.T) {
	s := New()
	first, _ := s.Begin(context.Background())
	if err := s.Attach(first, transcribe.Result{Text: "I spent 500"}, editgate.New(editgate.Options{})); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Continue(context.Background()); err != nil {
		t.Fatal(err)
	}
	if first.Err() == nil {
		t.Error("Continue did not cancel the run in flight")
	}
	if tr, ok := s.Transcript(); !ok || tr.Text != "I spent 500" {
		t.Error("Continue dropped the transcript")
	}
}

func TestTakeClipOnce(t *testing.T) {
	s := New()
	s.SetClip(audio.Clip{Samples: []int16{1, 2}, SampleRate: 16000, Channels: 1})
	if _, ok := s.TakeClip(); !ok {
		t.Fatal("clip missing")
	}
	if _, ok := s.TakeClip(); ok {
		t.Error("clip handed out twice")
	}
}

func TestAttachIgnoresSupersededRun(t *testing.T) {
	s := New()
	stale, _ := s.Begin(context.Background())
	live, _ := s.Begin(context.Background())
	g := editgate.New(editgate.Options{})
	if err := s.Attach(live, transcribe.Result{Text: "second"}, g); err != nil {
		t.Fatal(err)
	}

	if err := s.Attach(stale, transcribe.Result{Text: "first"}, editgate.New(editgate.Options{})); !errors.Is(err, context.Canceled) {
		t.Errorf("stale Attach = %v, want context.Canceled", err)
	}
	if err := s.Present(stale, extract.Result{Text: "{}"}); !errors.Is(err, context.Canceled) {
		t.Errorf("stale Present = %v, want context.Canceled", err)
	}
	if tr, _ := s.Transcript(); tr.Text != "second" || s.Gate() != g {
		t.Errorf("stale run overwrote state: transcript %q", tr.Text)
	}
	if _, ok := s.Result(); ok {
		t.Error("stale run stored a result")
	}
	if s.Phase() != PhaseEditing {
		t.Errorf("phase = %v", s.Phase())
	}
}

func TestPresentReplaces(t *testing.T) {
	s := New()
	ctx, _ := s.Begin(context.Background())
	s.Fail(errors.New("extraction failed"))
	s.Present(ctx, extract.Result{Text: "first"})
	s.Present(ctx, extract.Result{Text: "second"})
	r, ok := s.Result()
	if !ok || r.Text != "second" {
		t.Errorf("result = %+v", r)
	}
	if s.Err() != nil {
		t.Errorf("last error not cleared by a result: %v", s.Err())
	}
	if s.Phase() != PhasePresented {
		t.Errorf("phase = %v", s.Phase())
	}
}

func TestModelUnavailableHaltsSession(t *testing.T) {
	s := New()
	s.Fail(transcribe.ErrNoOutput)
	if s.Halted() {
		t.Fatal("no-output failure halted the session")
	}
	if _, err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin after attempt failure: %v", err)
	}

	s.Fail(transcribe.Unavailable("whisper", errors.New("model file missing")).Err())
	if !s.Halted() {
		t.Fatal("model-unavailable failure did not halt the session")
	}
	_, err := s.Begin(context.Background())
	if !errors.Is(err, ErrHalted) || !errors.Is(err, transcribe.ErrModelUnavailable) {
		t.Errorf("Begin = %v, want ErrHalted wrapping ErrModelUnavailable", err)
	}
	if _, err := s.Continue(context.Background()); !errors.Is(err, ErrHalted) {
		t.Errorf("Continue = %v, want ErrHalted", err)
	}
	s.Reset()
	if !s.Halted() {
		t.Error("Reset cleared the halt")
	}
}
