// Package transcribe turns a captured clip into text through one of several
// speech-to-text backends. Backends are loaded once; the result is a
// Capability that is either ready or carries the reason it is not.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/obiente/spendvoice/internal/audio"
)

var (
	// ErrModelUnavailable means the backend could not be initialized. It ends
	// the session; nothing can be transcribed until the service is reconfigured.
	ErrModelUnavailable = errors.New("transcribe: model unavailable")
	// ErrNoOutput means the backend returned no usable text.
	ErrNoOutput = errors.New("transcribe: no transcription output")
)

// Result is the normalized output of every backend.
type Result struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	// Confidence is nil when the backend does not report one.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Transcriber is a speech-to-text backend.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (Result, error)
	Close() error
}

// Capability is the outcome of loading a backend.
type Capability struct {
	name string
	t    Transcriber
	err  error
}

// Ready wraps a loaded backend.
func Ready(name string, t Transcriber) *Capability {
	return &Capability{name: name, t: t}
}

// Unavailable records why no backend could be loaded. The reason is wrapped so
// errors.Is(err, ErrModelUnavailable) holds.
func Unavailable(name string, reason error) *Capability {
	if reason == nil {
		reason = errors.New("not configured")
	}
	return &Capability{name: name, err: fmt.Errorf("%w: %s: %w", ErrModelUnavailable, name, reason)}
}

// Name is the backend name.
func (c *Capability) Name() string { return c.name }

// Available reports whether Transcribe can be called.
func (c *Capability) Available() bool { return c != nil && c.t != nil }

// Err is nil for a ready capability.
func (c *Capability) Err() error {
	if c == nil {
		return fmt.Errorf("%w: not loaded", ErrModelUnavailable)
	}
	return c.err
}

// Transcribe runs the backend once. Whitespace-only output is reported as
// ErrNoOutput; the caller decides whether to record again.
func (c *Capability) Transcribe(ctx context.Context, clip audio.Clip) (Result, error) {
	if !c.Available() {
		return Result{}, c.Err()
	}
	if clip.Empty() {
		return Result{}, ErrNoOutput
	}
	res, err := c.t.Transcribe(ctx, clip)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe %s: %w", c.name, err)
	}
	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		return Result{}, ErrNoOutput
	}
	return res, nil
}

// Close releases the backend, if any.
func (c *Capability) Close() error {
	if !c.Available() {
		return nil
	}
	return c.t.Close()
}
