// Package extract turns free-form transaction text into the model's JSON
// answer. The raw answer is the result; strict mode additionally decodes it.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/spendvoice/internal/llm"
)

var (
	// ErrUnavailable means no model client was initialized. It is returned
	// before any network call.
	ErrUnavailable = errors.New("extract: extraction unavailable")
	// ErrFailed wraps every provider failure and every empty or malformed
	// answer.
	ErrFailed = errors.New("extract: extraction failed")
	// ErrEmptyInput is returned for blank text without calling the model.
	ErrEmptyInput = errors.New("extract: empty input text")
)

// Request is built fresh for every submission.
type Request struct {
	Instruction string
	UserText    string
}

// NewRequest pairs text with the fixed instruction.
func NewRequest(text string) Request {
	return Request{Instruction: Instruction, UserText: text}
}

// Prompt is the single string sent to the model.
func (r Request) Prompt() string { return r.Instruction + "\nMessage: " + r.UserText }

// Result is one extraction.
type Result struct {
	// Text is the model's answer, unmodified.
	Text string `json:"raw"`
	// Records is filled only in strict mode.
	Records  []Record      `json:"records,omitempty"`
	Provider string        `json:"provider"`
	Usage    llm.Usage     `json:"-"`
	Took     time.Duration `json:"-"`
}

// Options tunes every request.
type Options struct {
	Temperature float64
	MaxTokens   int
	// Strict requires well-formed JSON and decodes it into Records.
	Strict  bool
	Timeout time.Duration
}

// Extractor is safe for concurrent use.
type Extractor struct {
	provider llm.Provider
	opts     Options
	reason   error
}

// New returns an extractor that calls p. A nil provider yields an
// unavailable extractor.
func New(p llm.Provider, opts Options) *Extractor {
	if p == nil {
		return Unavailable(errors.New("no provider"))
	}
	return &Extractor{provider: p, opts: opts}
}

// Unavailable returns an extractor whose every call fails with ErrUnavailable.
func Unavailable(reason error) *Extractor {
	if reason == nil {
		reason = errors.New("not configured")
	}
	return &Extractor{reason: reason}
}

// Available reports whether a provider is configured.
func (e *Extractor) Available() bool { return e != nil && e.provider != nil }

// Err explains why the extractor is unavailable; nil when it is ready.
func (e *Extractor) Err() error {
	if e == nil {
		return ErrUnavailable
	}
	if e.provider == nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, e.reason)
	}
	return nil
}

// Name identifies the provider, or "none".
func (e *Extractor) Name() string {
	if !e.Available() {
		return "none"
	}
	return e.provider.Name()
}

// Extract sends text to the model exactly once.
func (e *Extractor) Extract(ctx context.Context, text string) (Result, error) {
	if !e.Available() {
		return Result{}, e.Err()
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyInput
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	req := NewRequest(text)
	started := time.Now()
	resp, err := e.provider.Complete(ctx, llm.Request{
		Prompt:      req.Prompt(),
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	})
	took := time.Since(started)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrFailed, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Result{}, fmt.Errorf("%w: empty response from %s", ErrFailed, e.provider.Name())
	}

	res := Result{Text: resp.Content, Provider: e.provider.Name(), Usage: resp.Usage, Took: took}
	log.Debug().
		Str("provider", res.Provider).
		Dur("took", took).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("extract: completion received")

	if e.opts.Strict {
		records, err := Decode(resp.Content)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrFailed, err)
		}
		res.Records = records
	}
	return res, nil
}
