// Package mock provides a test double for transcribe.Transcriber.
package mock

import (
	"context"
	"sync"

	"github.com/obiente/spendvoice/internal/audio"
	"github.com/obiente/spendvoice/internal/transcribe"
)

// Transcriber returns Result and Err for every call and records the clips.
type Transcriber struct {
	mu sync.Mutex

	Result transcribe.Result
	Err    error

	Calls  []audio.Clip
	Closed bool
}

func (m *Transcriber) Transcribe(ctx context.Context, clip audio.Clip) (transcribe.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, clip)
	if m.Err != nil {
		return transcribe.Result{}, m.Err
	}
	return m.Result, nil
}

func (m *Transcriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// CallCount returns the number of Transcribe calls.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
