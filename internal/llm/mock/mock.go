// Package mock provides a test double for llm.Provider.
//
//	p := &mock.Provider{Response: &llm.Response{Content: `{"amount": 500}`}}
package mock

import (
	"context"
	"sync"

	"github.com/obiente/spendvoice/internal/llm"
)

// Provider records every request and returns Response or Err.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete. May be nil (returns nil, nil).
	Response *llm.Response
	// Err, if non-nil, is returned instead of Response.
	Err error
	// ProviderName is returned by Name; defaults to "mock".
	ProviderName string

	Calls []llm.Request
}

func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Response, nil
}

func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// CallCount returns the number of Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Requests returns a copy of the recorded requests.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.Calls...)
}
