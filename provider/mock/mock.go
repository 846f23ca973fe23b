// Package mock provides a scripted AI provider for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/swarm/provider"
)

// MockProvider implements provider.Provider for testing. It returns scripted
// responses in order and records every prompt it was asked.
type MockProvider struct {
	mu        sync.Mutex
	name      string
	responses []string
	err       error
	idx       int

	Prompts []string
}

// New creates a MockProvider that cycles through the given responses.
func New(responses ...string) *MockProvider {
	return &MockProvider{name: "mock", responses: responses}
}

// Named creates a MockProvider with a custom name, so fallback-order tests
// can tell providers apart.
func Named(name string, responses ...string) *MockProvider {
	return &MockProvider{name: name, responses: responses}
}

// Failing creates a MockProvider whose Complete always returns err.
func Failing(name string, err error) *MockProvider {
	return &MockProvider{name: name, err: err}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return m.name }

// Complete returns the next scripted response, cycling through the queue.
func (m *MockProvider) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, req.Prompt)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock: no scripted responses")
	}
	resp := m.responses[m.idx%len(m.responses)]
	m.idx++
	return &provider.Response{
		Content: resp,
		Usage:   provider.Usage{OutputTokens: len(resp)},
	}, nil
}

// Calls reports how many completions were requested.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}
