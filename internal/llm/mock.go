package llm

import (
	"context"
	"fmt"
	"sync"

	"sdsdg/internal/types"
)

// MockTransport is a configurable Transport for tests. CompleteFunc decides each
// reply; when it is nil, Responses are returned in order.
type MockTransport struct {
	CompleteFunc func(ctx context.Context, messages []types.Message, maxOutputTokens int) (string, error)
	Responses    []string

	mu       sync.Mutex
	calls    int
	requests [][]types.Message
}

// NewMockTransport returns a mock that replies with responses in order.
func NewMockTransport(responses ...string) *MockTransport {
	return &MockTransport{Responses: responses}
}

// Complete implements Transport.
func (m *MockTransport) Complete(ctx context.Context, messages []types.Message, maxOutputTokens int) (string, error) {
	m.mu.Lock()
	n := m.calls
	m.calls++
	m.requests = append(m.requests, messages)
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, maxOutputTokens)
	}
	if n >= len(m.Responses) {
		return "", fmt.Errorf("mock transport: no response scripted for call %d", n+1)
	}
	return m.Responses[n], nil
}

// Calls returns the number of Complete calls so far.
func (m *MockTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns the messages of every call so far.
func (m *MockTransport) Requests() [][]types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]types.Message, len(m.requests))
	copy(out, m.requests)
	return out
}
