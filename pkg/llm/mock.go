package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient provides a controllable implementation of LLMClient for testing.
// Responses and errors are consumed in order; an error entry at the current
// position takes precedence over the response at the same position.
type MockClient struct {
	mu            sync.Mutex
	responses     []CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	calls         []CompletionRequest
}

// NewMockClient creates a new mock client with predefined responses.
func NewMockClient(responses []CompletionResponse, errors []error) *MockClient {
	return &MockClient{
		responses: responses,
		errors:    errors,
	}
}

// NewMockClientWithContent creates a mock client that returns the given
// content strings in order.
func NewMockClientWithContent(contents ...string) *MockClient {
	responses := make([]CompletionResponse, len(contents))
	for i, c := range contents {
		responses[i] = CompletionResponse{Content: c, StopReason: "end_turn"}
	}
	return NewMockClient(responses, nil)
}

// Complete returns the next predefined response or error.
func (m *MockClient) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return CompletionResponse{}, err
	}
	if m.errorIndex < len(m.errors) {
		m.errorIndex++
	}

	if m.responseIndex >= len(m.responses) {
		return CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// GetModelName returns a fixed mock model name.
func (m *MockClient) GetModelName() string {
	return "mock-model"
}

// Calls returns the requests received so far.
func (m *MockClient) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many Complete calls were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
