package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockProvider is a mock implementation for testing. It serves a fixed
// model list and canned completion responses keyed by substring match
// on the last user message.
type MockProvider struct {
	mu               sync.Mutex
	models           []ModelInfo
	responses        map[string]string
	fallback         string
	listErr          error
	chatErr          error
	delay            time.Duration
	promptTokens     int
	completionTokens int

	listCalls     int
	completeCalls int
	lastRequest   *ChatRequest
}

// NewMockProvider creates a mock provider for testing.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		responses: make(map[string]string),
		fallback:  "MEDIUM",
	}
}

// WithModels sets the model IDs the mock reports from ListModels.
func (m *MockProvider) WithModels(ids ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = m.models[:0]
	for _, id := range ids {
		m.models = append(m.models, ModelInfo{ID: id})
	}
	return m
}

// WithResponse maps an input substring to a canned completion reply.
func (m *MockProvider) WithResponse(inputContains, reply string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[strings.ToLower(inputContains)] = reply
	return m
}

// WithFallbackResponse sets the reply used when no mapping matches.
func (m *MockProvider) WithFallbackResponse(reply string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = reply
	return m
}

// WithListError makes ListModels fail.
func (m *MockProvider) WithListError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	return m
}

// WithCompleteError makes Complete fail.
func (m *MockProvider) WithCompleteError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatErr = err
	return m
}

// WithDelay sets a simulated latency for testing timeout behavior.
func (m *MockProvider) WithDelay(delay time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
	return m
}

// WithUsage sets the token usage reported on every completion.
func (m *MockProvider) WithUsage(promptTokens, completionTokens int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = promptTokens
	m.completionTokens = completionTokens
	return m
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}

// Available implements Provider.
func (m *MockProvider) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listErr == nil
}

// ListModels implements Provider.
func (m *MockProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]ModelInfo, len(m.models))
	copy(out, m.models)
	return out, nil
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++
	m.lastRequest = req
	if m.chatErr != nil {
		return nil, m.chatErr
	}

	input := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			input = strings.ToLower(req.Messages[i].Content)
			break
		}
	}

	content := m.fallback
	for key, reply := range m.responses {
		if strings.Contains(input, key) {
			content = reply
			break
		}
	}

	return &ChatResponse{
		Content:          content,
		Model:            req.Model,
		FinishReason:     "stop",
		TokensUsed:       m.promptTokens + m.completionTokens,
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
	}, nil
}

// ListCalls reports how many times ListModels was invoked.
func (m *MockProvider) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// CompleteCalls reports how many times Complete was invoked.
func (m *MockProvider) CompleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeCalls
}

// LastRequest returns the most recent Complete request.
func (m *MockProvider) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

func (m *MockProvider) sleep(ctx context.Context) error {
	m.mu.Lock()
	d := m.delay
	m.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
