// Package llm provides Language Model backend clients for the smart router.
// A Provider does two jobs: list the models the backend currently serves
// (discovery, feeding the registry) and run one-shot completions (the
// classifier fallback). Both are non-streaming; the router never proxies
// user traffic itself.
package llm

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Security limits to prevent unbounded memory usage
const (
	// MaxErrorBodySize limits how much error response body we read (1MB)
	// This prevents memory exhaustion from malformed/malicious error responses
	MaxErrorBodySize = 1 * 1024 * 1024

	// MaxResponseBodySize limits total completion response size (8MB)
	MaxResponseBodySize = 8 * 1024 * 1024
)

// readLimitedBody reads up to maxBytes from r, returning the bytes read.
// This is used for error responses to prevent unbounded memory allocation.
func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// Provider defines the interface for LLM backends.
type Provider interface {
	// ListModels returns the models the backend currently serves.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Complete sends a one-shot, non-streaming completion request.
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string

	// Available returns true if the provider is configured and reachable.
	Available() bool
}

// ModelInfo describes one model as reported by the backend.
type ModelInfo struct {
	// ID is the model identifier exactly as the backend reports it
	// (e.g. "qwen3-30b-a3b", "llama3:8b-instruct-q4_K_M").
	ID string `json:"id"`

	// SizeBytes is the on-disk size if the backend reports one, else 0.
	SizeBytes int64 `json:"size_bytes,omitempty"`

	// ModifiedAt is the backend's last-modified timestamp if reported.
	ModifiedAt string `json:"modified_at,omitempty"`
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	// Model to use (provider-specific).
	Model string `json:"model"`

	// SystemPrompt sets the model's behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages in the conversation.
	Messages []Message `json:"messages"`

	// MaxTokens limits response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `json:"temperature,omitempty"`
}

// Message represents a single conversation message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatResponse represents a completion response.
type ChatResponse struct {
	// Content is the model's reply.
	Content string `json:"content"`

	// Model that generated the response.
	Model string `json:"model"`

	// TokensUsed for the full exchange, if reported.
	TokensUsed int `json:"tokens_used,omitempty"`

	// PromptTokens counts input tokens, if reported.
	PromptTokens int `json:"prompt_tokens,omitempty"`

	// CompletionTokens counts output tokens, if reported.
	CompletionTokens int `json:"completion_tokens,omitempty"`

	// Duration of the call.
	Duration time.Duration `json:"duration,omitempty"`

	// FinishReason indicates why generation stopped.
	FinishReason string `json:"finish_reason,omitempty"`
}

// ProviderConfig holds common provider configuration.
type ProviderConfig struct {
	// Name identifies the provider.
	Name string `json:"name"`

	// Endpoint is the API base URL.
	Endpoint string `json:"endpoint"`

	// APIKey for authenticated backends. Empty for local Ollama.
	APIKey string `json:"api_key,omitempty"`

	// Timeout for completion requests.
	Timeout time.Duration `json:"timeout"`

	// MaxTokens default response limit.
	MaxTokens int `json:"max_tokens"`

	// Temperature default sampling temperature.
	Temperature float64 `json:"temperature"`
}

// DefaultConfig returns sensible defaults per provider.
func DefaultConfig(name string) ProviderConfig {
	cfg := ProviderConfig{
		Name:        name,
		Timeout:     30 * time.Second,
		MaxTokens:   256,
		Temperature: 0.0,
	}

	switch name {
	case "ollama":
		cfg.Endpoint = "http://127.0.0.1:11434"
	case "mock":
		cfg.Endpoint = "mock://local"
	}

	return cfg
}

// baseProvider provides common HTTP plumbing for concrete providers.
type baseProvider struct {
	config ProviderConfig
	client *http.Client
}

func newBaseProvider(config ProviderConfig) baseProvider {
	return baseProvider{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}
}
