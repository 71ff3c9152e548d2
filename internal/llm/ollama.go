package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Default completion timeouts. Remote servers need more headroom for
// network latency, queued requests, and cold-start model loading.
const (
	defaultLocalTimeout  = 30 * time.Second
	defaultRemoteTimeout = 120 * time.Second

	// availabilityTimeout bounds the reachability probe.
	availabilityTimeout = 5 * time.Second
)

// isRemoteEndpoint checks if the endpoint is a remote server (not localhost).
func isRemoteEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false // Assume local if can't parse
	}
	host := u.Hostname()
	// Local addresses
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return false
	}
	// Local Docker/container addresses
	if host == "host.docker.internal" || host == "docker.for.mac.localhost" {
		return false
	}
	// Any other address is considered remote
	return true
}

// OllamaProvider implements Provider for Ollama and OpenAI-compatible
// servers (mlx-lm, llama.cpp server, vLLM). Discovery tries the native
// /api/tags endpoint first and falls back to /v1/models so a single
// provider covers both API families.
type OllamaProvider struct {
	baseProvider
}

// OllamaOption is a functional option for configuring OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithHTTPClient replaces the HTTP client. Used in tests.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) {
		p.client = client
	}
}

// WithRequestTimeout sets the completion request timeout.
func WithRequestTimeout(d time.Duration) OllamaOption {
	return func(p *OllamaProvider) {
		p.config.Timeout = d
		p.client.Timeout = d
	}
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(cfg *ProviderConfig, opts ...OllamaOption) *OllamaProvider {
	if cfg == nil {
		c := DefaultConfig("ollama")
		cfg = &c
	}
	if cfg.Name == "" {
		cfg.Name = "ollama"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://127.0.0.1:11434"
	}
	if cfg.Timeout == 0 {
		if isRemoteEndpoint(cfg.Endpoint) {
			cfg.Timeout = defaultRemoteTimeout
		} else {
			cfg.Timeout = defaultLocalTimeout
		}
	}

	p := &OllamaProvider{
		baseProvider: newBaseProvider(*cfg),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name implements Provider.
func (p *OllamaProvider) Name() string {
	return p.config.Name
}

// Endpoint returns the configured base URL.
func (p *OllamaProvider) Endpoint() string {
	return p.config.Endpoint
}

// Available returns true if the backend answers its model listing endpoint.
// An empty model list still counts as available; eligibility is the
// registry's concern, reachability is ours.
func (p *OllamaProvider) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), availabilityTimeout)
	defer cancel()

	_, err := p.ListModels(ctx)
	return err == nil
}

// ollamaTagsResponse is the native /api/tags payload.
type ollamaTagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Model      string `json:"model"`
		ModifiedAt string `json:"modified_at"`
		Size       int64  `json:"size"`
	} `json:"models"`
}

// openAIModelsResponse is the OpenAI-compatible /v1/models payload.
type openAIModelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Created int64  `json:"created"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// ListModels implements Provider. It queries /api/tags and, if the
// endpoint is missing (OpenAI-compatible servers return 404 there),
// retries against /v1/models.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	models, status, err := p.listNative(ctx)
	if err == nil {
		return models, nil
	}
	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		return p.listOpenAI(ctx)
	}
	return nil, err
}

func (p *OllamaProvider) listNative(ctx context.Context) ([]ModelInfo, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating tags request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("querying %s/api/tags: %w", p.config.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, resp.StatusCode, fmt.Errorf("tags endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decoding tags response: %w", err)
	}

	models := make([]ModelInfo, 0, len(result.Models))
	for _, m := range result.Models {
		id := m.Name
		if id == "" {
			id = m.Model
		}
		if id == "" {
			continue
		}
		models = append(models, ModelInfo{
			ID:         id,
			SizeBytes:  m.Size,
			ModifiedAt: m.ModifiedAt,
		})
	}

	return models, resp.StatusCode, nil
}

func (p *OllamaProvider) listOpenAI(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.config.Endpoint+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating models request: %w", err)
	}
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s/v1/models: %w", p.config.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, fmt.Errorf("models endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var result openAIModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding models response: %w", err)
	}

	models := make([]ModelInfo, 0, len(result.Data))
	for _, m := range result.Data {
		// mlx-lm reports a "default" placeholder entry; skip it.
		if m.ID == "" || m.ID == "default" {
			continue
		}
		models = append(models, ModelInfo{ID: m.ID})
	}

	return models, nil
}

// ollamaChatRequest is the native /api/chat request body.
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaChatResponse is the native non-streaming /api/chat response body.
type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete implements Provider. The call is explicitly non-streaming:
// callers want one small, bounded response (a tier label), not a token
// stream.
func (p *OllamaProvider) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil chat request")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("chat request missing model")
	}

	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  maxTokens,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Endpoint+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(errBody))
	}

	raw, err := readLimitedBody(resp.Body, MaxResponseBodySize)
	if err != nil {
		return nil, fmt.Errorf("reading chat response: %w", err)
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}

	return &ChatResponse{
		Content:          chatResp.Message.Content,
		Model:            chatResp.Model,
		TokensUsed:       chatResp.PromptEvalCount + chatResp.EvalCount,
		PromptTokens:     chatResp.PromptEvalCount,
		CompletionTokens: chatResp.EvalCount,
		Duration:         time.Since(start),
		FinishReason:     chatResp.DoneReason,
	}, nil
}
