package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOllamaListModels_Native verifies discovery against the /api/tags endpoint.
func TestOllamaListModels_Native(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"models": [
				{"name": "qwen3-30b-a3b", "model": "qwen3-30b-a3b", "modified_at": "2025-06-01T10:00:00Z", "size": 18000000000},
				{"name": "llama3:8b", "model": "llama3:8b", "size": 4700000000},
				{"name": "", "model": ""}
			]
		}`))
	}))
	defer server.Close()

	provider := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL})

	models, err := provider.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2, "entries without a name should be dropped")

	assert.Equal(t, "qwen3-30b-a3b", models[0].ID)
	assert.Equal(t, int64(18000000000), models[0].SizeBytes)
	assert.Equal(t, "llama3:8b", models[1].ID)
}

// TestOllamaListModels_OpenAIFallback verifies that a 404 on /api/tags
// triggers the OpenAI-compatible /v1/models fallback.
func TestOllamaListModels_OpenAIFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			http.NotFound(w, r)
		case "/v1/models":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"data": [
					{"id": "mlx-community/Qwen2.5-14B-Instruct-4bit", "object": "model"},
					{"id": "default", "object": "model"},
					{"id": "mlx-community/Llama-3.2-3B-Instruct-4bit", "object": "model"}
				]
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	provider := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL})

	models, err := provider.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2, "the mlx-lm 'default' placeholder should be dropped")

	assert.Equal(t, "mlx-community/Qwen2.5-14B-Instruct-4bit", models[0].ID)
	assert.Equal(t, "mlx-community/Llama-3.2-3B-Instruct-4bit", models[1].ID)
}

// TestOllamaListModels_ServerError verifies non-404 failures do not fall back.
func TestOllamaListModels_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path, "a 500 should not trigger the fallback probe")
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL})

	_, err := provider.ListModels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "backend exploded")
}

// TestOllamaComplete verifies the non-streaming completion round trip.
func TestOllamaComplete(t *testing.T) {
	var captured ollamaChatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "llama3.2:1b",
			"message": {"role": "assistant", "content": "MEDIUM"},
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 42,
			"eval_count": 3
		}`))
	}))
	defer server.Close()

	provider := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL})

	resp, err := provider.Complete(context.Background(), &ChatRequest{
		Model:        "llama3.2:1b",
		SystemPrompt: "You are a classifier.",
		Messages:     []Message{{Role: "user", Content: "how complex is this?"}},
		MaxTokens:    8,
		Temperature:  0.0,
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	// Request shape
	assert.Equal(t, "llama3.2:1b", captured.Model)
	assert.False(t, captured.Stream, "classifier calls must not stream")
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "You are a classifier.", captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, 8, captured.Options.NumPredict)

	// Response shape
	assert.Equal(t, "MEDIUM", resp.Content)
	assert.Equal(t, "llama3.2:1b", resp.Model)
	assert.Equal(t, 42, resp.PromptTokens)
	assert.Equal(t, 3, resp.CompletionTokens)
	assert.Equal(t, 45, resp.TokensUsed)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Greater(t, resp.Duration, time.Duration(0))
}

// TestOllamaComplete_HTTPError verifies error bodies surface in the error.
func TestOllamaComplete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'missing' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL})

	_, err := provider.Complete(context.Background(), &ChatRequest{
		Model:    "missing",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "not found")
}

// TestOllamaComplete_Validation verifies request preconditions.
func TestOllamaComplete_Validation(t *testing.T) {
	provider := NewOllamaProvider(nil)

	_, err := provider.Complete(context.Background(), nil)
	assert.Error(t, err)

	_, err = provider.Complete(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	assert.Error(t, err, "missing model should be rejected before any network call")
}

// TestOllamaComplete_ContextCancellation verifies in-flight calls abort.
func TestOllamaComplete_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read is armed;
		// without it the client disconnect is never observed and
		// r.Context() is never canceled, deadlocking server.Close.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := provider.Complete(ctx, &ChatRequest{
			Model:    "test-model",
			Messages: []Message{{Role: "user", Content: "test"}},
		})
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "context canceled")
	case <-time.After(2 * time.Second):
		t.Fatal("Complete() did not return after context cancellation")
	}
}

// TestOllamaAvailable verifies the reachability probe.
func TestOllamaAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models": []}`))
	}))

	provider := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL})
	assert.True(t, provider.Available(), "an empty backend is still reachable")

	server.Close()
	assert.False(t, provider.Available())
}

// TestOllamaDefaultTimeouts verifies local vs remote timeout selection.
func TestOllamaDefaultTimeouts(t *testing.T) {
	local := NewOllamaProvider(&ProviderConfig{Endpoint: "http://127.0.0.1:11434"})
	assert.Equal(t, defaultLocalTimeout, local.config.Timeout)

	remote := NewOllamaProvider(&ProviderConfig{Endpoint: "http://gpu-box.lan:11434"})
	assert.Equal(t, defaultRemoteTimeout, remote.config.Timeout)

	explicit := NewOllamaProvider(&ProviderConfig{
		Endpoint: "http://gpu-box.lan:11434",
		Timeout:  7 * time.Second,
	})
	assert.Equal(t, 7*time.Second, explicit.config.Timeout)
}

// TestIsRemoteEndpoint verifies remote endpoint detection.
func TestIsRemoteEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"http://localhost:11434", false},
		{"http://127.0.0.1:11434", false},
		{"http://[::1]:11434", false},
		{"http://host.docker.internal:11434", false},
		{"http://docker.for.mac.localhost:11434", false},
		{"http://192.168.1.100:11434", true},
		{"http://example.com:11434", true},
		{"https://api.ollama.ai", true},
		{"invalid-url", true}, // No recognizable local host, treat as remote
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			got := isRemoteEndpoint(tt.endpoint)
			assert.Equal(t, tt.want, got)
		})
	}
}
