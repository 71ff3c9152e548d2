package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_ListModels(t *testing.T) {
	mock := NewMockProvider().WithModels("llama3:8b", "qwen3-30b-a3b")

	models, err := mock.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3:8b", models[0].ID)
	assert.Equal(t, 1, mock.ListCalls())
}

func TestMockProvider_ListError(t *testing.T) {
	wantErr := errors.New("connection refused")
	mock := NewMockProvider().WithListError(wantErr)

	_, err := mock.ListModels(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, mock.Available())
}

func TestMockProvider_Complete(t *testing.T) {
	mock := NewMockProvider().
		WithResponse("design a distributed", "LARGE").
		WithFallbackResponse("SMALL")

	resp, err := mock.Complete(context.Background(), &ChatRequest{
		Model:    "llama3.2:1b",
		Messages: []Message{{Role: "user", Content: "Design a distributed cache"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "LARGE", resp.Content)

	resp, err = mock.Complete(context.Background(), &ChatRequest{
		Model:    "llama3.2:1b",
		Messages: []Message{{Role: "user", Content: "what is 2+2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SMALL", resp.Content)

	assert.Equal(t, 2, mock.CompleteCalls())
	require.NotNil(t, mock.LastRequest())
	assert.Equal(t, "llama3.2:1b", mock.LastRequest().Model)
}

func TestMockProvider_DelayHonorsContext(t *testing.T) {
	mock := NewMockProvider().
		WithModels("llama3:8b").
		WithDelay(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := mock.ListModels(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "should abort on context, not sleep out the delay")
}
