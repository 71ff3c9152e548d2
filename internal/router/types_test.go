package router

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_UnmarshalString(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"role":"user","content":"hello world"}`), &msg)

	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, msg.Content.Parts())
}

func TestContent_UnmarshalBlocks(t *testing.T) {
	raw := `{
		"role": "user",
		"content": [
			{"type": "text", "text": "What is in this picture?"},
			{"type": "image_url", "image_url": {"url": "https://example.com/cat.png"}},
			{"type": "audio", "text": "ignored"}
		]
	}`
	var msg Message
	err := json.Unmarshal([]byte(raw), &msg)

	require.NoError(t, err)
	assert.Equal(t, []string{"What is in this picture?", "[IMAGE]"}, msg.Content.Parts())
}

func TestContent_UnmarshalInvalid(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"role":"user","content":42}`), &msg)

	assert.Error(t, err)
}

func TestContent_MarshalRoundTrip(t *testing.T) {
	t.Run("string form", func(t *testing.T) {
		data, err := json.Marshal(TextContent("hi"))
		require.NoError(t, err)
		assert.JSONEq(t, `"hi"`, string(data))
	})

	t.Run("block form", func(t *testing.T) {
		content := BlockContent(
			ContentBlock{Type: "text", Text: "look"},
			ContentBlock{Type: "image_url", ImageURL: &ImageURL{URL: "https://example.com/x.png"}},
		)
		data, err := json.Marshal(content)
		require.NoError(t, err)

		var back Content
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, content.Parts(), back.Parts())
	})
}

func TestRequest_UnmarshalWire(t *testing.T) {
	raw := `{
		"model": "qwen2.5:14b",
		"messages": [
			{"role": "system", "content": "You are helpful."},
			{"role": "user", "content": "Analyze this step by step"}
		],
		"tools": [
			{"type": "function", "function": {"name": "search", "description": "web search"}}
		]
	}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.Equal(t, "qwen2.5:14b", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "Analyze this step by step", lastUserText(req.Messages))
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "search", req.Tools[0].Function.Name)
}

func TestDecision_MarshalScoreNull(t *testing.T) {
	d := Decision{
		ID:            "x",
		SelectedModel: "m",
		Path:          PathExplicit,
		Reasons:       []string{},
	}
	data, err := json.Marshal(d)

	require.NoError(t, err)
	assert.Contains(t, string(data), `"score":null`)
	assert.Contains(t, string(data), `"routing_path":"explicit"`)
	assert.Contains(t, string(data), `"reasons":[]`)
}
