package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PARAMETER EXTRACTION TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestExtract_PlainFigures(t *testing.T) {
	e := NewExtractor()

	tests := []struct {
		id     string
		params float64
	}{
		{"llama3:8b", 8},
		{"llama3.2:3b", 3},
		{"mistral-7B-instruct", 7},
		{"qwen2.5:72b", 72},
		{"deepseek-r1:671b", 671},
		{"phi-1.5b", 1.5},
		{"gemma2-9b-it", 9},
		{"yi-1.5-34b-chat", 34},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			cap := e.Extract(tt.id)
			assert.Equal(t, tt.params, cap.TotalParams)
			assert.Nil(t, cap.ActiveParams)
			assert.False(t, cap.Degraded)
		})
	}
}

func TestExtract_MixtureOfExperts(t *testing.T) {
	e := NewExtractor()

	t.Run("NxMB product is the total", func(t *testing.T) {
		cap := e.Extract("mixtral-8x7b-instruct")
		assert.Equal(t, 56.0, cap.TotalParams)
		require.NotNil(t, cap.ActiveParams)
		assert.Equal(t, 7.0, *cap.ActiveParams)
	})

	t.Run("large mixture", func(t *testing.T) {
		cap := e.Extract("mixtral:8x22b")
		assert.Equal(t, 176.0, cap.TotalParams)
		require.NotNil(t, cap.ActiveParams)
		assert.Equal(t, 22.0, *cap.ActiveParams)
	})

	t.Run("total-active pair", func(t *testing.T) {
		cap := e.Extract("qwen3-30b-a3b")
		assert.Equal(t, 30.0, cap.TotalParams)
		require.NotNil(t, cap.ActiveParams)
		assert.Equal(t, 3.0, *cap.ActiveParams)
	})

	t.Run("total-active pair with larger figures", func(t *testing.T) {
		cap := e.Extract("glm-4.5-air-106b-a12b")
		assert.Equal(t, 106.0, cap.TotalParams)
		require.NotNil(t, cap.ActiveParams)
		assert.Equal(t, 12.0, *cap.ActiveParams)
	})

	t.Run("tiering uses total params", func(t *testing.T) {
		th := DefaultThresholds()
		cap := e.Extract("qwen3-30b-a3b")
		// 3B active would be small, 30B total is large.
		assert.Equal(t, TierLarge, th.Classify(cap.TotalParams))
	})
}

func TestExtract_NoFigure(t *testing.T) {
	e := NewExtractor()

	for _, id := range []string{"mistral-large-latest", "phi", "command-r-plus", ""} {
		t.Run(id, func(t *testing.T) {
			cap := e.Extract(id)
			assert.Equal(t, DefaultParamsB, cap.TotalParams, "unparseable ids fall back to the default figure")
			assert.True(t, cap.Degraded)
			assert.Nil(t, cap.ActiveParams)
		})
	}
}

func TestExtract_NoFigure_CustomDefault(t *testing.T) {
	e := NewExtractor(WithDefaultParams(13))

	cap := e.Extract("command-r-plus")
	assert.Equal(t, 13.0, cap.TotalParams)
	assert.True(t, cap.Degraded)
}

func TestExtract_DoesNotMatchQuantSuffixes(t *testing.T) {
	e := NewExtractor()

	// "8bit" must not read as an 8B parameter figure.
	cap := e.Extract("mistral-hermes-8bit")
	assert.True(t, cap.Degraded)
	assert.Equal(t, DefaultParamsB, cap.TotalParams)
}

func TestExtract_ExcludedFamilies(t *testing.T) {
	e := NewExtractor()

	tests := []struct {
		id       string
		excluded bool
	}{
		{"nomic-embed-text", true},
		{"mxbai-embed-large", true},
		{"bge-m3", true},
		{"snowflake-arctic-embed:335m", true},
		{"llava:7b", true},
		{"qwen2-vl-7b", true},
		{"moondream:1.8b", true},
		{"whisper-large-v3", true},
		{"mini-tts-1b", true},
		{"llama3:8b", false},
		{"qwen2.5-coder:7b", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.excluded, e.Extract(tt.id).IsExcluded)
		})
	}
}

func TestExtract_ExcludedKeepsParams(t *testing.T) {
	e := NewExtractor()

	// Exclusion is independent of the parameter figure.
	cap := e.Extract("llava:7b")
	assert.True(t, cap.IsExcluded)
	assert.Equal(t, 7.0, cap.TotalParams)
}

func TestExtract_CoderFamilies(t *testing.T) {
	e := NewExtractor()

	tests := []struct {
		id    string
		coder bool
	}{
		{"qwen2.5-coder:14b", true},
		{"codellama:13b", true},
		{"codestral:22b", true},
		{"starcoder2:15b", true},
		{"deepseek-coder-v2", true},
		{"llama3:8b", false},
		{"mistral:7b", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.coder, e.Extract(tt.id).IsCoder)
		})
	}
}

func TestExtract_CustomMarkers(t *testing.T) {
	e := NewExtractor(
		WithExcludedMarkers([]string{"banned"}),
		WithCoderMarkers([]string{"dev"}),
	)

	assert.True(t, e.Extract("banned-model-7b").IsExcluded)
	assert.False(t, e.Extract("nomic-embed-text").IsExcluded, "default markers replaced")
	assert.True(t, e.Extract("dev-model-7b").IsCoder)
	assert.False(t, e.Extract("qwen2.5-coder:7b").IsCoder, "default markers replaced")
}

func TestExtract_Deterministic(t *testing.T) {
	e := NewExtractor()

	for _, id := range []string{"llama3:8b", "mixtral-8x7b", "qwen3-30b-a3b", "unknown-model"} {
		first := e.Extract(id)
		second := e.Extract(id)
		assert.Equal(t, first, second, "Extract must be pure for %q", id)
	}
}
