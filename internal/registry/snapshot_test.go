package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mono-of-pg/llm-smart-router/internal/capability"
)

func defaultOpts() BuildOptions {
	return BuildOptions{Thresholds: capability.DefaultThresholds()}
}

func TestBuildSnapshot_GroupsByTier(t *testing.T) {
	snap := BuildSnapshot([]string{
		"llama3.2:1b",
		"llama3:8b",
		"llama3.1:70b",
		"qwen2.5:14b",
		"qwen2.5:0.5b",
	}, defaultOpts())

	small := snap.TierEntries(capability.TierSmall)
	medium := snap.TierEntries(capability.TierMedium)
	large := snap.TierEntries(capability.TierLarge)

	require.Len(t, small, 2)
	require.Len(t, medium, 2)
	require.Len(t, large, 1)

	// Groups order by descending total params, ties by id.
	assert.Equal(t, "llama3.2:1b", small[0].ID)
	assert.Equal(t, "qwen2.5:0.5b", small[1].ID)
	assert.Equal(t, "qwen2.5:14b", medium[0].ID)
	assert.Equal(t, "llama3:8b", medium[1].ID)
	assert.Equal(t, "llama3.1:70b", large[0].ID)
}

func TestBuildSnapshot_OrderTiesById(t *testing.T) {
	snap := BuildSnapshot([]string{"zeta:8b", "alpha:8b", "mid:8b"}, defaultOpts())

	medium := snap.TierEntries(capability.TierMedium)
	require.Len(t, medium, 3)
	assert.Equal(t, "alpha:8b", medium[0].ID)
	assert.Equal(t, "mid:8b", medium[1].ID)
	assert.Equal(t, "zeta:8b", medium[2].ID)
}

func TestBuildSnapshot_DropsExcludedFamilies(t *testing.T) {
	snap := BuildSnapshot([]string{
		"llama3:8b",
		"nomic-embed-text",
		"llava:7b",
		"whisper-large-v3",
		"mxbai-embed-large",
	}, defaultOpts())

	assert.Equal(t, 1, snap.Len())
	_, ok := snap.Find("llama3:8b")
	assert.True(t, ok)
	_, ok = snap.Find("llava:7b")
	assert.False(t, ok)
}

func TestBuildSnapshot_FilterPolicy(t *testing.T) {
	raw := []string{"llama3:8b", "mistral:7b", "qwen2.5:14b"}

	t.Run("allow keeps only listed ids", func(t *testing.T) {
		snap := BuildSnapshot(raw, BuildOptions{
			Thresholds: capability.DefaultThresholds(),
			Filter:     FilterPolicy{Mode: FilterAllow, Models: []string{"mistral:7b"}},
		})
		assert.Equal(t, 1, snap.Len())
		_, ok := snap.Find("mistral:7b")
		assert.True(t, ok)
	})

	t.Run("deny drops listed ids", func(t *testing.T) {
		snap := BuildSnapshot(raw, BuildOptions{
			Thresholds: capability.DefaultThresholds(),
			Filter:     FilterPolicy{Mode: FilterDeny, Models: []string{"mistral:7b"}},
		})
		assert.Equal(t, 2, snap.Len())
		_, ok := snap.Find("mistral:7b")
		assert.False(t, ok)
	})

	t.Run("off keeps everything", func(t *testing.T) {
		snap := BuildSnapshot(raw, BuildOptions{
			Thresholds: capability.DefaultThresholds(),
			Filter:     FilterPolicy{Models: []string{"mistral:7b"}},
		})
		assert.Equal(t, 3, snap.Len())
	})
}

func TestBuildSnapshot_TierOverrides(t *testing.T) {
	snap := BuildSnapshot([]string{"llama3:8b", "mistral:7b"}, BuildOptions{
		Thresholds: capability.DefaultThresholds(),
		TierOverrides: map[string]capability.Tier{
			"llama3:8b":  capability.TierLarge,
			"mistral:7b": capability.Tier("huge"), // invalid, ignored
		},
	})

	entry, ok := snap.Find("llama3:8b")
	require.True(t, ok)
	assert.Equal(t, capability.TierLarge, entry.Tier, "override replaces the computed tier")

	entry, ok = snap.Find("mistral:7b")
	require.True(t, ok)
	assert.Equal(t, capability.TierMedium, entry.Tier, "invalid override keeps the computed tier")
}

func TestBuildSnapshot_DedupesAndSkipsEmptyIds(t *testing.T) {
	snap := BuildSnapshot([]string{"llama3:8b", "", "llama3:8b"}, defaultOpts())
	assert.Equal(t, 1, snap.Len())
}

func TestBuildSnapshot_UnparseableIdStillTiered(t *testing.T) {
	snap := BuildSnapshot([]string{"mystery-model"}, defaultOpts())

	entry, ok := snap.Find("mystery-model")
	require.True(t, ok, "parse failure must not exclude a model")
	assert.Equal(t, capability.TierMedium, entry.Tier)
	assert.True(t, entry.Capability.Degraded)
}

func TestBuildSnapshot_InvalidThresholdsFallBackToDefaults(t *testing.T) {
	snap := BuildSnapshot([]string{"llama3:8b"}, BuildOptions{
		Thresholds: capability.Thresholds{SmallMaxB: 20, MediumMaxB: 10},
	})

	assert.Equal(t, capability.DefaultThresholds(), snap.Thresholds())
	entry, _ := snap.Find("llama3:8b")
	assert.Equal(t, capability.TierMedium, entry.Tier)
}

func TestProbeOrder(t *testing.T) {
	tests := []struct {
		tier capability.Tier
		want []capability.Tier
	}{
		{capability.TierSmall, []capability.Tier{capability.TierSmall, capability.TierMedium, capability.TierLarge}},
		{capability.TierMedium, []capability.Tier{capability.TierMedium, capability.TierLarge, capability.TierSmall}},
		{capability.TierLarge, []capability.Tier{capability.TierLarge, capability.TierMedium, capability.TierSmall}},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			assert.Equal(t, tt.want, probeOrder(tt.tier))
		})
	}
}

func TestSnapshot_Lookup_UpwardThenDownward(t *testing.T) {
	t.Run("empty small falls up to medium", func(t *testing.T) {
		snap := BuildSnapshot([]string{"llama3:8b", "llama3.1:70b"}, defaultOpts())
		entry, err := snap.Lookup(capability.TierSmall)
		require.NoError(t, err)
		assert.Equal(t, "llama3:8b", entry.ID)
	})

	t.Run("empty small and medium fall up to large", func(t *testing.T) {
		snap := BuildSnapshot([]string{"llama3.1:70b"}, defaultOpts())
		entry, err := snap.Lookup(capability.TierSmall)
		require.NoError(t, err)
		assert.Equal(t, "llama3.1:70b", entry.ID)
	})

	t.Run("empty medium prefers large over small", func(t *testing.T) {
		snap := BuildSnapshot([]string{"llama3.2:1b", "llama3.1:70b"}, defaultOpts())
		entry, err := snap.Lookup(capability.TierMedium)
		require.NoError(t, err)
		assert.Equal(t, "llama3.1:70b", entry.ID, "upward beats downward")
	})

	t.Run("empty large falls down to medium", func(t *testing.T) {
		snap := BuildSnapshot([]string{"llama3.2:1b", "llama3:8b"}, defaultOpts())
		entry, err := snap.Lookup(capability.TierLarge)
		require.NoError(t, err)
		assert.Equal(t, "llama3:8b", entry.ID)
	})

	t.Run("only small serves large requests", func(t *testing.T) {
		snap := BuildSnapshot([]string{"llama3.2:1b"}, defaultOpts())
		entry, err := snap.Lookup(capability.TierLarge)
		require.NoError(t, err)
		assert.Equal(t, "llama3.2:1b", entry.ID)
	})
}

func TestSnapshot_Lookup_AllTiersEmpty(t *testing.T) {
	snap := BuildSnapshot(nil, defaultOpts())

	for _, tier := range capability.AllTiers() {
		_, err := snap.Lookup(tier)
		assert.ErrorIs(t, err, ErrNoEligibleModel)
	}
}

func TestSnapshot_ClassifierEntry(t *testing.T) {
	t.Run("globally smallest wins", func(t *testing.T) {
		snap := BuildSnapshot([]string{"llama3.1:70b", "llama3:8b", "qwen2.5:0.5b"}, defaultOpts())
		entry, err := snap.ClassifierEntry()
		require.NoError(t, err)
		assert.Equal(t, "qwen2.5:0.5b", entry.ID)
	})

	t.Run("ties break by id", func(t *testing.T) {
		snap := BuildSnapshot([]string{"zeta:1b", "alpha:1b"}, defaultOpts())
		entry, err := snap.ClassifierEntry()
		require.NoError(t, err)
		assert.Equal(t, "alpha:1b", entry.ID)
	})

	t.Run("coder markers do not matter", func(t *testing.T) {
		snap := BuildSnapshot([]string{"qwen2.5-coder:0.5b", "llama3.2:1b"}, defaultOpts())
		entry, err := snap.ClassifierEntry()
		require.NoError(t, err)
		assert.Equal(t, "qwen2.5-coder:0.5b", entry.ID, "selection is purely by size")
	})

	t.Run("empty snapshot errors", func(t *testing.T) {
		snap := BuildSnapshot(nil, defaultOpts())
		_, err := snap.ClassifierEntry()
		assert.ErrorIs(t, err, ErrNoEligibleModel)
	})
}

func TestSnapshot_Entries_AscendingTierOrder(t *testing.T) {
	snap := BuildSnapshot([]string{"llama3.1:70b", "llama3.2:1b", "llama3:8b"}, defaultOpts())

	entries := snap.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, capability.TierSmall, entries[0].Tier)
	assert.Equal(t, capability.TierMedium, entries[1].Tier)
	assert.Equal(t, capability.TierLarge, entries[2].Tier)
}

func TestSnapshot_EmptyAndLen(t *testing.T) {
	empty := BuildSnapshot(nil, defaultOpts())
	assert.True(t, empty.Empty())
	assert.Equal(t, 0, empty.Len())

	populated := BuildSnapshot([]string{"llama3:8b"}, defaultOpts())
	assert.False(t, populated.Empty())
	assert.Equal(t, 1, populated.Len())
}
