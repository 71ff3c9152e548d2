// Package registry owns the set of routable models. It builds immutable
// snapshots from the backend's discovered model list, assigns each model
// to a capability tier, and answers tier lookups with deterministic
// fallback when a tier is empty.
//
// Snapshots are values: once built they never change. The Registry
// publishes a new snapshot atomically on every refresh, so concurrent
// routing decisions each see one consistent view with no read locks.
package registry

import (
	"errors"
	"sort"
	"time"

	"github.com/mono-of-pg/llm-smart-router/internal/capability"
)

// ErrNoEligibleModel is returned when every tier of a snapshot is empty.
// A request hitting this cannot be routed at all.
var ErrNoEligibleModel = errors.New("no eligible model in any tier")

// ErrDiscoveryUnavailable wraps backend discovery failures. The registry
// keeps serving its last good snapshot while this condition holds.
var ErrDiscoveryUnavailable = errors.New("model discovery unavailable")

// ═══════════════════════════════════════════════════════════════════════════════
// TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Entry is one routable model with its derived capability and effective tier.
type Entry struct {
	ID         string                `json:"id"`
	Capability capability.Capability `json:"capability"`
	Tier       capability.Tier       `json:"tier"`
}

// FilterMode selects how the filter list is interpreted.
type FilterMode string

const (
	// FilterOff disables id filtering.
	FilterOff FilterMode = ""
	// FilterAllow keeps only the listed model ids.
	FilterAllow FilterMode = "allow"
	// FilterDeny drops the listed model ids.
	FilterDeny FilterMode = "deny"
)

// FilterPolicy restricts which discovered models become routable.
// Matching is by exact model id.
type FilterPolicy struct {
	Mode   FilterMode `json:"mode" yaml:"mode" mapstructure:"mode"`
	Models []string   `json:"models" yaml:"models" mapstructure:"models"`
}

// BuildOptions carries everything a snapshot build needs besides the raw
// model ids.
type BuildOptions struct {
	// Thresholds split total parameter counts into tiers.
	Thresholds capability.Thresholds

	// Filter is applied after exclusion, before tiering.
	Filter FilterPolicy

	// TierOverrides replaces the computed tier per model id.
	TierOverrides map[string]capability.Tier

	// Extractor parses model ids. Nil means the default extractor.
	Extractor *capability.Extractor
}

// Snapshot is an immutable view of the eligible models grouped by tier.
// All methods are safe for concurrent use; none of them mutate state.
type Snapshot struct {
	tiers      map[capability.Tier][]Entry
	thresholds capability.Thresholds
	builtAt    time.Time
}

// ═══════════════════════════════════════════════════════════════════════════════
// BUILD
// ═══════════════════════════════════════════════════════════════════════════════

// BuildSnapshot derives a snapshot from raw model ids. Steps, in order:
// extract capabilities, drop excluded families, apply the filter policy,
// tier by total parameters, apply per-id overrides, then group each tier
// ordered by descending total parameters with ties broken by id.
func BuildSnapshot(rawModels []string, opts BuildOptions) *Snapshot {
	extractor := opts.Extractor
	if extractor == nil {
		extractor = capability.NewExtractor()
	}

	thresholds := opts.Thresholds
	if err := thresholds.Validate(); err != nil {
		thresholds = capability.DefaultThresholds()
	}

	var filterSet map[string]bool
	if opts.Filter.Mode == FilterAllow || opts.Filter.Mode == FilterDeny {
		filterSet = make(map[string]bool, len(opts.Filter.Models))
		for _, id := range opts.Filter.Models {
			filterSet[id] = true
		}
	}

	tiers := make(map[capability.Tier][]Entry, len(capability.AllTiers()))
	seen := make(map[string]bool, len(rawModels))

	for _, id := range rawModels {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		cap := extractor.Extract(id)
		if cap.IsExcluded {
			continue
		}

		switch opts.Filter.Mode {
		case FilterAllow:
			if !filterSet[id] {
				continue
			}
		case FilterDeny:
			if filterSet[id] {
				continue
			}
		}

		tier := thresholds.Classify(cap.TotalParams)
		if override, ok := opts.TierOverrides[id]; ok && override.IsValid() {
			tier = override
		}

		tiers[tier] = append(tiers[tier], Entry{
			ID:         id,
			Capability: cap,
			Tier:       tier,
		})
	}

	for tier := range tiers {
		group := tiers[tier]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Capability.TotalParams != group[j].Capability.TotalParams {
				return group[i].Capability.TotalParams > group[j].Capability.TotalParams
			}
			return group[i].ID < group[j].ID
		})
	}

	return &Snapshot{
		tiers:      tiers,
		thresholds: thresholds,
		builtAt:    time.Now(),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOOKUP
// ═══════════════════════════════════════════════════════════════════════════════

// probeOrder returns the tiers to try for a request, as an explicit list:
// the requested tier first, then every larger tier ascending, then every
// smaller tier descending. Routing up degrades cost, routing down degrades
// quality, so up wins.
func probeOrder(tier capability.Tier) []capability.Tier {
	all := capability.AllTiers()
	idx := tier.Index()

	order := make([]capability.Tier, 0, len(all))
	order = append(order, all[idx])
	for i := idx + 1; i < len(all); i++ {
		order = append(order, all[i])
	}
	for i := idx - 1; i >= 0; i-- {
		order = append(order, all[i])
	}
	return order
}

// Lookup returns the first entry for the requested tier, falling back
// upward then downward through neighboring tiers when the requested
// group is empty. Returns ErrNoEligibleModel only if every tier is empty.
func (s *Snapshot) Lookup(tier capability.Tier) (Entry, error) {
	for _, probe := range probeOrder(tier) {
		if group := s.tiers[probe]; len(group) > 0 {
			return group[0], nil
		}
	}
	return Entry{}, ErrNoEligibleModel
}

// TierEntries returns the ordered group for one tier. Callers must treat
// the returned slice as read-only.
func (s *Snapshot) TierEntries(tier capability.Tier) []Entry {
	return s.tiers[tier]
}

// Entries returns all entries across tiers, smallest tier first, each
// group in its snapshot order.
func (s *Snapshot) Entries() []Entry {
	var out []Entry
	for _, tier := range capability.AllTiers() {
		out = append(out, s.tiers[tier]...)
	}
	return out
}

// Find returns the entry for an exact model id, if present.
func (s *Snapshot) Find(id string) (Entry, bool) {
	for _, tier := range capability.AllTiers() {
		for _, e := range s.tiers[tier] {
			if e.ID == id {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// ClassifierEntry returns the globally cheapest model: smallest total
// parameter count across all tiers, ties broken by id. Recomputed from
// the snapshot on every call so it can never go stale.
func (s *Snapshot) ClassifierEntry() (Entry, error) {
	var best Entry
	found := false
	for _, tier := range capability.AllTiers() {
		for _, e := range s.tiers[tier] {
			if !found ||
				e.Capability.TotalParams < best.Capability.TotalParams ||
				(e.Capability.TotalParams == best.Capability.TotalParams && e.ID < best.ID) {
				best = e
				found = true
			}
		}
	}
	if !found {
		return Entry{}, ErrNoEligibleModel
	}
	return best, nil
}

// Empty reports whether the snapshot has no eligible models at all.
func (s *Snapshot) Empty() bool {
	for _, group := range s.tiers {
		if len(group) > 0 {
			return false
		}
	}
	return true
}

// Len returns the total number of eligible models.
func (s *Snapshot) Len() int {
	n := 0
	for _, group := range s.tiers {
		n += len(group)
	}
	return n
}

// Thresholds returns the tier thresholds this snapshot was built with.
func (s *Snapshot) Thresholds() capability.Thresholds {
	return s.thresholds
}

// BuiltAt returns when this snapshot was constructed.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}
