// Package capability derives structured model capability descriptors from
// backend model identifiers: parameter counts, specialization flags, and the
// capacity tier used for routing.
package capability

import (
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MODEL TIERS
// ═══════════════════════════════════════════════════════════════════════════════

// Tier categorizes models by capacity. Tiers are totally ordered:
// TierSmall < TierMedium < TierLarge.
type Tier string

const (
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// AllTiers returns every tier in ascending capacity order.
func AllTiers() []Tier {
	return []Tier{TierSmall, TierMedium, TierLarge}
}

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}

// IsValid reports whether t is one of the defined tiers.
func (t Tier) IsValid() bool {
	switch t {
	case TierSmall, TierMedium, TierLarge:
		return true
	}
	return false
}

// Index returns the tier's position in the capacity order (0 = smallest).
// Unknown tiers sort as medium.
func (t Tier) Index() int {
	switch t {
	case TierSmall:
		return 0
	case TierMedium:
		return 1
	case TierLarge:
		return 2
	}
	return 1
}

// ParseTier matches s against the tier labels, case-insensitively.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small":
		return TierSmall, true
	case "medium":
		return TierMedium, true
	case "large":
		return TierLarge, true
	}
	return "", false
}

// ═══════════════════════════════════════════════════════════════════════════════
// TIER CLASSIFICATION
// ═══════════════════════════════════════════════════════════════════════════════

// Thresholds holds the parameter-count boundaries (in billions) between tiers.
// Models at or below SmallMaxB are small, at or below MediumMaxB are medium,
// everything above is large.
type Thresholds struct {
	SmallMaxB  float64 `json:"small_max_b" yaml:"small_max_b" mapstructure:"small_max_b"`
	MediumMaxB float64 `json:"medium_max_b" yaml:"medium_max_b" mapstructure:"medium_max_b"`
}

// DefaultThresholds returns the stock tier boundaries: up to 4B parameters is
// small, up to 15B is medium, everything above is large.
func DefaultThresholds() Thresholds {
	return Thresholds{SmallMaxB: 4, MediumMaxB: 15}
}

// Validate checks that the boundaries are positive and strictly increasing.
func (th Thresholds) Validate() error {
	if th.SmallMaxB <= 0 {
		return fmt.Errorf("small tier threshold must be positive, got %v", th.SmallMaxB)
	}
	if th.MediumMaxB <= th.SmallMaxB {
		return fmt.Errorf("medium tier threshold (%v) must exceed small tier threshold (%v)",
			th.MediumMaxB, th.SmallMaxB)
	}
	return nil
}

// Classify maps a total parameter count (billions) to a tier.
func (th Thresholds) Classify(totalParamsB float64) Tier {
	switch {
	case totalParamsB <= th.SmallMaxB:
		return TierSmall
	case totalParamsB <= th.MediumMaxB:
		return TierMedium
	default:
		return TierLarge
	}
}

// TierFromScore maps a complexity score in [0,1] to a tier using the same
// low/high pair that bounds the uncertain band: scores below low are small,
// above high are large, everything between lands on medium. Scores exactly
// equal to a bound are medium.
func TierFromScore(score, low, high float64) Tier {
	switch {
	case score < low:
		return TierSmall
	case score > high:
		return TierLarge
	default:
		return TierMedium
	}
}
