package capability

import (
	"regexp"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CAPABILITY DESCRIPTOR
// ═══════════════════════════════════════════════════════════════════════════════

// Capability describes what a model id declares about the model. It is
// derived once per identifier and never mutated afterwards.
type Capability struct {
	// TotalParams is the declared total parameter count in billions. When no
	// figure could be parsed it holds the extractor's default and Degraded is
	// set.
	TotalParams float64 `json:"total_params"`

	// ActiveParams is the active parameter count in billions for
	// mixture-of-experts models, nil when the id declares a single figure.
	// Tier assignment always uses TotalParams.
	ActiveParams *float64 `json:"active_params,omitempty"`

	// IsCoder marks code-specialized model families.
	IsCoder bool `json:"is_coder"`

	// IsExcluded marks model families that never receive routed chat traffic
	// (embedding, OCR, TTS, vision-only).
	IsExcluded bool `json:"is_excluded"`

	// Degraded is set when no parameter figure was parseable and TotalParams
	// fell back to the configured default.
	Degraded bool `json:"degraded,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXTRACTOR
// ═══════════════════════════════════════════════════════════════════════════════

var (
	// moePattern matches mixture names like "8x7b": expert count times
	// per-expert size. The declared total is the product.
	moePattern = regexp.MustCompile(`\b(\d+)x(\d+(?:\.\d+)?)b\b`)

	// activePattern matches active-parameter segments like "a3b" in
	// "qwen3-30b-a3b". The leading separator keeps it from firing inside
	// ordinary words ("llama3b").
	activePattern = regexp.MustCompile(`(?:^|[-_.:/ ])a(\d+(?:\.\d+)?)b\b`)

	// paramPattern matches plain parameter figures like "7b" or "1.5b".
	paramPattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)b\b`)
)

// Marker sets are data rather than code branches so deployments can extend
// them through configuration without touching extraction logic.
var (
	// DefaultExcludedMarkers are identifier substrings of model families that
	// cannot serve chat completions.
	DefaultExcludedMarkers = []string{
		"embed", "nomic", "mxbai", "bge-", "e5-", "gte-",
		"-ocr", "ocr-", "tts", "whisper",
		"-vl", "-vision", "llava", "moondream", "minicpm-v",
	}

	// DefaultCoderMarkers are identifier substrings of code-specialized
	// families. "code" also covers codellama, codestral and starcoder.
	DefaultCoderMarkers = []string{"coder", "code"}
)

// DefaultParamsB is the total parameter figure assumed for identifiers that
// declare no size at all. 8B lands such models in the medium tier under the
// default thresholds.
const DefaultParamsB = 8.0

// Extractor parses model identifiers into Capability descriptors. The zero
// value is not usable; construct with NewExtractor.
type Extractor struct {
	excludedMarkers []string
	coderMarkers    []string
	defaultParams   float64
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithExcludedMarkers replaces the excluded-family marker set.
func WithExcludedMarkers(markers []string) Option {
	return func(e *Extractor) {
		if len(markers) > 0 {
			e.excludedMarkers = markers
		}
	}
}

// WithCoderMarkers replaces the coder-family marker set.
func WithCoderMarkers(markers []string) Option {
	return func(e *Extractor) {
		if len(markers) > 0 {
			e.coderMarkers = markers
		}
	}
}

// WithDefaultParams sets the total parameter figure assumed when an
// identifier declares no size.
func WithDefaultParams(paramsB float64) Option {
	return func(e *Extractor) {
		if paramsB > 0 {
			e.defaultParams = paramsB
		}
	}
}

// NewExtractor returns an Extractor with the default marker tables.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		excludedMarkers: DefaultExcludedMarkers,
		coderMarkers:    DefaultCoderMarkers,
		defaultParams:   DefaultParamsB,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses a model identifier into its capability descriptor. The
// function is pure: the same identifier always yields the same descriptor.
// Unparseable sizes degrade to the default figure rather than excluding the
// model.
func (e *Extractor) Extract(modelID string) Capability {
	lower := strings.ToLower(modelID)

	cap := Capability{
		IsCoder:    containsAny(lower, e.coderMarkers),
		IsExcluded: containsAny(lower, e.excludedMarkers),
	}

	if m := moePattern.FindStringSubmatch(lower); m != nil {
		experts, _ := strconv.ParseFloat(m[1], 64)
		perExpert, _ := strconv.ParseFloat(m[2], 64)
		cap.TotalParams = experts * perExpert
		cap.ActiveParams = &perExpert
		return cap
	}

	var active *float64
	if m := activePattern.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			active = &v
		}
	}

	total, found := largestPlainFigure(lower)
	switch {
	case found:
		cap.TotalParams = total
		cap.ActiveParams = active
	case active != nil:
		// Only an active figure is declared; treat it as the total.
		cap.TotalParams = *active
	default:
		cap.TotalParams = e.defaultParams
		cap.Degraded = true
	}
	return cap
}

// largestPlainFigure finds the largest parameter figure in the identifier.
// The active-parameter segment never matches here: its "a" prefix sits
// against the digits, so no word boundary forms. Where several figures
// appear the largest is taken as the declared total.
func largestPlainFigure(lower string) (float64, bool) {
	var max float64
	found := false
	for _, m := range paramPattern.FindAllStringSubmatch(lower, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max, found
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
