// Package router implements complexity-aware model routing. It scores
// incoming chat requests with content heuristics, resolves ambiguous
// scores through a small classifier model, and selects a backend model
// from the registry for the resulting tier.
package router

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mono-of-pg/llm-smart-router/internal/capability"
)

// RoutingPath indicates which stage produced the routing decision.
type RoutingPath string

const (
	// PathExplicit means the request named a model present in the registry.
	PathExplicit RoutingPath = "explicit"
	// PathHeuristic means the content heuristics decided the tier.
	PathHeuristic RoutingPath = "heuristic"
	// PathClassifier means the classifier model decided the tier.
	PathClassifier RoutingPath = "classifier"
)

// String returns the string representation of a RoutingPath.
func (p RoutingPath) String() string {
	return string(p)
}

// Confidence classifies how decisive a heuristic score is.
type Confidence string

const (
	// ConfidenceHigh means the score is outside the uncertain band and
	// heuristics alone decide the tier.
	ConfidenceHigh Confidence = "high"
	// ConfidenceLow means the score sits inside the uncertain band and
	// the classifier is consulted.
	ConfidenceLow Confidence = "low"
)

// String returns the string representation of a Confidence.
func (c Confidence) String() string {
	return string(c)
}

// Band is the uncertain score range. Scores inside it (inclusive on both
// ends) are low confidence; scores outside decide the tier directly. The
// same pair doubles as the score-to-tier thresholds: below Low routes
// SMALL, above High routes LARGE.
type Band struct {
	Low  float64 `json:"low" yaml:"low" mapstructure:"low"`
	High float64 `json:"high" yaml:"high" mapstructure:"high"`
}

// DefaultBand returns the standard uncertain band.
func DefaultBand() Band {
	return Band{Low: 0.3, High: 0.7}
}

// Validate checks the band is ordered within [0,1].
func (b Band) Validate() error {
	if b.Low < 0 || b.High > 1 {
		return fmt.Errorf("band [%.2f, %.2f] must sit within [0, 1]", b.Low, b.High)
	}
	if b.Low > b.High {
		return fmt.Errorf("band low %.2f must not exceed high %.2f", b.Low, b.High)
	}
	return nil
}

// Confidence reports whether a score is decisive. Boundary scores equal
// to Low or High count as uncertain.
func (b Band) Confidence(score float64) Confidence {
	if score >= b.Low && score <= b.High {
		return ConfidenceLow
	}
	return ConfidenceHigh
}

// ═══════════════════════════════════════════════════════════════════════════════
// REQUEST TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Request is the router's view of a chat-completion request. It mirrors
// the OpenAI wire format closely enough to score real traffic.
type Request struct {
	// Model, when set, asks for a specific backend model.
	Model string `json:"model,omitempty"`

	// Messages is the conversation so far, system prompts included.
	Messages []Message `json:"messages"`

	// Tools lists declared function tools.
	Tools []Tool `json:"tools,omitempty"`
}

// Message is one conversation message.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content is a message body: either a plain string or a list of typed
// blocks for multimodal requests.
type Content struct {
	text   string
	blocks []ContentBlock
	multi  bool
}

// ContentBlock is one element of a multimodal message body.
type ContentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference inside a content block.
type ImageURL struct {
	URL string `json:"url"`
}

// TextContent wraps a plain string as message content.
func TextContent(s string) Content {
	return Content{text: s}
}

// BlockContent wraps typed blocks as message content.
func BlockContent(blocks ...ContentBlock) Content {
	return Content{blocks: blocks, multi: true}
}

// UnmarshalJSON accepts both the string and the block-array form.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{text: s}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content must be a string or an array of blocks: %w", err)
	}
	*c = Content{blocks: blocks, multi: true}
	return nil
}

// MarshalJSON writes back whichever form the content holds.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.multi {
		return json.Marshal(c.blocks)
	}
	return json.Marshal(c.text)
}

// Parts returns the flattened text parts of the content. Image blocks
// flatten to the "[IMAGE]" placeholder so downstream signals can detect
// multimodal input; block types other than text and image_url are
// skipped.
func (c Content) Parts() []string {
	if !c.multi {
		return []string{c.text}
	}
	parts := make([]string, 0, len(c.blocks))
	for _, b := range c.blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "image_url":
			parts = append(parts, imagePlaceholder)
		}
	}
	return parts
}

// flattenMessages joins all text parts of the given messages.
func flattenMessages(msgs []Message) string {
	var parts []string
	for _, m := range msgs {
		parts = append(parts, m.Content.Parts()...)
	}
	return strings.Join(parts, "\n")
}

// Tool is a declared function tool in OpenAI wire shape.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes one callable tool.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// DECISION TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Decision is the result of routing one request.
type Decision struct {
	// ID uniquely identifies this decision for logs and journals.
	ID string `json:"id"`

	// Tier is the capability tier the router chose.
	Tier capability.Tier `json:"tier"`

	// SelectedModel is the backend model that should serve the request.
	SelectedModel string `json:"selected_model"`

	// Path indicates which stage decided the tier.
	Path RoutingPath `json:"routing_path"`

	// Score is the heuristic complexity score. Nil on the explicit path,
	// where no scoring happens.
	Score *float64 `json:"score"`

	// Reasons lists the triggered heuristic signals in evaluation order,
	// followed by any classifier notes.
	Reasons []string `json:"reasons"`

	// PreferCoder is true when a coder-specialized model was selected
	// over the tier's default ordering.
	PreferCoder bool `json:"prefer_coder"`

	// Confidence is the heuristic confidence, empty on the explicit path.
	Confidence Confidence `json:"confidence,omitempty"`

	// DecidedAt is when the decision was made.
	DecidedAt time.Time `json:"decided_at"`

	// Duration is how long the routing took.
	Duration time.Duration `json:"duration"`
}

// RouterStats tracks routing statistics for monitoring and tuning.
type RouterStats struct {
	// TotalRequests is the total number of routed requests.
	TotalRequests int64 `json:"total_requests"`

	// ExplicitHits counts requests that named a registered model.
	ExplicitHits int64 `json:"explicit_hits"`

	// HeuristicHits counts decisions made by heuristics alone,
	// including classifier soft-fallbacks.
	HeuristicHits int64 `json:"heuristic_hits"`

	// ClassifierHits counts decisions made by the classifier model.
	ClassifierHits int64 `json:"classifier_hits"`

	// ClassifierFallbacks counts classifier calls that failed soft.
	ClassifierFallbacks int64 `json:"classifier_fallbacks"`

	// CoderPreferred counts decisions where a coder model was selected.
	CoderPreferred int64 `json:"coder_preferred"`

	// ScoredRequests counts requests that went through the scorer.
	ScoredRequests int64 `json:"scored_requests"`

	// AverageScore is the running average heuristic score over scored
	// requests.
	AverageScore float64 `json:"average_score"`

	// TierDistribution tracks how often each tier was chosen.
	TierDistribution map[capability.Tier]int64 `json:"tier_distribution"`
}

// HeuristicRatio returns the percentage of requests decided without the
// classifier or an explicit override.
func (s *RouterStats) HeuristicRatio() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.HeuristicHits) / float64(s.TotalRequests) * 100
}
