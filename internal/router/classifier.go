package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/mono-of-pg/llm-smart-router/internal/capability"
	"github.com/mono-of-pg/llm-smart-router/internal/llm"
)

// DefaultClassifierTimeout bounds a single classifier call.
const DefaultClassifierTimeout = 10 * time.Second

// classifierMaxTokens caps the classifier completion. One tier word is
// all we need back.
const classifierMaxTokens = 8

// classifierInputLimit caps the request text sent to the classifier, in
// runes. The classifier runs on the smallest registered model, so the
// call has to stay cheap.
const classifierInputLimit = 2000

// ClassificationPrompt instructs the classifier model. The model must
// answer with a bare tier name for ParseTierResponse to pick up.
const ClassificationPrompt = `You are a complexity classifier for LLM requests. Classify the request below into exactly one tier.

Tiers:
- SMALL: short factual lookups, translations, formatting, yes/no questions
- MEDIUM: everyday questions, short explanations, routine code edits
- LARGE: deep analysis, architecture or design work, multi-step implementation

Respond with ONLY the tier name: SMALL, MEDIUM, or LARGE.`

// ErrNoClassifierBackend is returned when no completion backend is
// configured for classification.
var ErrNoClassifierBackend = errors.New("no classifier backend configured")

// Invoker is the completion dependency of the classifier. llm.Provider
// satisfies it.
type Invoker interface {
	Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// Classifier delegates ambiguous requests to a small registered model.
// It makes exactly one completion attempt per call and reports failures
// to the caller instead of retrying; the router falls back to the
// heuristic tier on any error.
type Classifier struct {
	invoker Invoker
	timeout time.Duration
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithClassifierTimeout overrides the per-call timeout.
func WithClassifierTimeout(timeout time.Duration) ClassifierOption {
	return func(c *Classifier) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClassifier creates a classifier backed by the given invoker. A nil
// invoker is allowed; Classify then fails with ErrNoClassifierBackend.
func NewClassifier(invoker Invoker, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		invoker: invoker,
		timeout: DefaultClassifierTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify asks the given model for the request's tier. The request
// text is the latest user message, falling back to the whole flattened
// conversation when the final message is not from the user.
func (c *Classifier) Classify(ctx context.Context, req *Request, model string) (capability.Tier, error) {
	if c.invoker == nil {
		return "", ErrNoClassifierBackend
	}
	if model == "" {
		return "", errors.New("classifier model not specified")
	}

	text := lastUserText(req.Messages)
	if text == "" {
		text = flattenMessages(req.Messages)
	}
	text = truncateRunes(text, classifierInputLimit)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.invoker.Complete(callCtx, &llm.ChatRequest{
		Model:        model,
		SystemPrompt: ClassificationPrompt,
		Messages:     []llm.Message{{Role: "user", Content: text}},
		MaxTokens:    classifierMaxTokens,
		Temperature:  0,
	})
	if err != nil {
		return "", fmt.Errorf("classifier call failed: %w", err)
	}

	tier, ok := ParseTierResponse(resp.Content)
	if !ok {
		return "", fmt.Errorf("no tier token in classifier response %q", truncateRunes(resp.Content, 80))
	}
	return tier, nil
}

// tierTokenPattern finds the first tier token in a model response.
var tierTokenPattern = regexp.MustCompile(`(?i)\b(?:small|medium|large)\b`)

// ParseTierResponse extracts the first valid tier token from a model
// response, case-insensitively. Surrounding prose is tolerated; ok is
// false when no tier token appears at all.
func ParseTierResponse(response string) (capability.Tier, bool) {
	token := tierTokenPattern.FindString(response)
	if token == "" {
		return "", false
	}
	return capability.ParseTier(token)
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
