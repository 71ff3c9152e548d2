package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mono-of-pg/llm-smart-router/internal/capability"
	"github.com/mono-of-pg/llm-smart-router/internal/logging"
	"github.com/mono-of-pg/llm-smart-router/internal/registry"
)

// Options are the tunable routing parameters. They are swapped
// atomically on reload, so every decision sees one consistent set.
type Options struct {
	// Band is the uncertain score range and the score-to-tier pair.
	Band Band `json:"band"`

	// ClassifierModel pins classification to a specific model id. When
	// empty, or when the pinned model is not registered, the globally
	// smallest registered model is used.
	ClassifierModel string `json:"classifier_model,omitempty"`
}

// Router decides which backend model serves a request. It tries three
// paths in order: an explicit model named by the request, the heuristic
// score when it is decisive, and the classifier model for ambiguous
// scores. Each decision reads exactly one registry snapshot, so a
// concurrent refresh never produces a mixed view.
type Router struct {
	registry   *registry.Registry
	scorer     *Scorer
	classifier *Classifier
	opts       atomic.Pointer[Options]
	log        *logging.Logger

	statsMu sync.RWMutex
	stats   RouterStats
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithBand overrides the uncertain band. Invalid pairs are ignored.
func WithBand(low, high float64) RouterOption {
	return func(r *Router) {
		b := Band{Low: low, High: high}
		if b.Validate() != nil {
			return
		}
		o := *r.opts.Load()
		o.Band = b
		r.opts.Store(&o)
	}
}

// WithClassifierModel pins the classifier model id.
func WithClassifierModel(id string) RouterOption {
	return func(r *Router) {
		o := *r.opts.Load()
		o.ClassifierModel = strings.TrimSpace(id)
		r.opts.Store(&o)
	}
}

// WithClassifierCallTimeout overrides the classifier per-call timeout.
func WithClassifierCallTimeout(timeout time.Duration) RouterOption {
	return func(r *Router) {
		if timeout > 0 {
			r.classifier.timeout = timeout
		}
	}
}

// WithScorer replaces the default scorer, e.g. to extend the keyword
// tables from configuration.
func WithScorer(s *Scorer) RouterOption {
	return func(r *Router) {
		if s != nil {
			r.scorer = s
		}
	}
}

// New creates a router over the given registry. The invoker serves
// classifier calls and may be nil, in which case ambiguous scores fall
// back to the heuristic tier.
func New(reg *registry.Registry, invoker Invoker, opts ...RouterOption) *Router {
	r := &Router{
		registry:   reg,
		scorer:     NewScorer(),
		classifier: NewClassifier(invoker),
		log:        logging.Global().WithComponent("router"),
		stats: RouterStats{
			TierDistribution: make(map[capability.Tier]int64),
		},
	}
	o := Options{Band: DefaultBand()}
	r.opts.Store(&o)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetOptions atomically replaces the routing options. In-flight
// decisions keep the set they already loaded.
func (r *Router) SetOptions(o Options) error {
	if err := o.Band.Validate(); err != nil {
		return fmt.Errorf("invalid band: %w", err)
	}
	o.ClassifierModel = strings.TrimSpace(o.ClassifierModel)
	r.opts.Store(&o)
	return nil
}

// Options returns the current routing options.
func (r *Router) Options() Options {
	return *r.opts.Load()
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ═══════════════════════════════════════════════════════════════════════════════

// Route decides the tier and backend model for one request. It returns
// an error only when no model in any tier can serve the request; every
// other problem degrades to a cheaper path and shows up in the
// decision's reasons.
func (r *Router) Route(ctx context.Context, req *Request) (*Decision, error) {
	start := time.Now()
	if req == nil {
		req = &Request{}
	}
	opts := *r.opts.Load()
	snap := r.registry.Current()

	// An explicitly named model wins outright when it is registered,
	// skipping scoring and coder preference. Unknown names fall through.
	if req.Model != "" {
		if entry, ok := snap.Find(req.Model); ok {
			d := &Decision{
				ID:            uuid.NewString(),
				Tier:          entry.Tier,
				SelectedModel: entry.ID,
				Path:          PathExplicit,
				Reasons:       []string{},
				DecidedAt:     time.Now(),
				Duration:      time.Since(start),
			}
			r.record(d, false)
			r.log.Debug("explicit model %s (tier %s)", entry.ID, entry.Tier)
			return d, nil
		}
		r.log.Debug("requested model %q not registered, scoring instead", req.Model)
	}

	res := r.scorer.Score(req, opts.Band)
	reasons := res.Reasons
	path := PathHeuristic
	fellBack := false
	var tier capability.Tier

	if res.Confidence == ConfidenceHigh {
		tier = capability.TierFromScore(res.Score, opts.Band.Low, opts.Band.High)
	} else {
		classified, err := r.delegate(ctx, req, snap, opts)
		if err != nil {
			// Soft failure: interpolate the tier from the score and note
			// the degradation. One attempt only, never retried.
			tier = capability.TierFromScore(res.Score, opts.Band.Low, opts.Band.High)
			reasons = append(reasons, "classifier unavailable, fell back to heuristic tier")
			fellBack = true
			r.log.Warn("classifier fallback: %v", err)
		} else {
			tier = classified
			path = PathClassifier
			reasons = append(reasons, fmt.Sprintf("classifier selected %s", classified))
		}
	}

	// Coder preference: coding requests land on the smallest coder
	// model of the chosen tier when the tier has one.
	preferCoder := false
	var selected registry.Entry
	if isCodingRequest(req) {
		if coder, ok := smallestCoder(snap.TierEntries(tier)); ok {
			selected = coder
			preferCoder = true
		}
	}
	if !preferCoder {
		entry, err := snap.Lookup(tier)
		if err != nil {
			return nil, fmt.Errorf("routing request: %w", err)
		}
		selected = entry
	}

	if reasons == nil {
		reasons = []string{}
	}
	score := res.Score
	d := &Decision{
		ID:            uuid.NewString(),
		Tier:          tier,
		SelectedModel: selected.ID,
		Path:          path,
		Score:         &score,
		Reasons:       reasons,
		PreferCoder:   preferCoder,
		Confidence:    res.Confidence,
		DecidedAt:     time.Now(),
		Duration:      time.Since(start),
	}
	r.record(d, fellBack)
	r.log.Debug("routed to %s (tier %s, score %.3f, path %s)",
		d.SelectedModel, d.Tier, score, d.Path)
	return d, nil
}

// delegate picks the classifier model and asks it for a tier. The
// pinned model is used only when it is present in the snapshot.
func (r *Router) delegate(ctx context.Context, req *Request, snap *registry.Snapshot, opts Options) (capability.Tier, error) {
	model := opts.ClassifierModel
	if model != "" {
		if _, ok := snap.Find(model); !ok {
			r.log.Warn("pinned classifier %q not registered, using smallest model", model)
			model = ""
		}
	}
	if model == "" {
		entry, err := snap.ClassifierEntry()
		if err != nil {
			return "", fmt.Errorf("selecting classifier model: %w", err)
		}
		model = entry.ID
	}
	return r.classifier.Classify(ctx, req, model)
}

// codingPattern spots coding-task phrasing and programming language
// names in the latest user message.
var codingPattern = regexp.MustCompile(`(?i)\b(?:write|generate|fix|debug|refactor|optimi[sz]e|implement)\b[^.!?\n]{0,60}\b(?:code|function|class|method|script|program|test|bug|api)\b|\b(?:python|javascript|typescript|golang|java|rust|kotlin|swift|sql|bash|regex)\b`)

// isCodingRequest reports whether the request looks like a coding task:
// fenced code anywhere in the conversation, or coding phrasing in the
// latest user message.
func isCodingRequest(req *Request) bool {
	if strings.Contains(flattenMessages(req.Messages), "```") {
		return true
	}
	return codingPattern.MatchString(lastUserText(req.Messages))
}

// smallestCoder returns the coder entry with the fewest total
// parameters, ties broken by id.
func smallestCoder(entries []registry.Entry) (registry.Entry, bool) {
	var best registry.Entry
	found := false
	for _, e := range entries {
		if !e.Capability.IsCoder {
			continue
		}
		if !found ||
			e.Capability.TotalParams < best.Capability.TotalParams ||
			(e.Capability.TotalParams == best.Capability.TotalParams && e.ID < best.ID) {
			best = e
			found = true
		}
	}
	return best, found
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ═══════════════════════════════════════════════════════════════════════════════

// record updates the routing statistics for one decision.
func (r *Router) record(d *Decision, classifierFellBack bool) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	r.stats.TotalRequests++
	r.stats.TierDistribution[d.Tier]++

	switch d.Path {
	case PathExplicit:
		r.stats.ExplicitHits++
	case PathHeuristic:
		r.stats.HeuristicHits++
	case PathClassifier:
		r.stats.ClassifierHits++
	}
	if classifierFellBack {
		r.stats.ClassifierFallbacks++
	}
	if d.PreferCoder {
		r.stats.CoderPreferred++
	}
	if d.Score != nil {
		r.stats.ScoredRequests++
		r.stats.AverageScore = (r.stats.AverageScore*float64(r.stats.ScoredRequests-1) + *d.Score) /
			float64(r.stats.ScoredRequests)
	}
}

// Stats returns a copy of the current routing statistics.
func (r *Router) Stats() RouterStats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()

	stats := r.stats
	stats.TierDistribution = make(map[capability.Tier]int64, len(r.stats.TierDistribution))
	for tier, count := range r.stats.TierDistribution {
		stats.TierDistribution[tier] = count
	}
	return stats
}

// ResetStats clears the routing statistics.
func (r *Router) ResetStats() {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	r.stats = RouterStats{
		TierDistribution: make(map[capability.Tier]int64),
	}
}
