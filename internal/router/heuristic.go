package router

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// imagePlaceholder marks image blocks in flattened message text.
const imagePlaceholder = "[IMAGE]"

// Keyword tables signal task complexity in English and German. Each
// entry is a regex alternative; the compiled pattern wraps them in
// ASCII word boundaries.
var defaultComplexKeywords = []string{
	`analy[sz]e`, `compare`, `contrast`, `explain\s+in\s+detail`,
	`step[- ]by[- ]step`, `implement`, `architect`, `design`, `refactor`,
	`optimize`, `debug`, `write\s+(?:a\s+)?(?:complete|full|entire)`,
	`multi[- ]step`, `comprehensive`, `thorough`, `in[- ]depth`,
	`trade[- ]?offs?`, `pros?\s+and\s+cons?`,
	`advantages?\s+and\s+disadvantages?`,
	`analysiere`, `vergleiche`, `erkl[äa]r[e ].*im\s+detail`,
	`Schritt\s+f[üu]r\s+Schritt`, `implementiere`, `entwirf`, `entwerfe`,
	`optimiere`, `debugge`, `schreib[e ].*(?:komplett|vollst[äa]ndig|ganz)`,
	`umfassend`, `gr[üu]ndlich`, `ausf[üu]hrlich`, `detailliert`,
	`tiefgehend`, `Vor-?\s*und\s+Nachteile`, `Abw[äa]gung`,
	`Pro\s+und\s+Contra`, `mehrschrittig`, `mehrstufig`, `Architektur`,
	`Konzept\s+erstell`,
}

var defaultSimpleKeywords = []string{
	`translate`, `summarize`, `summarise`, `tldr`, `tl;dr`,
	`yes\s+or\s+no`, `true\s+or\s+false`, `what\s+is`, `who\s+is`,
	`when\s+did`, `where\s+is`, `define`, `list`, `name`, `count`,
	`fix\s+(?:this|the)\s+(?:typo|spelling|grammar)`, `convert`, `format`,
	`reformat`, `ubersetz[e ]`, `zusammenfass`, `fass[e ].*zusammen`,
	`ja\s+oder\s+nein`, `richtig\s+oder\s+falsch`, `was\s+ist`,
	`wer\s+ist`, `wann\s+war`, `wo\s+ist`, `wie\s+hei[ßs]t`, `definiere`,
	`z[äa]hl[e ]`, `nenne`, `auflisten`,
	`korrigiere\s+(?:den|die|das)\s+(?:Tippfehler|Rechtschreibung|Grammatik)`,
	`konvertiere`, `formatiere`, `umwandeln`,
}

// RE2 word boundaries are ASCII-only, so keyword forms that start with
// an umlaut cannot sit behind \b. They go into a separate branch.
var simpleKeywordsUnbounded = []string{`übersetz[e ]`}

var codeBlockPattern = regexp.MustCompile("```[\\s\\S]*?```")

// compileKeywords builds one case-insensitive pattern from boundary-safe
// alternatives plus alternatives matched without boundaries.
func compileKeywords(bounded, unbounded []string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString(`(?i)(?:\b(?:`)
	sb.WriteString(strings.Join(bounded, "|"))
	sb.WriteString(`)\b`)
	for _, alt := range unbounded {
		sb.WriteString("|")
		sb.WriteString(alt)
	}
	sb.WriteString(`)`)
	return regexp.MustCompile(sb.String())
}

// ═══════════════════════════════════════════════════════════════════════════════
// SCORER
// ═══════════════════════════════════════════════════════════════════════════════

// ScoreResult is the output of one scoring pass.
type ScoreResult struct {
	// Score is the complexity score in [0, 1], rounded to three decimals.
	Score float64 `json:"score"`

	// Reasons lists the triggered signals in evaluation order.
	Reasons []string `json:"reasons"`

	// Confidence reports whether the score is decisive for the given band.
	Confidence Confidence `json:"confidence"`
}

// Scorer estimates request complexity from cheap content signals:
// length, conversation depth, declared tools, system prompt weight,
// fenced code blocks, image content, and keyword cues. Scoring is a
// pure function of the request, so identical input always yields the
// same score and reasons.
type Scorer struct {
	complexRe *regexp.Regexp
	simpleRe  *regexp.Regexp
	codeRe    *regexp.Regexp
}

// ScorerOption configures a Scorer.
type ScorerOption func(*scorerConfig)

type scorerConfig struct {
	complexKeywords []string
	simpleKeywords  []string
}

// WithComplexKeywords adds literal keywords to the complex cue table.
func WithComplexKeywords(words ...string) ScorerOption {
	return func(c *scorerConfig) {
		for _, w := range words {
			if w = strings.TrimSpace(w); w != "" {
				c.complexKeywords = append(c.complexKeywords, regexp.QuoteMeta(w))
			}
		}
	}
}

// WithSimpleKeywords adds literal keywords to the simple cue table.
func WithSimpleKeywords(words ...string) ScorerOption {
	return func(c *scorerConfig) {
		for _, w := range words {
			if w = strings.TrimSpace(w); w != "" {
				c.simpleKeywords = append(c.simpleKeywords, regexp.QuoteMeta(w))
			}
		}
	}
}

// NewScorer creates a scorer with the default keyword tables plus any
// configured extras.
func NewScorer(opts ...ScorerOption) *Scorer {
	cfg := &scorerConfig{
		complexKeywords: defaultComplexKeywords,
		simpleKeywords:  defaultSimpleKeywords,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Scorer{
		complexRe: compileKeywords(cfg.complexKeywords, nil),
		simpleRe:  compileKeywords(cfg.simpleKeywords, simpleKeywordsUnbounded),
		codeRe:    codeBlockPattern,
	}
}

// Score computes the complexity score for a request. Signals accumulate
// additively, simple-keyword cues subtract, and the result is clamped to
// [0, 1]. Reasons record each triggered signal; confidence is derived
// from the given band.
func (s *Scorer) Score(req *Request, band Band) ScoreResult {
	if req == nil {
		req = &Request{}
	}

	score := 0.0
	var reasons []string

	fullText := flattenMessages(req.Messages)
	estTokens := estimateTokens(fullText)

	// Overall length, roughly four characters per token.
	switch {
	case estTokens < 50:
		reasons = append(reasons, fmt.Sprintf("very short (%d est. tokens)", estTokens))
	case estTokens < 200:
		score += 0.1
	case estTokens < 800:
		score += 0.25
		reasons = append(reasons, fmt.Sprintf("medium length (%d est. tokens)", estTokens))
	case estTokens < 2000:
		score += 0.4
		reasons = append(reasons, fmt.Sprintf("long (%d est. tokens)", estTokens))
	default:
		score += 0.5
		reasons = append(reasons, fmt.Sprintf("very long (%d est. tokens)", estTokens))
	}

	// Conversation depth.
	turns := len(req.Messages)
	if turns > 10 {
		score += 0.15
		reasons = append(reasons, fmt.Sprintf("deep conversation (%d turns)", turns))
	} else if turns > 4 {
		score += 0.08
		reasons = append(reasons, fmt.Sprintf("multi-turn (%d turns)", turns))
	}

	// Declared tools.
	if n := len(req.Tools); n > 3 {
		score += 0.2
		reasons = append(reasons, fmt.Sprintf("many tools (%d)", n))
	} else if n >= 1 {
		score += 0.1
		reasons = append(reasons, fmt.Sprintf("tool use (%d tools)", n))
	}

	// System prompt weight.
	sysTokens := estimateTokens(flattenMessages(systemMessages(req.Messages)))
	if sysTokens > 500 {
		score += 0.15
		reasons = append(reasons, fmt.Sprintf("complex system prompt (%d est. tokens)", sysTokens))
	} else if sysTokens > 100 {
		score += 0.05
	}

	// Fenced code blocks anywhere in the conversation.
	if blocks := len(s.codeRe.FindAllString(fullText, -1)); blocks > 2 {
		score += 0.15
		reasons = append(reasons, fmt.Sprintf("multiple code blocks (%d)", blocks))
	} else if blocks >= 1 {
		score += 0.05
	}

	// Image content, flattened to a placeholder by Parts.
	if strings.Contains(fullText, imagePlaceholder) {
		score += 0.1
		reasons = append(reasons, "contains images")
	}

	// Keyword cues on the latest user message only. Simple cues apply
	// only when no complex cue matched.
	lastUser := lastUserText(req.Messages)
	if complexMatches := s.complexRe.FindAllString(lastUser, -1); len(complexMatches) > 0 {
		score += math.Min(0.6, 0.15+0.15*float64(len(complexMatches)))
		reasons = append(reasons, fmt.Sprintf("complex keywords (%d): %s",
			len(complexMatches), joinUnique(complexMatches, 3)))
	} else if simpleMatches := s.simpleRe.FindAllString(lastUser, -1); len(simpleMatches) > 0 {
		score -= 0.15
		reasons = append(reasons, fmt.Sprintf("simple keywords: %s", joinUnique(simpleMatches, 3)))
	}

	score = math.Round(clamp01(score)*1000) / 1000

	return ScoreResult{Score: score, Reasons: reasons, Confidence: band.Confidence(score)}
}

// estimateTokens approximates the token count of a text.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// systemMessages filters the system-role messages of a conversation.
func systemMessages(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Role == "system" {
			out = append(out, m)
		}
	}
	return out
}

// lastUserText returns the flattened text of the final message when it
// is a user message, otherwise an empty string.
func lastUserText(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" {
		return ""
	}
	return strings.Join(last.Content.Parts(), "\n")
}

// joinUnique joins the first limit matches, deduplicated in first-seen
// order so reasons stay reproducible.
func joinUnique(matches []string, limit int) string {
	if len(matches) > limit {
		matches = matches[:limit]
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return strings.Join(out, ", ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
