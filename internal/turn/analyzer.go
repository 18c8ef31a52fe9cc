package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/llm"
)

// Default clarification prompt used when the model marks a query unclear but
// produces no usable question of its own.
const defaultClarificationPrompt = "I need more information to understand your question."

// Analysis is the routing decision for one turn.
type Analysis struct {
	Decision      Decision
	Rewritten     string
	SubQuestions  []SubQuestion
	Clarification string
}

type analysisPayload struct {
	IsClear       bool     `json:"is_clear"`
	Questions     []string `json:"questions"`
	Clarification string   `json:"clarification"`
}

// Analyzer rewrites the latest user query against conversation context and
// routes the turn: decompose into sub-questions, or suspend for
// clarification. A model or parse failure never fails the turn; the analyzer
// degrades to a single branch carrying the raw query.
type Analyzer struct {
	provider llm.Provider
	cfg      config.TurnConfig
	route    config.LLMRoutingConfig
	logger   *log.Logger
}

func NewAnalyzer(provider llm.Provider, cfg config.TurnConfig, route config.LLMRoutingConfig, logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.New(log.Writer(), "[ANALYZE] ", log.LstdFlags)
	}
	return &Analyzer{provider: provider, cfg: cfg, route: route, logger: logger}
}

// Analyze inspects the latest user message in the thread and decides the
// route for this turn.
func (a *Analyzer) Analyze(ctx context.Context, th Thread, query string) Analysis {
	recent := th.Messages
	if len(recent) > a.cfg.SummaryWindow {
		recent = recent[len(recent)-a.cfg.SummaryWindow:]
	}
	prompt := fmt.Sprintf(analysisPrompt, orEmpty(th.Summary), renderTranscript(recent), query, a.cfg.MaxSubQuestions)

	var payload analysisPayload
	parsed := false
	for attempt := 0; attempt < 2 && !parsed; attempt++ {
		out, err := a.provider.Generate(ctx, prompt, a.route.Model("analysis"), map[string]interface{}{
			"temperature": 0.1,
		})
		if err != nil {
			a.logger.Printf("analysis attempt %d failed: %v", attempt+1, err)
			continue
		}
		raw, err := llm.ExtractJSON(out)
		if err != nil {
			a.logger.Printf("analysis attempt %d returned no JSON: %v", attempt+1, err)
			continue
		}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			a.logger.Printf("analysis attempt %d returned malformed JSON: %v", attempt+1, err)
			continue
		}
		parsed = true
	}

	if !parsed {
		// Degrade rather than fail: treat the raw query as one clear question.
		return Analysis{
			Decision:     DecideSingleBranch,
			Rewritten:    query,
			SubQuestions: []SubQuestion{{Index: 0, Text: query}},
		}
	}

	if !payload.IsClear {
		prompt := strings.TrimSpace(payload.Clarification)
		if len(prompt) < 10 {
			prompt = defaultClarificationPrompt
		}
		return Analysis{Decision: DecideClarify, Rewritten: query, Clarification: prompt}
	}

	questions := normalizeQuestions(payload.Questions, a.cfg.MaxSubQuestions)
	if len(questions) == 0 {
		questions = []SubQuestion{{Index: 0, Text: query}}
	}
	decision := DecideSingleBranch
	if len(questions) > 1 {
		decision = DecideMultiBranch
	}
	rewritten := questions[0].Text
	if len(questions) > 1 {
		rewritten = query
	}
	return Analysis{Decision: decision, Rewritten: rewritten, SubQuestions: questions}
}

// normalizeQuestions trims, drops empties, collapses duplicates keeping the
// first occurrence, caps the count, and assigns contiguous indices.
func normalizeQuestions(raw []string, max int) []SubQuestion {
	seen := make(map[string]struct{}, len(raw))
	out := make([]SubQuestion, 0, len(raw))
	for _, q := range raw {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, SubQuestion{Index: len(out), Text: q})
		if len(out) == max {
			break
		}
	}
	return out
}
