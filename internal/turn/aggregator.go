package turn

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/llm"
)

// Aggregator composes the final answer from merged branch results. The
// composition prompt is deterministic: findings are rendered in sub-question
// index order and citations are deduplicated keeping first occurrence, so
// the same result set always yields the same prompt.
type Aggregator struct {
	provider llm.Provider
	route    config.LLMRoutingConfig
	logger   *log.Logger
}

func NewAggregator(provider llm.Provider, route config.LLMRoutingConfig, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(log.Writer(), "[AGGREGATE] ", log.LstdFlags)
	}
	return &Aggregator{provider: provider, route: route, logger: logger}
}

// Aggregate synthesizes one answer across all branch results, streaming
// tokens through onToken as they arrive. If the synthesis model fails the
// aggregator degrades to a deterministic concatenation of the findings so
// the turn still terminates with an answer.
func (a *Aggregator) Aggregate(ctx context.Context, state State, langInstruction string, onToken func(string)) Answer {
	ordered := state.OrderedResults()
	citations := collectCitations(ordered)

	prompt := fmt.Sprintf(aggregationPrompt, langInstruction, state.OriginalQuery, renderFindings(state.SubQuestions, ordered))
	text, err := a.provider.GenerateStream(ctx, prompt, a.route.Model("aggregation"), nil, onToken)
	if err != nil {
		a.logger.Printf("synthesis failed, falling back to concatenation: %v", err)
		text = concatFindings(state.SubQuestions, ordered)
		if onToken != nil {
			onToken(text)
		}
	}
	return Answer{Text: strings.TrimSpace(text), Citations: citations}
}

func renderFindings(questions []SubQuestion, ordered []AgentResult) string {
	byIndex := make(map[int]SubQuestion, len(questions))
	for _, q := range questions {
		byIndex[q.Index] = q
	}
	var b strings.Builder
	for _, r := range ordered {
		fmt.Fprintf(&b, "Question %d: %s\n", r.Index+1, byIndex[r.Index].Text)
		switch r.Status {
		case StatusSuccess:
			fmt.Fprintf(&b, "Finding: %s\n", r.Answer)
		case StatusPartial:
			fmt.Fprintf(&b, "Finding (incomplete, %s): %s\n", r.Reason, r.Answer)
		default:
			fmt.Fprintf(&b, "Finding: research failed (%s), no information available\n", r.Reason)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// concatFindings builds the degraded answer. Branches that produced nothing
// still get a line naming the sub-question they failed on, so the user sees
// which parts of a multi-part query went unanswered.
func concatFindings(questions []SubQuestion, ordered []AgentResult) string {
	byIndex := make(map[int]SubQuestion, len(questions))
	for _, q := range questions {
		byIndex[q.Index] = q
	}
	var parts []string
	answered := 0
	for _, r := range ordered {
		if r.Answer != "" {
			parts = append(parts, r.Answer)
			answered++
			continue
		}
		parts = append(parts, fmt.Sprintf("I couldn't find an answer to %q (%s).", byIndex[r.Index].Text, r.Reason))
	}
	if answered == 0 {
		return "I could not find reliable information to answer that right now. Please try again or rephrase your question."
	}
	return strings.Join(parts, "\n\n")
}

func collectCitations(ordered []AgentResult) []string {
	var all []string
	for _, r := range ordered {
		all = append(all, r.Citations...)
	}
	return dedupeStrings(all)
}
