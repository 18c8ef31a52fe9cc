package turn

import (
	"sort"
	"time"
)

// NewState starts a fresh turn at the next generation. Any in-flight results
// carrying an older generation become stale and are silently dropped on merge.
func NewState(prev State, query, locale string) State {
	return State{
		Generation:    prev.Generation + 1,
		OriginalQuery: query,
		Locale:        locale,
		Summary:       prev.Summary,
		StartedAt:     time.Now().UTC(),
	}
}

// WithQuestions records the analyzer output. Results from any earlier
// decomposition of the same turn are cleared so the completeness check only
// ever sees the declared index set.
func (s State) WithQuestions(rewritten string, questions []SubQuestion) State {
	s.RewrittenQuery = rewritten
	s.SubQuestions = questions
	s.Ambiguous = false
	s.Clarification = nil
	s.Results = nil
	s.Aggregated = nil
	return s
}

// WithClarification suspends the turn pending a human answer.
func (s State) WithClarification(prompt, context string) State {
	s.Ambiguous = true
	s.Clarification = &Clarification{
		Prompt:  prompt,
		Context: context,
		Status:  ClarificationPending,
	}
	s.SubQuestions = nil
	s.Results = nil
	s.Aggregated = nil
	return s
}

// WithClarificationAnswered marks the pending clarification consumed. The
// caller appends the human answer to the thread before re-analysis.
func (s State) WithClarificationAnswered() State {
	if s.Clarification == nil {
		return s
	}
	c := *s.Clarification
	c.Status = ClarificationAnswered
	s.Clarification = &c
	return s
}

// WithResult merges one branch outcome. Results from a different generation
// are discarded without error: a resumed or restarted turn must never see
// output computed for its predecessor. Duplicate indices keep the first
// arrival.
func (s State) WithResult(r AgentResult) State {
	if r.Generation != s.Generation {
		return s
	}
	if !s.declaredIndex(r.Index) {
		return s
	}
	merged := make(map[int]AgentResult, len(s.Results)+1)
	for k, v := range s.Results {
		merged[k] = v
	}
	if _, ok := merged[r.Index]; !ok {
		merged[r.Index] = r
	}
	s.Results = merged
	return s
}

// WithAnswer records the aggregated answer. It refuses to attach one unless
// exactly one result exists per declared sub-question index.
func (s State) WithAnswer(a Answer) (State, bool) {
	if !s.Complete() {
		return s, false
	}
	s.Aggregated = &a
	return s, true
}

// Complete reports whether every declared sub-question index has a result.
func (s State) Complete() bool {
	if len(s.SubQuestions) == 0 {
		return false
	}
	for _, q := range s.SubQuestions {
		if _, ok := s.Results[q.Index]; !ok {
			return false
		}
	}
	return true
}

// OrderedResults returns the merged results sorted by sub-question index.
func (s State) OrderedResults() []AgentResult {
	out := make([]AgentResult, 0, len(s.Results))
	for _, r := range s.Results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (s State) declaredIndex(idx int) bool {
	for _, q := range s.SubQuestions {
		if q.Index == idx {
			return true
		}
	}
	return false
}
