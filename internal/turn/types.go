package turn

import (
	"time"
)

// Message roles persisted in a conversation thread.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one exchanged utterance in a conversation thread.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread is the durable, thread-keyed conversation record. Messages are
// append-only; the compressor is the only component that replaces them, and
// only together with a non-empty summary.
type Thread struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	Summary  string    `json:"summary,omitempty"`
}

// Routing decisions produced by the query analyzer.
type Decision int

const (
	DecideSingleBranch Decision = iota
	DecideMultiBranch
	DecideClarify
)

func (d Decision) String() string {
	switch d {
	case DecideMultiBranch:
		return "multi_branch"
	case DecideClarify:
		return "clarify"
	default:
		return "single_branch"
	}
}

// SubQuestion is one independently retrievable decomposition of a query.
// Index is stable for the lifetime of the turn generation.
type SubQuestion struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// AgentResult statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusErrored = "errored"
)

// ToolInvocation is an append-only trace record of one tool call inside a
// branch, used for diagnostics and citation extraction.
type ToolInvocation struct {
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Summary   string                 `json:"summary"`
	Latency   time.Duration          `json:"latency"`
	Failed    bool                   `json:"failed"`
	NoResults bool                   `json:"no_results"`
}

// AgentResult is the immutable outcome of one agent branch.
type AgentResult struct {
	Index      int              `json:"index"`
	Generation uint64           `json:"generation"`
	Answer     string           `json:"answer"`
	Citations  []string         `json:"citations,omitempty"`
	Trace      []ToolInvocation `json:"trace,omitempty"`
	Status     string           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
}

// Clarification statuses.
const (
	ClarificationPending  = "pending"
	ClarificationAnswered = "answered"
)

// Clarification is attached to a suspended turn awaiting a human answer.
type Clarification struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
	Status  string `json:"status"`
}

// Answer is the final aggregated response for a turn.
type Answer struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
}

// State is the per-turn record. Updates go through the pure With* functions
// in state.go; callers never mutate a State they did not create.
type State struct {
	Generation     uint64              `json:"generation"`
	OriginalQuery  string              `json:"original_query"`
	RewrittenQuery string              `json:"rewritten_query"`
	SubQuestions   []SubQuestion       `json:"sub_questions,omitempty"`
	Ambiguous      bool                `json:"ambiguous"`
	Clarification  *Clarification      `json:"clarification,omitempty"`
	Results        map[int]AgentResult `json:"results,omitempty"`
	Aggregated     *Answer             `json:"aggregated,omitempty"`
	Locale         string              `json:"locale,omitempty"`
	Summary        string              `json:"summary,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
}

// Suspended reports whether the turn is parked at the clarification gate.
func (s State) Suspended() bool {
	return s.Clarification != nil && s.Clarification.Status == ClarificationPending
}
