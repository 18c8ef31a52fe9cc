package turn

import (
	"context"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/hously/config"
)

func aggregatedState() State {
	s := twoQuestionState()
	s = s.WithResult(AgentResult{
		Index: 0, Generation: s.Generation, Status: StatusSuccess,
		Answer: "EHG grants reach $80,000.", Citations: []string{"hdb-grants", "cpf-site"},
	})
	s = s.WithResult(AgentResult{
		Index: 1, Generation: s.Generation, Status: StatusErrored,
		Reason: "timeout", Citations: []string{"cpf-site", "hdb-loans"},
	})
	return s
}

func TestAggregateStreamsTokensAndReturnsAnswer(t *testing.T) {
	stub := newStub(reply("You may get up to $80,000 in grants; loan details were unavailable."))
	a := NewAggregator(stub, config.LLMRoutingConfig{}, nil)

	var tokens []string
	ans := a.Aggregate(context.Background(), aggregatedState(), "Respond in English.", func(tok string) {
		tokens = append(tokens, tok)
	})
	if len(tokens) < 2 {
		t.Fatalf("tokens = %d, want incremental delivery", len(tokens))
	}
	if strings.Join(tokens, "") != ans.Text {
		t.Fatalf("token concatenation %q != answer %q", strings.Join(tokens, ""), ans.Text)
	}
}

func TestAggregateCitationsDedupedInIndexOrder(t *testing.T) {
	stub := newStub(reply("answer"))
	a := NewAggregator(stub, config.LLMRoutingConfig{}, nil)

	ans := a.Aggregate(context.Background(), aggregatedState(), "", nil)
	want := []string{"hdb-grants", "cpf-site", "hdb-loans"}
	if len(ans.Citations) != len(want) {
		t.Fatalf("citations = %v", ans.Citations)
	}
	for i, c := range want {
		if ans.Citations[i] != c {
			t.Fatalf("citations = %v, want %v", ans.Citations, want)
		}
	}
}

func TestAggregatePromptOrderedByIndex(t *testing.T) {
	stub := newStub(reply("answer"))
	a := NewAggregator(stub, config.LLMRoutingConfig{}, nil)

	a.Aggregate(context.Background(), aggregatedState(), "", nil)
	prompt := stub.calls[0]
	first := strings.Index(prompt, "Question 1")
	second := strings.Index(prompt, "Question 2")
	if first == -1 || second == -1 || first > second {
		t.Fatalf("findings not rendered in index order:\n%s", prompt)
	}
	if !strings.Contains(prompt, "research failed (timeout)") {
		t.Fatalf("errored finding not surfaced:\n%s", prompt)
	}
}

func TestAggregateFallsBackToConcatenation(t *testing.T) {
	stub := newStub(fail("model down"))
	a := NewAggregator(stub, config.LLMRoutingConfig{}, nil)

	var streamed strings.Builder
	ans := a.Aggregate(context.Background(), aggregatedState(), "", func(tok string) {
		streamed.WriteString(tok)
	})
	if !strings.Contains(ans.Text, "EHG grants reach $80,000.") {
		t.Fatalf("fallback lost findings: %q", ans.Text)
	}
	if !strings.Contains(ans.Text, "How is HDB loan eligibility assessed?") || !strings.Contains(ans.Text, "timeout") {
		t.Fatalf("fallback silent about the failed sub-question: %q", ans.Text)
	}
	if streamed.String() == "" {
		t.Fatal("fallback did not stream")
	}
}

func TestAggregateAllFailedBranches(t *testing.T) {
	s := twoQuestionState()
	s = s.WithResult(AgentResult{Index: 0, Generation: s.Generation, Status: StatusErrored, Reason: "timeout"})
	s = s.WithResult(AgentResult{Index: 1, Generation: s.Generation, Status: StatusErrored, Reason: "timeout"})

	stub := newStub(fail("model down"))
	a := NewAggregator(stub, config.LLMRoutingConfig{}, nil)

	ans := a.Aggregate(context.Background(), s, "", nil)
	if ans.Text == "" {
		t.Fatal("no apology text for fully failed turn")
	}
	if len(ans.Citations) != 0 {
		t.Fatalf("citations = %v", ans.Citations)
	}
}
