package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/llm"
	"github.com/mohammad-safakhou/hously/internal/telemetry"
)

// Tool is one capability an agent branch may invoke while researching its
// sub-question. Implementations live in internal/tools.
type Tool interface {
	Name() string
	// Spec is a one-line description of the tool and its arguments, rendered
	// verbatim into the agent prompt.
	Spec() string
	Invoke(ctx context.Context, args map[string]interface{}) (ToolOutput, error)
}

// ToolOutput is what a tool hands back to the agent loop.
type ToolOutput struct {
	Content   string
	Citations []string
	NoResults bool
}

type branchAction struct {
	Action    string                 `json:"action"`
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args"`
	Answer    string                 `json:"answer"`
	Citations []string               `json:"citations"`
}

// Branch runs the iterative reason-act loop for a single sub-question. It
// never returns an error; every failure mode is encoded in the AgentResult
// status so the dispatcher's merge stays uniform.
type Branch struct {
	provider llm.Provider
	cfg      config.TurnConfig
	route    config.LLMRoutingConfig
	tools    map[string]Tool
	specs    string
	logger   *log.Logger
}

func NewBranch(provider llm.Provider, cfg config.TurnConfig, route config.LLMRoutingConfig, tools []Tool, logger *log.Logger) *Branch {
	if logger == nil {
		logger = log.New(log.Writer(), "[BRANCH] ", log.LstdFlags)
	}
	byName := make(map[string]Tool, len(tools))
	var specs strings.Builder
	for _, t := range tools {
		byName[t.Name()] = t
		specs.WriteString("- ")
		specs.WriteString(t.Spec())
		specs.WriteByte('\n')
	}
	return &Branch{
		provider: provider,
		cfg:      cfg,
		route:    route,
		tools:    byName,
		specs:    specs.String(),
		logger:   logger,
	}
}

// Run researches one sub-question and returns its result. The generation is
// stamped onto the result so a stale branch finishing after a restart is
// discarded on merge.
func (b *Branch) Run(ctx context.Context, generation uint64, q SubQuestion, langInstruction string) AgentResult {
	res := AgentResult{Index: q.Index, Generation: generation}

	system := fmt.Sprintf(branchSystemPrompt, langInstruction, q.Text, b.specs)
	transcript := []string{system}
	var trace []ToolInvocation
	var citations []string
	malformed := 0

	for iter := 0; iter < b.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return b.errored(res, trace, fmt.Sprintf("branch cancelled: %v", err))
		}

		model := b.route.Model("branch")
		out, inTok, outTok, err := b.provider.GenerateWithTokens(ctx, strings.Join(transcript, "\n\n"), model, nil)
		if err != nil {
			return b.errored(res, trace, fmt.Sprintf("model call failed: %v", err))
		}
		telemetry.LLMCost.WithLabelValues("branch").Add(b.provider.CalculateCost(inTok, outTok, model))

		action, err := parseAction(out)
		if err != nil {
			malformed++
			if malformed > 1 {
				return b.errored(res, trace, "model repeatedly produced unparseable actions")
			}
			transcript = append(transcript, "Your last response was not valid action JSON. Respond with JSON only.")
			continue
		}

		switch action.Action {
		case "final":
			res.Answer = strings.TrimSpace(action.Answer)
			res.Citations = dedupeStrings(append(citations, action.Citations...))
			res.Trace = trace
			res.Status = StatusSuccess
			if res.Answer == "" {
				res.Status = StatusPartial
				res.Reason = "empty final answer"
			}
			return res

		case "tool":
			tool, ok := b.tools[action.Tool]
			if !ok {
				transcript = append(transcript, fmt.Sprintf("Tool %q does not exist. Use one of the listed tools.", action.Tool))
				continue
			}
			start := time.Now()
			output, err := tool.Invoke(ctx, action.Args)
			inv := ToolInvocation{
				Tool:    action.Tool,
				Args:    action.Args,
				Latency: time.Since(start),
			}
			if err != nil {
				inv.Failed = true
				inv.Summary = err.Error()
				trace = append(trace, inv)
				transcript = append(transcript, fmt.Sprintf(branchObservation, action.Tool, "error: "+err.Error()))
				continue
			}
			inv.Summary = truncate(output.Content, 300)
			inv.NoResults = output.NoResults
			trace = append(trace, inv)
			citations = dedupeStrings(append(citations, output.Citations...))
			transcript = append(transcript, fmt.Sprintf(branchObservation, action.Tool, output.Content))

		default:
			malformed++
			if malformed > 1 {
				return b.errored(res, trace, fmt.Sprintf("unknown action %q", action.Action))
			}
			transcript = append(transcript, "Unknown action. Respond with JSON only, action tool or final.")
		}
	}

	// Iteration budget exhausted: surface what was gathered as a partial
	// result instead of discarding the work.
	res.Status = StatusPartial
	res.Reason = "iteration limit reached"
	res.Citations = citations
	res.Trace = trace
	if last := lastObservation(trace); last != "" {
		res.Answer = last
	}
	return res
}

func (b *Branch) errored(res AgentResult, trace []ToolInvocation, reason string) AgentResult {
	b.logger.Printf("branch %d errored: %s", res.Index, reason)
	res.Status = StatusErrored
	res.Reason = reason
	res.Trace = trace
	return res
}

func parseAction(out string) (branchAction, error) {
	raw, err := llm.ExtractJSON(out)
	if err != nil {
		return branchAction{}, err
	}
	var a branchAction
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return branchAction{}, err
	}
	return a, nil
}

func lastObservation(trace []ToolInvocation) string {
	for i := len(trace) - 1; i >= 0; i-- {
		if !trace[i].Failed && !trace[i].NoResults {
			return trace[i].Summary
		}
	}
	return ""
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
