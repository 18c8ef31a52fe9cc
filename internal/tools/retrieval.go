// Package tools implements the capabilities exposed to agent branches.
// Every tool reports misses and failures in its output text so the model can
// reason about them instead of hallucinating around a missing observation.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/hously/internal/knowledge"
	"github.com/mohammad-safakhou/hously/internal/telemetry"
	"github.com/mohammad-safakhou/hously/internal/turn"
)

// Sentinel markers surfaced to the model in tool output.
const (
	markerNoChunks       = "NO_RELEVANT_CHUNKS"
	markerRetrievalError = "RETRIEVAL_ERROR:"
	markerNoParents      = "NO_PARENT_DOCUMENTS"
)

// RetrieveTool searches the housing knowledge base for passages relevant to
// a query.
type RetrieveTool struct {
	index *knowledge.Index
}

func NewRetrieveTool(index *knowledge.Index) *RetrieveTool {
	return &RetrieveTool{index: index}
}

func (t *RetrieveTool) Name() string { return "retrieve" }

func (t *RetrieveTool) Spec() string {
	return `retrieve(query string): search the housing knowledge base for passages relevant to the query`
}

func (t *RetrieveTool) Invoke(ctx context.Context, args map[string]interface{}) (turn.ToolOutput, error) {
	query := stringArg(args, "query")
	if query == "" {
		return turn.ToolOutput{}, fmt.Errorf("retrieve: query is required")
	}

	hits, err := t.index.Search(ctx, query)
	if err != nil {
		telemetry.ToolInvocations.WithLabelValues(t.Name(), "error").Inc()
		return turn.ToolOutput{Content: markerRetrievalError + " " + err.Error(), NoResults: true}, nil
	}
	telemetry.RetrievalHits.Observe(float64(len(hits)))
	if len(hits) == 0 {
		telemetry.ToolInvocations.WithLabelValues(t.Name(), "empty").Inc()
		return turn.ToolOutput{Content: markerNoChunks, NoResults: true}, nil
	}
	telemetry.ToolInvocations.WithLabelValues(t.Name(), "ok").Inc()

	var b strings.Builder
	var citations []string
	for _, h := range hits {
		fmt.Fprintf(&b, "[%s] (section %s)\n%s\n\n", h.Chunk.Source, h.Chunk.ParentID, h.Chunk.Text)
		citations = append(citations, h.Chunk.Source)
	}
	b.WriteString("To read a full section, call expand_context with its section ids.")
	return turn.ToolOutput{Content: b.String(), Citations: citations}, nil
}

// ExpandTool promotes child chunk hits to their parent sections for full
// answering context.
type ExpandTool struct {
	parents *knowledge.ParentStore
	max     int
}

func NewExpandTool(parents *knowledge.ParentStore, max int) *ExpandTool {
	return &ExpandTool{parents: parents, max: max}
}

func (t *ExpandTool) Name() string { return "expand_context" }

func (t *ExpandTool) Spec() string {
	return `expand_context(section_ids []string): fetch the full document sections for section ids returned by retrieve`
}

func (t *ExpandTool) Invoke(_ context.Context, args map[string]interface{}) (turn.ToolOutput, error) {
	ids := stringSliceArg(args, "section_ids")
	if len(ids) == 0 {
		return turn.ToolOutput{}, fmt.Errorf("expand_context: section_ids is required")
	}

	parents, err := t.parents.GetMany(ids, t.max)
	if err != nil {
		telemetry.ToolInvocations.WithLabelValues(t.Name(), "error").Inc()
		return turn.ToolOutput{Content: markerRetrievalError + " " + err.Error(), NoResults: true}, nil
	}
	if len(parents) == 0 {
		telemetry.ToolInvocations.WithLabelValues(t.Name(), "empty").Inc()
		return turn.ToolOutput{Content: markerNoParents, NoResults: true}, nil
	}
	telemetry.ToolInvocations.WithLabelValues(t.Name(), "ok").Inc()

	var b strings.Builder
	var citations []string
	for _, p := range parents {
		fmt.Fprintf(&b, "=== %s (%s) ===\n%s\n\n", p.Title, p.Source, p.Text)
		citations = append(citations, p.Source)
	}
	return turn.ToolOutput{Content: strings.TrimSpace(b.String()), Citations: citations}, nil
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	var out []string
	switch v := args[key].(type) {
	case []string:
		out = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case string:
		if v != "" {
			out = []string{v}
		}
	}
	return out
}
