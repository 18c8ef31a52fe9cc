package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/knowledge"
	"github.com/mohammad-safakhou/hously/internal/turn"
)

// fixedEmbedder maps indexed text to one direction and everything else to an
// orthogonal one, so only keyword search can match test queries.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, _ string, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i, text := range input {
		if strings.Contains(text, "family nucleus") {
			out[i] = []float32{1, 0, 0}
		} else {
			out[i] = []float32{0, 1, 0}
		}
	}
	return out, nil
}

func seededIndex(t *testing.T) *knowledge.Index {
	t.Helper()
	cfg := config.RetrievalConfig{}.Normalize()
	ix, err := knowledge.OpenMemory(cfg, fixedEmbedder{}, "m")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ix.Close() })
	err = ix.Add(context.Background(), []knowledge.Chunk{
		{ID: "bto_parent_0_child_0", ParentID: "bto_parent_0", Source: "hdb.gov.sg/bto", Title: "BTO", Text: "BTO applicants must form a valid family nucleus."},
	})
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestRetrieveReturnsPassagesAndCitations(t *testing.T) {
	tool := NewRetrieveTool(seededIndex(t))
	out, err := tool.Invoke(context.Background(), map[string]interface{}{"query": "family nucleus BTO"})
	if err != nil {
		t.Fatal(err)
	}
	if out.NoResults {
		t.Fatal("expected results")
	}
	if !strings.Contains(out.Content, "family nucleus") {
		t.Fatalf("content = %q", out.Content)
	}
	if len(out.Citations) == 0 || out.Citations[0] != "hdb.gov.sg/bto" {
		t.Fatalf("citations = %v", out.Citations)
	}
}

func TestRetrieveNoChunksSentinel(t *testing.T) {
	tool := NewRetrieveTool(seededIndex(t))
	out, err := tool.Invoke(context.Background(), map[string]interface{}{"query": "zzqx unrelated nonsense"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.NoResults || !strings.Contains(out.Content, markerNoChunks) {
		t.Fatalf("output = %+v", out)
	}
}

func TestRetrieveRequiresQuery(t *testing.T) {
	tool := NewRetrieveTool(seededIndex(t))
	if _, err := tool.Invoke(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing query")
	}
}

func TestExpandContext(t *testing.T) {
	ps, err := knowledge.NewParentStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := ps.Put(knowledge.Parent{ID: "bto_parent_0", Source: "hdb.gov.sg/bto", Title: "BTO", Text: "full section text"}); err != nil {
		t.Fatal(err)
	}
	tool := NewExpandTool(ps, 3)

	out, err := tool.Invoke(context.Background(), map[string]interface{}{
		"section_ids": []interface{}{"bto_parent_0", "bto_parent_0", "missing_parent_1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.Content, "full section text") {
		t.Fatalf("content = %q", out.Content)
	}

	out, err = tool.Invoke(context.Background(), map[string]interface{}{
		"section_ids": []interface{}{"missing_parent_0"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !out.NoResults || out.Content != markerNoParents {
		t.Fatalf("output = %+v", out)
	}
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	retrieve := NewRetrieveTool(seededIndex(t))
	ps, _ := knowledge.NewParentStore(t.TempDir())
	expand := NewExpandTool(ps, 3)

	r, err := NewRegistry(retrieve, expand)
	if err != nil {
		t.Fatal(err)
	}
	all := r.All()
	if len(all) != 2 || all[0].Name() != "retrieve" || all[1].Name() != "expand_context" {
		t.Fatalf("order = %v", names(all))
	}
	if _, ok := r.Lookup("retrieve"); !ok {
		t.Fatal("lookup failed")
	}
	if err := r.Register(retrieve); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func names(ts []turn.Tool) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name()
	}
	return out
}
