package knowledge

import (
	"context"
	"testing"

	"github.com/mohammad-safakhou/hously/config"
)

// stubEmbedder maps known phrases to fixed unit vectors so cosine scores in
// tests are exact.
type stubEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (s *stubEmbedder) Embed(_ context.Context, _ string, input []string) ([][]float32, error) {
	if s.fail {
		return nil, context.DeadlineExceeded
	}
	out := make([][]float32, len(input))
	for i, text := range input {
		if v, ok := s.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func retrievalConfig() config.RetrievalConfig {
	cfg := config.RetrievalConfig{}.Normalize()
	cfg.TopKChunks = 3
	return cfg
}

func seedIndex(t *testing.T, emb Embedder) *Index {
	t.Helper()
	ix, err := OpenMemory(retrievalConfig(), emb, "embed-model")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ix.Close() })

	chunks := []Chunk{
		{ID: "g_parent_0_child_0", ParentID: "g_parent_0", Source: "hdb.gov.sg/grants", Title: "Grants", Text: "The Enhanced CPF Housing Grant supports first-time buyers."},
		{ID: "g_parent_1_child_0", ParentID: "g_parent_1", Source: "hdb.gov.sg/grants", Title: "Grants", Text: "Proximity Housing Grant applies when living near parents."},
		{ID: "r_parent_0_child_0", ParentID: "r_parent_0", Source: "hdb.gov.sg/renting", Title: "Renting", Text: "Renting out an entire flat requires meeting the minimum occupation period."},
	}
	if err := ix.Add(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestSearchFindsKeywordMatches(t *testing.T) {
	ix := seedIndex(t, &stubEmbedder{})
	hits, err := ix.Search(context.Background(), "minimum occupation period renting")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].Chunk.ParentID != "r_parent_0" {
		t.Fatalf("top hit = %+v", hits[0])
	}
}

func TestSearchFusesVectorHits(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"The Enhanced CPF Housing Grant supports first-time buyers.": {1, 0, 0},
		"first timer subsidy": {1, 0, 0},
	}}
	ix := seedIndex(t, emb)

	// No keyword overlap with the grants chunk; only the vector side can
	// surface it.
	hits, err := ix.Search(context.Background(), "first timer subsidy")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("vector-only match not surfaced")
	}
	if hits[0].Chunk.ParentID != "g_parent_0" {
		t.Fatalf("top hit = %+v", hits[0])
	}
}

func TestSearchThresholdFiltersWeakVectors(t *testing.T) {
	// Query vector is orthogonal to every chunk vector, so cosine is 0 and
	// nothing clears the 0.7 threshold.
	emb := &stubEmbedder{vectors: map[string][]float32{
		"unrelated question": {0, 1, 0},
	}}
	ix := seedIndex(t, emb)

	hits, err := ix.Search(context.Background(), "unrelated question")
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.Score == 0 {
			t.Fatalf("zero-score hit leaked through fusion: %+v", h)
		}
	}
}

func TestSearchSurvivesEmbedderOutage(t *testing.T) {
	ix := seedIndex(t, &stubEmbedder{})
	ix.embedder = &stubEmbedder{fail: true}

	hits, err := ix.Search(context.Background(), "proximity housing grant parents")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("keyword results lost when embedding is down")
	}
}

func TestRankAssignedAfterFusion(t *testing.T) {
	ix := seedIndex(t, &stubEmbedder{})
	hits, err := ix.Search(context.Background(), "housing grant")
	if err != nil {
		t.Fatal(err)
	}
	for i, h := range hits {
		if h.Rank != i+1 {
			t.Fatalf("hit %d has rank %d", i, h.Rank)
		}
	}
}
