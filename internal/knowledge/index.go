// Package knowledge implements the retrieval layer: a hybrid BM25 plus
// vector index over small child chunks, and a parent document store that the
// expand step promotes hits into.
package knowledge

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/hously/config"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// Chunk is one indexed child passage. ParentID points into the parent store.
type Chunk struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Source   string `json:"source"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}

// Hit is one retrieval result after fusion.
type Hit struct {
	Chunk Chunk
	Score float64
	Rank  int
}

// Embedder turns text into vectors. The llm.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

type docVector struct {
	id  string
	vec []float32
}

// Index is the hybrid retriever. Keyword search runs through bleve while
// vectors stay in memory; corpora here are tens of thousands of chunks at
// most, rebuilt by the ingest command.
type Index struct {
	bleve    bleve.Index
	embedder Embedder
	model    string
	cfg      config.RetrievalConfig

	mu      sync.RWMutex
	meta    map[string]Chunk
	vectors []docVector
}

// Open opens or creates the on-disk index at cfg.IndexPath.
func Open(cfg config.RetrievalConfig, embedder Embedder, model string) (*Index, error) {
	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(cfg.IndexPath); statErr == nil {
		idx, err = bleve.Open(cfg.IndexPath)
	} else {
		idx, err = bleve.New(cfg.IndexPath, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", cfg.IndexPath, err)
	}
	return &Index{
		bleve:    idx,
		embedder: embedder,
		model:    model,
		cfg:      cfg,
		meta:     make(map[string]Chunk),
	}, nil
}

// OpenMemory builds an in-memory index, used by tests and the ingest dry run.
func OpenMemory(cfg config.RetrievalConfig, embedder Embedder, model string) (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{
		bleve:    idx,
		embedder: embedder,
		model:    model,
		cfg:      cfg,
		meta:     make(map[string]Chunk),
	}, nil
}

// Add indexes a batch of chunks, embedding their text in one call.
func (ix *Index) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := ix.embedder.Embed(ctx, ix.model, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(vecs), len(chunks))
	}

	batch := ix.bleve.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, c); err != nil {
			return err
		}
	}
	if err := ix.bleve.Batch(batch); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, c := range chunks {
		ix.meta[c.ID] = c
		ix.vectors = append(ix.vectors, docVector{id: c.ID, vec: vecs[i]})
	}
	return nil
}

// Search runs keyword and vector retrieval and fuses them with reciprocal
// rank fusion. Vector hits below the similarity threshold are dropped before
// fusion; if nothing clears the bar on either side the result is empty.
func (ix *Index) Search(ctx context.Context, query string) ([]Hit, error) {
	k := ix.cfg.TopKChunks

	keyword, err := ix.keywordSearch(query, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	vector, err := ix.vectorSearch(ctx, query, k)
	if err != nil {
		// Keyword results still count when the embedding endpoint is down.
		vector = nil
	}

	return ix.fuse(keyword, vector, k), nil
}

// Count reports how many chunks are indexed.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.meta)
}

func (ix *Index) Close() error { return ix.bleve.Close() }

func (ix *Index) keywordSearch(q string, k int) ([]Hit, error) {
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := ix.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Hit
	for i, hit := range res.Hits {
		c, ok := ix.meta[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Hit{Chunk: c, Score: hit.Score, Rank: i + 1})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (ix *Index) vectorSearch(ctx context.Context, q string, k int) ([]Hit, error) {
	vecs, err := ix.embedder.Embed(ctx, ix.model, []string{q})
	if err != nil || len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qv := vecs[0]

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	type scored struct {
		id    string
		score float64
	}
	var scoreds []scored
	for _, v := range ix.vectors {
		if s := cosine(qv, v.vec); s >= ix.cfg.SimilarityThreshold {
			scoreds = append(scoreds, scored{id: v.id, score: s})
		}
	}
	sort.Slice(scoreds, func(i, j int) bool { return scoreds[i].score > scoreds[j].score })

	var out []Hit
	for i, sc := range scoreds {
		c, ok := ix.meta[sc.id]
		if !ok {
			continue
		}
		out = append(out, Hit{Chunk: c, Score: sc.score, Rank: i + 1})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (ix *Index) fuse(a, b []Hit, k int) []Hit {
	type agg struct {
		hit   Hit
		score float64
	}
	m := map[string]*agg{}
	add := func(list []Hit) {
		for _, h := range list {
			x, ok := m[h.Chunk.ID]
			if !ok {
				x = &agg{hit: h}
				m[h.Chunk.ID] = x
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)

	fused := make([]agg, 0, len(m))
	for _, v := range m {
		fused = append(fused, *v)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].hit.Chunk.ID < fused[j].hit.Chunk.ID
	})

	if len(fused) > k {
		fused = fused[:k]
	}
	out := make([]Hit, len(fused))
	for i, f := range fused {
		f.hit.Score = f.score
		f.hit.Rank = i + 1
		out[i] = f.hit
	}
	return out
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
