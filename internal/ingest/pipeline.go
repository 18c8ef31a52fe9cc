package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/hously/config"
	"github.com/mohammad-safakhou/hously/internal/knowledge"
)

// Pipeline turns source documents into the parent store and search index.
type Pipeline struct {
	Index   *knowledge.Index
	Parents *knowledge.ParentStore
	Chunker *knowledge.Chunker
	Fetcher Fetcher
	Logger  *log.Logger
}

func NewPipeline(index *knowledge.Index, parents *knowledge.ParentStore, cfg config.IngestConfig, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	cfg = cfg.Normalize()
	return &Pipeline{
		Index:   index,
		Parents: parents,
		Chunker: knowledge.NewChunker(cfg),
		Fetcher: Fetcher{Timeout: cfg.FetchTimeout, MaxChars: cfg.MaxChars},
		Logger:  logger,
	}
}

// IngestDir indexes every markdown and text file under dir. The filename
// stem becomes the document id so re-ingesting a file replaces its parents.
func (p *Pipeline) IngestDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read docs dir: %w", err)
	}
	docs := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".md" && ext != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return docs, err
		}
		docID := strings.TrimSuffix(entry.Name(), ext)
		title := titleFrom(string(data), docID)
		if err := p.ingestDocument(ctx, docID, entry.Name(), title, string(data)); err != nil {
			return docs, fmt.Errorf("ingest %s: %w", entry.Name(), err)
		}
		docs++
	}
	return docs, nil
}

// IngestURL fetches, extracts and indexes one page.
func (p *Pipeline) IngestURL(ctx context.Context, rawURL string) error {
	page, err := p.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if page.Text == "" {
		p.Logger.Printf("no extractable text at %s, skipping", rawURL)
		return nil
	}
	docID := uuid.NewString()
	return p.ingestDocument(ctx, docID, page.URL, page.Title, page.Text)
}

func (p *Pipeline) ingestDocument(ctx context.Context, docID, source, title, text string) error {
	parents, children := p.Chunker.Split(docID, source, title, text)
	for _, parent := range parents {
		if err := p.Parents.Put(parent); err != nil {
			return err
		}
	}
	if err := p.Index.Add(ctx, children); err != nil {
		return err
	}
	p.Logger.Printf("indexed %s: %d sections, %d chunks", source, len(parents), len(children))
	return nil
}

// titleFrom uses the first markdown heading, falling back to the doc id.
func titleFrom(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
		if line != "" {
			break
		}
	}
	return fallback
}
