package knowledge

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mohammad-safakhou/hously/config"
)

// Chunker cuts documents into parent sections and overlapping child chunks.
// Parents carry enough context to answer from; children are small enough to
// embed and match precisely.
type Chunker struct {
	cfg config.IngestConfig
}

func NewChunker(cfg config.IngestConfig) *Chunker {
	return &Chunker{cfg: cfg.Normalize()}
}

// Split produces the parents and children for one document. Child IDs embed
// the parent sequence so retrieval can climb back up.
func (c *Chunker) Split(docID, source, title, text string) ([]Parent, []Chunk) {
	sections := c.splitParents(text)
	parents := make([]Parent, 0, len(sections))
	var children []Chunk

	for i, section := range sections {
		parentID := fmt.Sprintf("%s_parent_%d", docID, i)
		parents = append(parents, Parent{
			ID:     parentID,
			Source: source,
			Title:  title,
			Text:   section,
		})
		for j, piece := range c.splitChildren(section) {
			children = append(children, Chunk{
				ID:       fmt.Sprintf("%s_child_%d", parentID, j),
				ParentID: parentID,
				Source:   source,
				Title:    title,
				Text:     piece,
			})
		}
	}
	return parents, children
}

// splitParents cuts on paragraph boundaries, packing paragraphs until the
// section reaches the minimum size and force-splitting anything beyond the
// maximum. Sizes are measured in runes so Chinese text is budgeted the same
// as English.
func (c *Chunker) splitParents(text string) []string {
	paras := strings.Split(text, "\n\n")
	var sections []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sections = append(sections, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if curLen > 0 && curLen+n > c.cfg.MaxParentSize {
			flush()
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(p)
		curLen += n
		if curLen >= c.cfg.MinParentSize {
			flush()
		}
	}
	flush()

	// A paragraph alone can exceed the maximum; hard-wrap those on rune
	// boundaries so a multi-byte character never splits across sections.
	var out []string
	for _, s := range sections {
		runes := []rune(s)
		for len(runes) > c.cfg.MaxParentSize {
			out = append(out, string(runes[:c.cfg.MaxParentSize]))
			runes = runes[c.cfg.MaxParentSize:]
		}
		if rest := string(runes); strings.TrimSpace(rest) != "" {
			out = append(out, rest)
		}
	}
	return out
}

// splitChildren produces fixed-size rune windows with overlap.
func (c *Chunker) splitChildren(text string) []string {
	size, overlap := c.cfg.ChildSize, c.cfg.ChildOverlap
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
