package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mohammad-safakhou/hously/config"
)

func testChunker() *Chunker {
	return NewChunker(config.IngestConfig{
		ChildSize:     100,
		ChildOverlap:  20,
		MinParentSize: 200,
		MaxParentSize: 400,
	})
}

func TestSplitLinksChildrenToParents(t *testing.T) {
	text := strings.Repeat("Housing policy sentence. ", 40)
	parents, children := testChunker().Split("doc", "hdb.gov.sg", "Policy", text)
	if len(parents) == 0 || len(children) == 0 {
		t.Fatalf("parents=%d children=%d", len(parents), len(children))
	}

	byID := map[string]bool{}
	for _, p := range parents {
		byID[p.ID] = true
	}
	for _, c := range children {
		if !byID[c.ParentID] {
			t.Fatalf("child %s points to unknown parent %s", c.ID, c.ParentID)
		}
	}
}

func TestSplitParentIDsAreSequential(t *testing.T) {
	text := strings.Repeat("Paragraph about grants and eligibility rules in Singapore.\n\n", 30)
	parents, _ := testChunker().Split("grants", "hdb.gov.sg", "Grants", text)
	if len(parents) < 2 {
		t.Fatalf("parents = %d, want multiple sections", len(parents))
	}
	for i, p := range parents {
		want := "grants_parent_"
		if !strings.HasPrefix(p.ID, want) {
			t.Fatalf("parent id = %q", p.ID)
		}
		if n, ok := sequence(p.ID); !ok || n != i {
			t.Fatalf("parent %d has id %q", i, p.ID)
		}
	}
}

func TestSplitRespectsMaxParentSize(t *testing.T) {
	// One giant paragraph with no breaks still gets force-split.
	text := strings.Repeat("x", 1500)
	parents, _ := testChunker().Split("doc", "", "", text)
	for _, p := range parents {
		if len(p.Text) > 400 {
			t.Fatalf("parent of %d chars exceeds maximum", len(p.Text))
		}
	}
}

func TestChildOverlap(t *testing.T) {
	text := strings.Repeat("a", 250)
	pieces := testChunker().splitChildren(text)
	if len(pieces) < 2 {
		t.Fatalf("pieces = %d", len(pieces))
	}
	for i := 1; i < len(pieces); i++ {
		prev := pieces[i-1]
		tail := prev[len(prev)-20:]
		if !strings.HasPrefix(pieces[i], tail) {
			t.Fatalf("piece %d does not overlap its predecessor", i)
		}
	}
}

func TestSplitChineseTextKeepsCharactersIntact(t *testing.T) {
	// One unbroken Chinese paragraph long enough to force hard wrapping in
	// both the parent and child splitters. Every emitted piece must remain
	// valid UTF-8 and sized by characters, not bytes.
	text := strings.Repeat("组屋转售价格在过去一年上涨了百分之五。", 320)
	parents, children := testChunker().Split("doc", "hdb.gov.sg", "转售", text)
	if len(parents) < 2 {
		t.Fatalf("parents = %d, want hard-wrapped sections", len(parents))
	}
	for _, p := range parents {
		if !utf8.ValidString(p.Text) {
			t.Fatalf("parent %s split mid-character", p.ID)
		}
		if n := utf8.RuneCountInString(p.Text); n > 400 {
			t.Fatalf("parent %s is %d chars, exceeds maximum", p.ID, n)
		}
	}
	for _, c := range children {
		if !utf8.ValidString(c.Text) {
			t.Fatalf("child %s split mid-character", c.ID)
		}
		if n := utf8.RuneCountInString(c.Text); n > 100 {
			t.Fatalf("child %s is %d chars, exceeds size", c.ID, n)
		}
	}
}

func TestChildOverlapAtLeastSizeStillTerminates(t *testing.T) {
	c := NewChunker(config.IngestConfig{
		ChildSize:     50,
		ChildOverlap:  50,
		MinParentSize: 200,
		MaxParentSize: 400,
	})
	pieces := c.splitChildren(strings.Repeat("b", 180))
	if len(pieces) == 0 {
		t.Fatal("no pieces")
	}
	var joined strings.Builder
	for _, p := range pieces {
		joined.WriteString(p)
	}
	// With the overlap clamped away the windows tile the text exactly.
	if joined.String() != strings.Repeat("b", 180) {
		t.Fatalf("windows do not cover the text: %d pieces", len(pieces))
	}
}

func TestShortTextSingleChild(t *testing.T) {
	pieces := testChunker().splitChildren("short")
	if len(pieces) != 1 || pieces[0] != "short" {
		t.Fatalf("pieces = %v", pieces)
	}
}
