package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Parent is one full-context document section. Children indexed for search
// point back at the parent they were cut from; answering happens over the
// parent text.
type Parent struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

var parentSeq = regexp.MustCompile(`_parent_(\d+)$`)

// ParentStore keeps one JSON file per parent under a directory. The ingest
// command writes it; retrieval only reads.
type ParentStore struct {
	dir string
}

func NewParentStore(dir string) (*ParentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create parent store dir: %w", err)
	}
	return &ParentStore{dir: dir}, nil
}

// Put writes one parent document, replacing any previous version.
func (ps *ParentStore) Put(p Parent) error {
	if p.ID == "" {
		return fmt.Errorf("parent id is required")
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ps.path(p.ID), data, 0o644)
}

// Get loads one parent by ID. The bool reports existence.
func (ps *ParentStore) Get(id string) (Parent, bool, error) {
	data, err := os.ReadFile(ps.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Parent{}, false, nil
		}
		return Parent{}, false, err
	}
	var p Parent
	if err := json.Unmarshal(data, &p); err != nil {
		return Parent{}, false, fmt.Errorf("parse parent %s: %w", id, err)
	}
	return p, true, nil
}

// GetMany resolves a set of parent IDs: duplicates collapse, IDs sort by
// their document position (the numeric suffix, so section 10 follows section
// 9 rather than section 1), and the count is capped at max. Missing parents
// are skipped rather than treated as errors.
func (ps *ParentStore) GetMany(ids []string, max int) ([]Parent, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	sort.Slice(unique, func(i, j int) bool {
		ni, oki := sequence(unique[i])
		nj, okj := sequence(unique[j])
		if oki && okj && ni != nj {
			return ni < nj
		}
		return unique[i] < unique[j]
	})

	if max > 0 && len(unique) > max {
		unique = unique[:max]
	}

	out := make([]Parent, 0, len(unique))
	for _, id := range unique {
		p, ok, err := ps.Get(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (ps *ParentStore) path(id string) string {
	return filepath.Join(ps.dir, id+".json")
}

func sequence(id string) (int, bool) {
	m := parentSeq.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
