package scaffold

import (
	"fmt"
	"sort"
)

// Index is the read-only registry of scaffolds: lookup by id, by declared
// tool name and by tag, plus the declaration order used for tie-breaking.
// An Index is built once and never mutated; a reload builds a new one.
type Index struct {
	ordered []*Scaffold
	byID    map[string]*Scaffold
	byTool  map[string][]*Scaffold
	byTag   map[string][]*Scaffold
	pos     map[string]int
}

// NewIndex builds an Index from scaffolds in declaration order. Duplicate or
// empty ids are rejected.
func NewIndex(scaffolds []*Scaffold) (*Index, error) {
	idx := &Index{
		ordered: make([]*Scaffold, 0, len(scaffolds)),
		byID:    make(map[string]*Scaffold, len(scaffolds)),
		byTool:  make(map[string][]*Scaffold),
		byTag:   make(map[string][]*Scaffold),
		pos:     make(map[string]int, len(scaffolds)),
	}
	for i, s := range scaffolds {
		if s == nil {
			return nil, fmt.Errorf("scaffold index: entry %d is nil", i)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("scaffold index: entry %d has no id", i)
		}
		if _, dup := idx.byID[s.ID]; dup {
			return nil, fmt.Errorf("scaffold index: duplicate id %q", s.ID)
		}
		idx.pos[s.ID] = len(idx.ordered)
		idx.ordered = append(idx.ordered, s)
		idx.byID[s.ID] = s
		for _, tool := range uniq(s.Applicability.Tools) {
			idx.byTool[tool] = append(idx.byTool[tool], s)
		}
		for _, tag := range uniq(s.Tags) {
			idx.byTag[tag] = append(idx.byTag[tag], s)
		}
	}
	return idx, nil
}

// Get returns the scaffold registered under id.
func (x *Index) Get(id string) (*Scaffold, bool) {
	s, ok := x.byID[id]
	return s, ok
}

// ByTool returns the scaffolds declaring tool, in declaration order.
func (x *Index) ByTool(tool string) []*Scaffold {
	return x.byTool[tool]
}

// ByTag returns the scaffolds carrying tag, in declaration order.
func (x *Index) ByTag(tag string) []*Scaffold {
	return x.byTag[tag]
}

// All returns every scaffold in declaration order. The slice must not be modified.
func (x *Index) All() []*Scaffold {
	return x.ordered
}

// Position returns the declaration position of id, or -1.
func (x *Index) Position(id string) int {
	if p, ok := x.pos[id]; ok {
		return p
	}
	return -1
}

// Len returns the number of registered scaffolds.
func (x *Index) Len() int {
	return len(x.ordered)
}

// IDs returns all scaffold ids sorted alphabetically.
func (x *Index) IDs() []string {
	ids := make([]string, 0, len(x.byID))
	for id := range x.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tags returns every known tag sorted alphabetically.
func (x *Index) Tags() []string {
	tags := make([]string, 0, len(x.byTag))
	for t := range x.byTag {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
