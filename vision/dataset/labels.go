package dataset

import (
	"sort"
)

// LabelIndex is a bijection between class name strings and dense zero-based
// integer indices. Discovered labels are sorted before index assignment so
// the mapping is stable across runs regardless of enumeration order.
type LabelIndex struct {
	names []string
	index map[string]int
}

// NewLabelIndex builds the bijection from a label list (duplicates allowed).
func NewLabelIndex(labels []string) *LabelIndex {
	seen := make(map[string]struct{}, len(labels))
	var names []string
	for _, label := range labels {
		if _, ok := seen[label]; !ok {
			seen[label] = struct{}{}
			names = append(names, label)
		}
	}
	sort.Strings(names)

	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}

	return &LabelIndex{names: names, index: index}
}

// Len returns the number of distinct labels.
func (li *LabelIndex) Len() int {
	return len(li.names)
}

// Lookup returns the integer index for a label name.
func (li *LabelIndex) Lookup(name string) (int, bool) {
	idx, ok := li.index[name]
	return idx, ok
}

// Name returns the label string for an integer index, or "" when out of
// range.
func (li *LabelIndex) Name(idx int) string {
	if idx < 0 || idx >= len(li.names) {
		return ""
	}
	return li.names[idx]
}

// Names returns all label strings in index order.
func (li *LabelIndex) Names() []string {
	out := make([]string, len(li.names))
	copy(out, li.names)
	return out
}
