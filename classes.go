package yoloprep

// Class id registry.

import (
	"fmt"
	"sort"
)

// ClassOrder selects how class ids are assigned to labels.
type ClassOrder string

// The supported class orders.
const (
	ClassOrderFirstSeen ClassOrder = "first-seen" // Ids in order of first occurrence.
	ClassOrderSorted    ClassOrder = "sorted"     // Ids in lexical label order.
)

// ClassTable maps label strings to stable, sequential class ids. The first label added gets id 0.
//
// A table is owned by whoever builds the records and is frozen before the dataset is written, so
// that the ids in the label files and the names in the descriptor cannot diverge. It is not safe
// for concurrent use.
type ClassTable struct {
	ids    map[string]int
	names  []string
	frozen bool
}

// NewClassTable returns a table pre-seeded with names, in order. Duplicates are ignored.
func NewClassTable(names ...string) *ClassTable {
	t := &ClassTable{ids: make(map[string]int, len(names))}
	for _, n := range names {
		if _, ok := t.ids[n]; !ok {
			t.ids[n] = len(t.names)
			t.names = append(t.names, n)
		}
	}
	return t
}

// ID returns the id for label, assigning the next free id if the label is new.
func (t *ClassTable) ID(label string) (int, error) {
	if id, ok := t.ids[label]; ok {
		return id, nil
	}
	if t.frozen {
		return 0, fmt.Errorf("%w: cannot add label %q", ErrClassTableFrozen, label)
	}
	id := len(t.names)
	t.ids[label] = id
	t.names = append(t.names, label)
	return id, nil
}

// Lookup returns the id for label without modifying the table.
func (t *ClassTable) Lookup(label string) (int, bool) {
	id, ok := t.ids[label]
	return id, ok
}

// Names returns a copy of the class names indexed by id.
func (t *ClassTable) Names() []string {
	return append([]string(nil), t.names...)
}

// Len is the number of classes.
func (t *ClassTable) Len() int {
	return len(t.names)
}

// Freeze makes the table immutable. It is idempotent.
func (t *ClassTable) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze has been called.
func (t *ClassTable) Frozen() bool {
	return t.frozen
}

// seedSorted adds all labels found in data in lexical order.
func (t *ClassTable) seedSorted(data AnnotatedFiles) error {
	seen := make(map[string]bool)
	var labels []string
	for _, f := range data {
		for _, a := range f.Annotations {
			if !seen[a.Label] {
				seen[a.Label] = true
				labels = append(labels, a.Label)
			}
		}
	}
	sort.Strings(labels)
	for _, l := range labels {
		if _, err := t.ID(l); err != nil {
			return err
		}
	}
	return nil
}
