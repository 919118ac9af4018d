package classifier

import (
	"fmt"
	"strconv"
)

// LabelSet maps a model output position to a material name. It is built once
// and never mutated; index i is the label of logit i.
type LabelSet struct {
	names []string
}

// DefaultLabels is used when no model configuration document is present.
var DefaultLabels = MustLabelSet("cardboard", "glass", "metal", "paper", "plastic")

// NewLabelSet builds a label set from names in output order.
func NewLabelSet(names ...string) (LabelSet, error) {
	if len(names) == 0 {
		return LabelSet{}, fmt.Errorf("label set is empty")
	}
	seen := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return LabelSet{}, fmt.Errorf("label at index %d is empty", i)
		}
		if prev, ok := seen[name]; ok {
			return LabelSet{}, fmt.Errorf("label %q used at index %d and %d", name, prev, i)
		}
		seen[name] = i
	}
	out := make([]string, len(names))
	copy(out, names)
	return LabelSet{names: out}, nil
}

// MustLabelSet is NewLabelSet that panics on error.
func MustLabelSet(names ...string) LabelSet {
	ls, err := NewLabelSet(names...)
	if err != nil {
		panic(err)
	}
	return ls
}

// LabelSetFromIndexMap converts the string-keyed mapping found in model
// configuration files ({"0": "cardboard", ...}) into a LabelSet. Keys must be
// exactly 0..n-1.
func LabelSetFromIndexMap(m map[string]string) (LabelSet, error) {
	if len(m) == 0 {
		return LabelSet{}, fmt.Errorf("class_labels is empty")
	}
	names := make([]string, len(m))
	for key, name := range m {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return LabelSet{}, fmt.Errorf("class_labels key %q is not an integer", key)
		}
		if idx < 0 || idx >= len(m) {
			return LabelSet{}, fmt.Errorf("class_labels key %d out of range 0..%d", idx, len(m)-1)
		}
		names[idx] = name
	}
	return NewLabelSet(names...)
}

// Len returns the number of labels.
func (l LabelSet) Len() int { return len(l.names) }

// Name returns the label at output position i.
func (l LabelSet) Name(i int) string { return l.names[i] }

// Names returns a copy of the labels in output order.
func (l LabelSet) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}
