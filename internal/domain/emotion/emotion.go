// Package emotion contains the label set and result types shared across layers.
package emotion

// Label identifies one of the fixed emotion categories.
type Label string

// The closed label set. Order here is the canonical generation order.
const (
	Calm     Label = "Calm"
	Stressed Label = "Stressed"
	Excited  Label = "Excited"
	Neutral  Label = "Neutral"
)

// labels holds the canonical order used by the classifier and normalizer.
var labels = []Label{Calm, Stressed, Excited, Neutral}

// Labels returns the full label set in canonical order. The returned slice
// is a copy; callers may reorder it freely.
func Labels() []Label {
	out := make([]Label, len(labels))
	copy(out, labels)
	return out
}

// Count returns the number of labels in the closed set.
func Count() int {
	return len(labels)
}

// Valid reports whether l is a member of the closed label set.
func (l Label) Valid() bool {
	switch l {
	case Calm, Stressed, Excited, Neutral:
		return true
	}
	return false
}

// RawScore is an unnormalized, non-negative weight for a label.
// Produced per classifier invocation; never persisted.
type RawScore struct {
	Label Label
	Score float64
}

// RankedResult is a normalized integer confidence for a label.
type RankedResult struct {
	Label      Label `json:"label"`
	Confidence int   `json:"confidence"`
}
