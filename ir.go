package yoloprep

// The intermediate annotation metadata representation.

import (
	"fmt"
	"strings"
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Coords [4]float64 // Absolute x1, y1, x2, y2 offsets from the top-left corner, x1<=x2, y1<=y2.
	Label  string
	Shape  int // Index of the source shape in its document.
}

// Width is the object width from a.Coords.
func (a Annotation) Width() float64 {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() float64 {
	return a.Coords[3] - a.Coords[1]
}

// AnnotatedFile is the intermediate representation of file metadata.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations, in document order.
	FilePath    string       // The annotated image.
	LabelPath   string       // The annotation document the labels were read from.
	Width       int          // Image width in pixels.
	Height      int          // Image height in pixels.
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// NumAnnotations is the total number of annotations over all files.
func (data AnnotatedFiles) NumAnnotations() int {
	n := 0
	for _, f := range data {
		n += len(f.Annotations)
	}
	return n
}

// MapLabels replaces label (sub-)strings with substitution values, as specified in mappings.
//
// The format of mappings is old=new. Returns the number of labels that changed.
func (data AnnotatedFiles) MapLabels(mappings []string) (int, error) {
	if len(mappings) == 0 {
		return 0, nil
	}

	// Extract the individual old and new strings to map between.
	replacements := make([]struct{ old, new string }, len(mappings))
	for i, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return 0, fmt.Errorf("invalid mapping: %v", v)
		}

		replacements[i].old = a[0]
		replacements[i].new = a[1]
	}

	// Apply the replacements, in order, to all labels.
	count := 0
	for _, f := range data {
		for i := range f.Annotations {
			a := &f.Annotations[i]

			oldLabel := a.Label
			for _, r := range replacements {
				a.Label = strings.ReplaceAll(a.Label, r.old, r.new)
			}

			if a.Label != oldLabel {
				count++
			}
		}
	}

	return count, nil
}

// Filter removes annotations which do not match any of the given labelNames (an empty list keeps
// all labels), or whose bounding box is narrower than minBboxWidth or lower than minBboxHeight
// pixels.
//
// Files are never removed: a file that loses all its annotations stays in the data set as a
// background image. Returns the number of removed annotations.
func (data AnnotatedFiles) Filter(labelNames []string, minBboxWidth, minBboxHeight float64) int {
	keep := make(map[string]bool, len(labelNames))
	for _, l := range labelNames {
		keep[l] = true
	}

	removed := 0
	for i := range data {
		d := &data[i]

		// Filter in place, preserving the annotation order.
		kept := d.Annotations[:0]
		for _, a := range d.Annotations {
			if (len(keep) > 0 && !keep[a.Label]) ||
				a.Width() < minBboxWidth || a.Height() < minBboxHeight {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		d.Annotations = kept
	}

	return removed
}
