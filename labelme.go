package yoloprep

// LabelMe specific functionality.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// LabelMeShape is a single labeled region within a LabelMe document.
type LabelMeShape struct {
	Label     string          `json:"label"`
	Points    [][2]float64    `json:"points"`
	ShapeType string          `json:"shape_type,omitempty"` // rectangle, polygon, circle, ...
	GroupID   *int            `json:"group_id,omitempty"`
	Flags     map[string]bool `json:"flags,omitempty"`
}

// LabelMeDocument defines the LabelMe annotation structure for a single image. The embedded image
// data is not decoded.
type LabelMeDocument struct {
	Version     string          `json:"version,omitempty"`
	Flags       map[string]bool `json:"flags,omitempty"`
	Shapes      []LabelMeShape  `json:"shapes"`
	ImagePath   string          `json:"imagePath,omitempty"`
	ImageWidth  int             `json:"imageWidth,omitempty"`
	ImageHeight int             `json:"imageHeight,omitempty"`
}

const labelMeSchema = `{
  "type": "object",
  "required": ["shapes"],
  "properties": {
    "shapes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["label", "points"],
        "properties": {
          "label": {"type": "string"},
          "points": {
            "type": "array",
            "items": {
              "type": "array",
              "minItems": 2,
              "maxItems": 2,
              "items": {"type": "number"}
            }
          },
          "shape_type": {"type": ["string", "null"]}
        }
      }
    },
    "imageWidth": {"type": ["integer", "null"], "minimum": 0},
    "imageHeight": {"type": ["integer", "null"], "minimum": 0}
  }
}`

var labelMeValidator = mustCompileSchema("labelme.json", labelMeSchema)

func mustCompileSchema(url, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("failed to load schema %s: %v", url, err))
	}
	s, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("failed to compile schema %s: %v", url, err))
	}
	return s
}

// ParseLabelMe validates and decodes a LabelMe JSON document. All failures wrap
// ErrMalformedDocument.
func ParseLabelMe(data []byte) (LabelMeDocument, error) {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return LabelMeDocument{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := labelMeValidator.Validate(raw); err != nil {
		return LabelMeDocument{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var doc LabelMeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return LabelMeDocument{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return doc, nil
}

// ShapeToAnnotation returns the axis-aligned pixel-space bounding box of s.
//
// Two points are taken as opposite rectangle corners, except for circles where they are the center
// and a point on the rim. For three or more points the minimal enclosing axis-aligned rectangle is
// used; the polygon's outline and any rotation are lost.
func ShapeToAnnotation(s LabelMeShape) (Annotation, error) {
	a := Annotation{Label: s.Label}

	switch {
	case len(s.Points) < 2:
		return a, fmt.Errorf("%w: %d point(s)", ErrDegenerateBox, len(s.Points))
	case len(s.Points) == 2 && s.ShapeType == "circle":
		c, p := s.Points[0], s.Points[1]
		r := math.Hypot(p[0]-c[0], p[1]-c[1])
		a.Coords = [4]float64{c[0] - r, c[1] - r, c[0] + r, c[1] + r}
	default:
		a.Coords = [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
		for _, p := range s.Points {
			a.Coords[0] = math.Min(a.Coords[0], p[0])
			a.Coords[1] = math.Min(a.Coords[1], p[1])
			a.Coords[2] = math.Max(a.Coords[2], p[0])
			a.Coords[3] = math.Max(a.Coords[3], p[1])
		}
	}

	if a.Width() <= 0 || a.Height() <= 0 {
		return a, fmt.Errorf("%w: %gx%g", ErrDegenerateBox, a.Width(), a.Height())
	}
	return a, nil
}

// FromLabelMe reads and parses LabelMe annotations from labelDir and matches them to the images in
// imageDir. The two directories may be the same.
//
// The second return value lists the skipped files and shapes; the error is only set when one of
// the directories cannot be read.
func FromLabelMe(labelDir, imageDir string, logger *slog.Logger) (AnnotatedFiles, []error, error) {
	return parseLabelsWithOneToOneImages(labelDir, ".json", imageDir, parseLabelMeFile,
		orDefault(logger))
}

// parseLabelMeFile parses the document at labelPath and reads the image size from the document or,
// if missing, from the image at imagePath.
func parseLabelMeFile(labelPath, imagePath string) (AnnotatedFile, []error, error) {
	enc, err := os.ReadFile(labelPath)
	if err != nil {
		return AnnotatedFile{}, nil, newRecordError(ErrIO, labelPath, err)
	}

	doc, err := ParseLabelMe(enc)
	if err != nil {
		return AnnotatedFile{}, nil, newRecordError(ErrMalformedDocument, labelPath, err)
	}

	width, height := doc.ImageWidth, doc.ImageHeight
	if width <= 0 || height <= 0 {
		if width, height, err = imageSize(imagePath); err != nil {
			return AnnotatedFile{}, nil, newRecordError(ErrIO, imagePath, err)
		}
	}

	fileData := AnnotatedFile{
		Annotations: make([]Annotation, 0, len(doc.Shapes)),
		FilePath:    imagePath,
		LabelPath:   labelPath,
		Width:       width,
		Height:      height,
	}

	var skipped []error
	for i, s := range doc.Shapes {
		a, err := ShapeToAnnotation(s)
		if err != nil {
			skipped = append(skipped, &RecordError{
				Kind: ErrDegenerateBox, Path: labelPath, Shape: i, Err: err})
			continue
		}
		a.Shape = i
		fileData.Annotations = append(fileData.Annotations, a)
	}

	return fileData, skipped, nil
}
