package yoloprep

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLabelMe(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		doc, err := ParseLabelMe([]byte(`{
  "version": "5.2.1",
  "flags": {},
  "shapes": [
    {"label": "cat", "points": [[10, 10], [50, 60]], "group_id": null, "shape_type": "rectangle", "flags": {}}
  ],
  "imagePath": "cat_001.jpg",
  "imageData": null,
  "imageHeight": 480,
  "imageWidth": 640
}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(doc.Shapes) != 1 || doc.Shapes[0].Label != "cat" || doc.Shapes[0].ShapeType != "rectangle" {
			t.Errorf("unexpected shapes %+v", doc.Shapes)
		}
		if doc.ImageWidth != 640 || doc.ImageHeight != 480 {
			t.Errorf("expected 640x480, got %dx%d", doc.ImageWidth, doc.ImageHeight)
		}
		if doc.Shapes[0].Points[1] != [2]float64{50, 60} {
			t.Errorf("unexpected points %v", doc.Shapes[0].Points)
		}
	})

	t.Run("empty shapes", func(t *testing.T) {
		doc, err := ParseLabelMe([]byte(`{"shapes": []}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(doc.Shapes) != 0 {
			t.Errorf("expected no shapes, got %d", len(doc.Shapes))
		}
	})

	malformed := map[string]string{
		"not json":         `{"shapes": [`,
		"missing shapes":   `{"imagePath": "a.jpg"}`,
		"shapes not array": `{"shapes": {}}`,
		"missing label":    `{"shapes": [{"points": [[0, 0], [1, 1]]}]}`,
		"label not string": `{"shapes": [{"label": 1, "points": [[0, 0], [1, 1]]}]}`,
		"point with 3":     `{"shapes": [{"label": "a", "points": [[0, 0, 0], [1, 1]]}]}`,
		"point not number": `{"shapes": [{"label": "a", "points": [["0", 0], [1, 1]]}]}`,
		"negative width":   `{"shapes": [], "imageWidth": -1}`,
		"top level array":  `[]`,
	}
	for name, doc := range malformed {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseLabelMe([]byte(doc)); !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("expected ErrMalformedDocument, got %v", err)
			}
		})
	}
}

func TestShapeToAnnotation(t *testing.T) {
	tests := []struct {
		name  string
		shape LabelMeShape
		want  [4]float64
	}{
		{"rectangle", rect("a", 10, 10, 50, 60), [4]float64{10, 10, 50, 60}},
		{"rectangle reversed corners", rect("a", 50, 60, 10, 10), [4]float64{10, 10, 50, 60}},
		{
			"polygon",
			LabelMeShape{Label: "a", ShapeType: "polygon",
				Points: [][2]float64{{20, 5}, {40, 30}, {10, 25}, {30, 12}}},
			[4]float64{10, 5, 40, 30},
		},
		{
			"missing shape type",
			LabelMeShape{Label: "a", Points: [][2]float64{{1, 2}, {3, 4}}},
			[4]float64{1, 2, 3, 4},
		},
		{
			"circle",
			LabelMeShape{Label: "a", ShapeType: "circle", Points: [][2]float64{{50, 50}, {53, 54}}},
			[4]float64{45, 45, 55, 55},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ShapeToAnnotation(tt.shape)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Coords != tt.want {
				t.Errorf("expected %v, got %v", tt.want, a.Coords)
			}
			if a.Label != "a" {
				t.Errorf("expected label a, got %q", a.Label)
			}
		})
	}

	degenerate := map[string]LabelMeShape{
		"no points":    {Label: "a"},
		"single point": {Label: "a", Points: [][2]float64{{1, 1}}},
		"zero width":   rect("a", 10, 10, 10, 60),
		"zero height":  rect("a", 10, 10, 50, 10),
		"zero radius":  {Label: "a", ShapeType: "circle", Points: [][2]float64{{5, 5}, {5, 5}}},
		"collinear": {Label: "a", ShapeType: "polygon",
			Points: [][2]float64{{0, 5}, {10, 5}, {20, 5}}},
	}
	for name, s := range degenerate {
		t.Run(name, func(t *testing.T) {
			if _, err := ShapeToAnnotation(s); !errors.Is(err, ErrDegenerateBox) {
				t.Errorf("expected ErrDegenerateBox, got %v", err)
			}
		})
	}
}

func TestFromLabelMe(t *testing.T) {
	root := t.TempDir()
	imageDir := filepath.Join(root, "images")
	labelDir := filepath.Join(root, "labels")
	for _, d := range []string{imageDir, labelDir} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	// a: size from the document, b: no shapes, size from the image, c: no image, d: malformed,
	// e: one degenerate and one valid shape.
	writeTestImage(t, filepath.Join(imageDir, "a.png"), 100, 100)
	writeTestImage(t, filepath.Join(imageDir, "b.png"), 40, 30)
	writeTestImage(t, filepath.Join(imageDir, "d.png"), 10, 10)
	writeTestImage(t, filepath.Join(imageDir, "e.png"), 20, 20)
	writeLabelMe(t, filepath.Join(labelDir, "a.json"), LabelMeDocument{
		ImageWidth: 200, ImageHeight: 100,
		Shapes: []LabelMeShape{rect("cat", 10, 10, 50, 60), rect("dog", 1, 2, 3, 4)},
	})
	writeLabelMe(t, filepath.Join(labelDir, "b.json"), LabelMeDocument{})
	writeLabelMe(t, filepath.Join(labelDir, "c.json"), LabelMeDocument{
		Shapes: []LabelMeShape{rect("cat", 1, 1, 2, 2)},
	})
	if err := os.WriteFile(filepath.Join(labelDir, "d.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeLabelMe(t, filepath.Join(labelDir, "e.json"), LabelMeDocument{
		Shapes: []LabelMeShape{
			{Label: "cat", Points: [][2]float64{{1, 1}}},
			rect("dog", 2, 2, 8, 8),
		},
	})
	// Not a label file.
	if err := os.WriteFile(filepath.Join(labelDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, skipped, err := FromLabelMe(labelDir, imageDir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(data) != 3 {
		t.Fatalf("expected 3 files, got %d", len(data))
	}
	for i, name := range []string{"a", "b", "e"} {
		if want := filepath.Join(imageDir, name+".png"); data[i].FilePath != want {
			t.Errorf("file %d: expected %s, got %s", i, want, data[i].FilePath)
		}
		if want := filepath.Join(labelDir, name+".json"); data[i].LabelPath != want {
			t.Errorf("file %d: expected label %s, got %s", i, want, data[i].LabelPath)
		}
	}

	if data[0].Width != 200 || data[0].Height != 100 {
		t.Errorf("expected the document size 200x100, got %dx%d", data[0].Width, data[0].Height)
	}
	if len(data[0].Annotations) != 2 || data[0].Annotations[1].Label != "dog" {
		t.Errorf("unexpected annotations %+v", data[0].Annotations)
	}
	if data[1].Width != 40 || data[1].Height != 30 {
		t.Errorf("expected the image size 40x30, got %dx%d", data[1].Width, data[1].Height)
	}
	if len(data[1].Annotations) != 0 {
		t.Errorf("expected no annotations, got %d", len(data[1].Annotations))
	}
	if len(data[2].Annotations) != 1 || data[2].Annotations[0].Shape != 1 {
		t.Errorf("expected the second shape of e only, got %+v", data[2].Annotations)
	}

	if len(skipped) != 3 {
		t.Fatalf("expected 3 skipped, got %d: %v", len(skipped), skipped)
	}
	for i, want := range []error{ErrMissingImage, ErrMalformedDocument, ErrDegenerateBox} {
		if !errors.Is(skipped[i], want) {
			t.Errorf("skipped %d: expected %v, got %v", i, want, skipped[i])
		}
	}
	var recErr *RecordError
	if !errors.As(skipped[2], &recErr) || recErr.Shape != 0 {
		t.Errorf("expected a shape 0 RecordError, got %v", skipped[2])
	}

	t.Run("shared directory", func(t *testing.T) {
		dir := t.TempDir()
		writeTestImage(t, filepath.Join(dir, "x.png"), 10, 10)
		writeLabelMe(t, filepath.Join(dir, "x.json"), LabelMeDocument{
			Shapes: []LabelMeShape{rect("cat", 1, 1, 5, 5)},
		})
		data, skipped, err := FromLabelMe(dir, dir, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(data) != 1 || len(skipped) != 0 {
			t.Fatalf("expected 1 file and no skips, got %d and %v", len(data), skipped)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := FromLabelMe(filepath.Join(root, "nope"), imageDir, nil)
		if !errors.Is(err, ErrInputRoot) {
			t.Errorf("expected ErrInputRoot, got %v", err)
		}
	})
}

func TestFromLabelMeLogsSkippedFile(t *testing.T) {
	imageDir, labelDir := t.TempDir(), t.TempDir()
	orphan := filepath.Join(labelDir, "orphan.json")
	writeLabelMe(t, orphan, LabelMeDocument{Shapes: []LabelMeShape{rect("cat", 1, 1, 5, 5)}})

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	if _, _, err := FromLabelMe(labelDir, imageDir, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry map[string]any
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("invalid log line: %v", err)
		}
		if entry["msg"] == "skipping" {
			found = true
			if entry["file"] != orphan || entry["reason"] != "missing_image" {
				t.Errorf("unexpected log entry %v", entry)
			}
		}
	}
	if !found {
		t.Errorf("no skip was logged:\n%s", buf.String())
	}
}
