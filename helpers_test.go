package yoloprep

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// writeTestImage writes a width x height PNG with a gradient pattern to path.
func writeTestImage(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
}

// writeLabelMe writes doc as JSON to path.
func writeLabelMe(t *testing.T, path string, doc LabelMeDocument) {
	t.Helper()
	if doc.Shapes == nil {
		doc.Shapes = []LabelMeShape{}
	}
	enc, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal document: %v", err)
	}
	if err := os.WriteFile(path, enc, 0o644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
}

func rect(label string, x1, y1, x2, y2 float64) LabelMeShape {
	return LabelMeShape{Label: label, ShapeType: "rectangle", Points: [][2]float64{{x1, y1}, {x2, y2}}}
}

// newDataset creates an image and a label directory with n 100x100 images, each annotated with one
// rectangle labelled "cat" or "dog". Returns the image and label directories.
func newDataset(t *testing.T, n int) (string, string) {
	t.Helper()
	root := t.TempDir()
	imageDir := filepath.Join(root, "images")
	labelDir := filepath.Join(root, "labels_raw")
	for _, d := range []string{imageDir, labelDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", d, err)
		}
	}

	for i := 0; i < n; i++ {
		name := string(rune('a'+i/26)) + string(rune('a'+i%26))
		writeTestImage(t, filepath.Join(imageDir, name+".png"), 100, 100)
		label := "cat"
		if i%2 == 1 {
			label = "dog"
		}
		writeLabelMe(t, filepath.Join(labelDir, name+".json"), LabelMeDocument{
			ImagePath: name + ".png",
			Shapes:    []LabelMeShape{rect(label, 10, 10, 50, 60)},
		})
	}
	return imageDir, labelDir
}

// readFile returns the contents of path or fails the test.
func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(b)
}

// listDir returns the sorted file names in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
