package yoloprep

// YOLO specific functionality.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BoundingBox is a single YOLO label row. All coordinates are normalised to the image size.
type BoundingBox struct {
	ClassID int
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

// Corners converts the box back to absolute x1, y1, x2, y2 pixel coordinates for an image of the
// given size.
func (b BoundingBox) Corners(width, height int) [4]float64 {
	w, h := float64(width), float64(height)
	return [4]float64{
		(b.XCenter - b.Width/2) * w,
		(b.YCenter - b.Height/2) * h,
		(b.XCenter + b.Width/2) * w,
		(b.YCenter + b.Height/2) * h,
	}
}

// Format renders the box as "class x_center y_center width height" with precision decimals.
func (b BoundingBox) Format(precision int) string {
	return strconv.Itoa(b.ClassID) + " " +
		strconv.FormatFloat(b.XCenter, 'f', precision, 64) + " " +
		strconv.FormatFloat(b.YCenter, 'f', precision, 64) + " " +
		strconv.FormatFloat(b.Width, 'f', precision, 64) + " " +
		strconv.FormatFloat(b.Height, 'f', precision, 64)
}

// DatasetRecord pairs a source image with its label rows.
type DatasetRecord struct {
	ImagePath string        // The source image.
	LabelPath string        // The annotation document the boxes came from.
	Width     int           // Image width in pixels.
	Height    int           // Image height in pixels.
	Boxes     []BoundingBox // May be empty for background images.
}

// Name is the image base name without extension, which is also the label file name.
func (r DatasetRecord) Name() string {
	base := filepath.Base(r.ImagePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DatasetRecords is a list of records.
type DatasetRecords []DatasetRecord

// NumBoxes is the total number of boxes over all records.
func (records DatasetRecords) NumBoxes() int {
	n := 0
	for _, r := range records {
		n += len(r.Boxes)
	}
	return n
}

// Visible reports whether the box keeps a non-zero width and height when written with precision
// decimals.
func (b BoundingBox) Visible(precision int) bool {
	nonZero := func(v float64) bool {
		r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', precision, 64), 64)
		return err == nil && r > 0
	}
	return nonZero(b.Width) && nonZero(b.Height)
}

// NormalizeBox converts the pixel-space box of a to a BoundingBox for an image of the given size.
// The box is clipped to the image first; a box with no area inside the image fails with
// ErrDegenerateBox.
func NormalizeBox(a Annotation, width, height, classID int) (BoundingBox, error) {
	if width <= 0 || height <= 0 {
		return BoundingBox{}, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	w, h := float64(width), float64(height)

	clamp := func(v, max float64) float64 { return math.Min(math.Max(v, 0), max) }
	x1, y1 := clamp(a.Coords[0], w), clamp(a.Coords[1], h)
	x2, y2 := clamp(a.Coords[2], w), clamp(a.Coords[3], h)
	if x2 <= x1 || y2 <= y1 {
		return BoundingBox{}, fmt.Errorf("%w: (%g,%g)(%g,%g) has no area inside %dx%d",
			ErrDegenerateBox, a.Coords[0], a.Coords[1], a.Coords[2], a.Coords[3], width, height)
	}

	return BoundingBox{
		ClassID: classID,
		XCenter: (x1 + x2) / 2 / w,
		YCenter: (y1 + y2) / 2 / h,
		Width:   (x2 - x1) / w,
		Height:  (y2 - y1) / h,
	}, nil
}

// ToYOLO converts the intermediate representation to YOLO records. Class ids are taken from
// classes, which assigns new ids in file order and then annotation order.
//
// Annotations that cannot be normalised, or whose size rounds to zero at precision decimals (6 if
// zero), are skipped and reported; the record is kept. A frozen table that lacks a label is a hard
// error.
func (data AnnotatedFiles) ToYOLO(classes *ClassTable, precision int) (DatasetRecords, []error, error) {
	if precision <= 0 {
		precision = 6
	}
	records := make(DatasetRecords, 0, len(data))
	var skipped []error

	for _, f := range data {
		r := DatasetRecord{
			ImagePath: f.FilePath,
			LabelPath: f.LabelPath,
			Width:     f.Width,
			Height:    f.Height,
			Boxes:     make([]BoundingBox, 0, len(f.Annotations)),
		}
		for _, a := range f.Annotations {
			// Only labels of boxes that survive get an id.
			id, known := classes.Lookup(a.Label)
			box, err := NormalizeBox(a, f.Width, f.Height, id)
			if err == nil && !box.Visible(precision) {
				err = fmt.Errorf("%w: %gx%g pixels round to zero at %d decimals",
					ErrDegenerateBox, a.Width(), a.Height(), precision)
			}
			if err != nil {
				skipped = append(skipped, &RecordError{
					Kind: ErrDegenerateBox, Path: f.LabelPath, Shape: a.Shape, Err: err})
				continue
			}
			if !known {
				if box.ClassID, err = classes.ID(a.Label); err != nil {
					return nil, skipped, err
				}
			}
			r.Boxes = append(r.Boxes, box)
		}
		records = append(records, r)
	}

	return records, skipped, nil
}

// Descriptor is the data.yaml document read by the detector toolchain.
type Descriptor struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	Test  string   `yaml:"test"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// DescriptorFileName is the name of the descriptor file in the output root.
const DescriptorFileName = "data.yaml"

// incompleteMarker exists in the output root while a write is in progress or after one that
// skipped records.
const incompleteMarker = ".incomplete"

func markIncomplete(root string) error {
	marker := filepath.Join(root, incompleteMarker)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return fmt.Errorf("failed to create %q: %v", marker, err)
	}
	return nil
}

func markComplete(root string) error {
	if err := os.Remove(filepath.Join(root, incompleteMarker)); err != nil &&
		!errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// NewDescriptor returns the descriptor for a dataset rooted at root. The subset paths are relative
// to root.
func NewDescriptor(root string, classes *ClassTable) Descriptor {
	return Descriptor{
		Path:  filepath.ToSlash(filepath.Clean(root)),
		Train: "images/" + string(Train),
		Val:   "images/" + string(Val),
		Test:  "images/" + string(Test),
		NC:    classes.Len(),
		Names: classes.Names(),
	}
}

// WriteDescriptor writes d as YAML to path.
func WriteDescriptor(path string, d Descriptor) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}

// ReadDescriptor reads a descriptor written by WriteDescriptor.
func ReadDescriptor(path string) (Descriptor, error) {
	var d Descriptor
	enc, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	err = yaml.Unmarshal(enc, &d)
	return d, err
}

// WriteOptions configures WriteYOLO.
type WriteOptions struct {
	OutDir       string       // The output root.
	Overwrite    bool         // Replace the output of a previous run instead of failing.
	Precision    int          // Decimals in label rows; 6 if zero.
	CopyAttempts uint         // Attempts per image copy; 1 if zero.
	KeepMarker   bool         // Leave the .incomplete marker for the caller, which writes more.
	Logger       *slog.Logger // Nil uses slog.Default().
}

// WriteResult summarises a WriteYOLO call.
type WriteResult struct {
	Written map[Subset]int // Records written per subset.
	Boxes   int            // Label rows written.
}

// subsetDirs returns the image and label directories for all subsets.
func subsetDirs(root string) []string {
	dirs := make([]string, 0, 2*len(Subsets))
	for _, kind := range []string{"images", "labels"} {
		for _, s := range Subsets {
			dirs = append(dirs, filepath.Join(root, kind, string(s)))
		}
	}
	return dirs
}

// exportFiles returns the files besides the subset directories that a previous run may have left
// in root: the descriptor, TFRecord shards and the label map.
func exportFiles(root string) ([]string, error) {
	var files []string
	for _, name := range []string{DescriptorFileName, LabelMapFileName} {
		if _, err := os.Lstat(filepath.Join(root, name)); err == nil {
			files = append(files, filepath.Join(root, name))
		}
	}
	for _, s := range Subsets {
		shards, err := filepath.Glob(filepath.Join(root, string(s)+tfrecordExt+"*"))
		if err != nil {
			return nil, err
		}
		files = append(files, shards...)
	}
	return files, nil
}

// checkOutputDir fails with ErrDirectoryConflict if any of the subset directories holds data or a
// previous run's descriptor or TFRecord files exist.
func checkOutputDir(root string) error {
	var conflicts []string
	for _, dir := range subsetDirs(root) {
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: cannot inspect %q: %v", ErrDirectoryConflict, dir, err)
		}
		if len(entries) > 0 {
			conflicts = append(conflicts, dir)
		}
	}
	files, err := exportFiles(root)
	if err != nil {
		return fmt.Errorf("%w: cannot inspect %q: %v", ErrDirectoryConflict, root, err)
	}
	conflicts = append(conflicts, files...)
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: %s already contain(s) output of a previous run; set overwrite to"+
			" replace it", ErrDirectoryConflict, strings.Join(conflicts, ", "))
	}
	return nil
}

// WriteYOLO freezes classes and materialises the datasets below opts.OutDir: images are copied
// unchanged to images/<subset>/ and labels written to labels/<subset>/<name>.txt, followed by the
// data.yaml descriptor.
//
// Existing output is an ErrDirectoryConflict unless opts.Overwrite is set, in which case the
// subset directories are emptied first. Records whose files cannot be written are skipped and
// returned as ErrIO errors.
func WriteYOLO(ctx context.Context, datasets map[Subset]DatasetRecords, classes *ClassTable,
	opts WriteOptions) (WriteResult, []error, error) {

	logger := orDefault(opts.Logger)
	precision := opts.Precision
	if precision <= 0 {
		precision = 6
	}
	result := WriteResult{Written: make(map[Subset]int, len(Subsets))}

	classes.Freeze()

	// Check for and clear the output of a previous run before writing anything.
	root := opts.OutDir
	if opts.Overwrite {
		for _, dir := range subsetDirs(root) {
			if err := os.RemoveAll(dir); err != nil {
				return result, nil, fmt.Errorf("failed to clear %q: %v", dir, err)
			}
		}
		files, err := exportFiles(root)
		if err != nil {
			return result, nil, fmt.Errorf("failed to list the previous output: %v", err)
		}
		for _, f := range files {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				return result, nil, fmt.Errorf("failed to remove %q: %v", f, err)
			}
		}
	} else if err := checkOutputDir(root); err != nil {
		return result, nil, err
	}
	if _, err := os.Stat(filepath.Join(root, incompleteMarker)); err == nil {
		logger.Warn("the previous run did not complete cleanly", "dir", root)
	}

	for _, dir := range subsetDirs(root) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, nil, fmt.Errorf("failed to create %q: %v", dir, err)
		}
	}
	if err := markIncomplete(root); err != nil {
		return result, nil, err
	}

	var skipped []error
	for _, s := range Subsets {
		imageDir := filepath.Join(root, "images", string(s))
		labelDir := filepath.Join(root, "labels", string(s))

		for _, r := range datasets[s] {
			if err := ctx.Err(); err != nil {
				logger.Warn("output is incomplete", "dir", root)
				return result, skipped, err
			}

			if err := writeRecord(ctx, r, imageDir, labelDir, precision, opts.CopyAttempts); err != nil {
				err = newRecordError(ErrIO, r.ImagePath, err)
				logger.Warn("skipping", "file", r.ImagePath, "reason", Reason(err), "error", err)
				skipped = append(skipped, err)
				continue
			}
			result.Written[s]++
			result.Boxes += len(r.Boxes)
		}
	}

	descriptorPath := filepath.Join(root, DescriptorFileName)
	if err := WriteDescriptor(descriptorPath, NewDescriptor(root, classes)); err != nil {
		return result, skipped, err
	}

	switch {
	case len(skipped) > 0:
		logger.Warn("output is incomplete, some records could not be written",
			"dir", root, "skipped", len(skipped))
	case !opts.KeepMarker:
		if err := markComplete(root); err != nil {
			return result, skipped, err
		}
	}

	return result, skipped, nil
}

// writeRecord copies the image of r to imageDir and writes its label file to labelDir. Nothing is
// left behind on failure.
func writeRecord(ctx context.Context, r DatasetRecord, imageDir, labelDir string, precision int,
	attempts uint) error {

	imageOut := filepath.Join(imageDir, filepath.Base(r.ImagePath))
	if err := copyFile(ctx, r.ImagePath, imageOut, attempts); err != nil {
		_ = os.Remove(imageOut)
		return err
	}

	var buf bytes.Buffer
	for _, b := range r.Boxes {
		buf.WriteString(b.Format(precision))
		buf.WriteByte('\n')
	}
	labelOut := filepath.Join(labelDir, r.Name()+".txt")
	if err := os.WriteFile(labelOut, buf.Bytes(), 0o644); err != nil {
		_ = os.Remove(imageOut)
		_ = os.Remove(labelOut)
		return err
	}

	return nil
}
