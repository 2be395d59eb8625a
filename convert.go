package yoloprep

// The end-to-end LabelMe to YOLO conversion.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
)

// ConvertOptions configures Convert.
type ConvertOptions struct {
	ImageDir string // Input images.
	LabelDir string // Input LabelMe documents; may equal ImageDir.
	OutDir   string // Output root.

	Ratios    Ratios
	Seed      int64
	Overwrite bool

	Classes    []string   // Optional pre-seeded class order.
	ClassOrder ClassOrder // How ids are assigned to labels not in Classes.

	LabelMappings []string // old=new label substring replacements.
	FilterLabels  []string // Labels to keep; empty keeps all.
	MinBboxWidth  float64  // Minimum box width in pixels.
	MinBboxHeight float64  // Minimum box height in pixels.

	Precision    int
	CopyAttempts uint

	TFRecord  bool // Also write <subset>.tfrecord files and a label map.
	NumShards int

	Logger *slog.Logger
}

// Report summarises a conversion run.
type Report struct {
	ImagesProcessed int               `json:"images_processed" yaml:"images_processed"`
	BoxesEmitted    int               `json:"boxes_emitted" yaml:"boxes_emitted"`
	Skipped         int               `json:"skipped" yaml:"skipped"`
	SkippedByReason map[string]int    `json:"skipped_by_reason" yaml:"skipped_by_reason"`
	SkippedFiles    []string          `json:"skipped_files,omitempty" yaml:"skipped_files,omitempty"`
	Subsets         map[Subset]int    `json:"subsets" yaml:"subsets"`
	Classes         []string          `json:"classes" yaml:"classes"`
	LabelsMapped    int               `json:"labels_mapped,omitempty" yaml:"labels_mapped,omitempty"`
	LabelsFiltered  int               `json:"labels_filtered,omitempty" yaml:"labels_filtered,omitempty"`
	Descriptor      string            `json:"descriptor" yaml:"descriptor"`
	TFRecords       map[Subset]string `json:"tfrecords,omitempty" yaml:"tfrecords,omitempty"`
}

func (r *Report) addSkipped(errs []error) {
	for _, err := range errs {
		r.Skipped++
		r.SkippedByReason[Reason(err)]++
		r.SkippedFiles = append(r.SkippedFiles, err.Error())
	}
}

// checkInputDir fails with ErrInputRoot unless path is a readable directory.
func checkInputDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %q is not a directory", ErrInputRoot, path)
	}
	return nil
}

// Convert reads the LabelMe dataset, converts it to YOLO labels, splits it and writes it to
// opts.OutDir.
//
// Configuration problems (invalid ratios, unreadable inputs, existing output) abort before anything
// is written. Problems with individual files are logged, counted in the report and skipped.
func Convert(ctx context.Context, opts ConvertOptions) (*Report, error) {
	logger := orDefault(opts.Logger)

	if err := opts.Ratios.Validate(); err != nil {
		return nil, err
	}
	for _, dir := range []string{opts.ImageDir, opts.LabelDir} {
		if err := checkInputDir(dir); err != nil {
			return nil, err
		}
	}
	if opts.OutDir == "" {
		return nil, errors.New("missing output directory")
	}
	if !opts.Overwrite {
		if err := checkOutputDir(opts.OutDir); err != nil {
			return nil, err
		}
	}

	report := &Report{SkippedByReason: make(map[string]int), Subsets: make(map[Subset]int)}

	// Normalise.
	data, skipped, err := FromLabelMe(opts.LabelDir, opts.ImageDir, logger)
	if err != nil {
		return nil, err
	}
	report.addSkipped(skipped)

	if report.LabelsMapped, err = data.MapLabels(opts.LabelMappings); err != nil {
		return nil, err
	}
	if report.LabelsMapped > 0 {
		logger.Info("label mappings applied", "changed", report.LabelsMapped)
	}
	report.LabelsFiltered = data.Filter(opts.FilterLabels, opts.MinBboxWidth, opts.MinBboxHeight)
	if report.LabelsFiltered > 0 {
		logger.Info("labels filtered out", "count", report.LabelsFiltered)
	}

	classes := NewClassTable(opts.Classes...)
	switch opts.ClassOrder {
	case "", ClassOrderFirstSeen:
	case ClassOrderSorted:
		if err := classes.seedSorted(data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown class order %q", opts.ClassOrder)
	}

	records, skipped, err := data.ToYOLO(classes, opts.Precision)
	if err != nil {
		return nil, err
	}
	report.addSkipped(skipped)
	report.ImagesProcessed = len(records)

	// Split.
	datasets, err := records.Split(opts.Ratios, rand.New(rand.NewSource(opts.Seed)))
	if err != nil {
		return nil, err
	}

	// Materialise.
	written, skipped, err := WriteYOLO(ctx, datasets, classes, WriteOptions{
		OutDir:       opts.OutDir,
		Overwrite:    opts.Overwrite,
		Precision:    opts.Precision,
		CopyAttempts: opts.CopyAttempts,
		KeepMarker:   opts.TFRecord,
		Logger:       logger,
	})
	report.addSkipped(skipped)
	if err != nil {
		return report, err
	}
	incomplete := len(skipped) > 0
	report.Subsets = written.Written
	report.BoxesEmitted = written.Boxes
	report.Classes = classes.Names()
	report.Descriptor = filepath.Join(opts.OutDir, DescriptorFileName)

	// The .incomplete marker stays until the export has finished as well.
	if opts.TFRecord {
		exportSkipped := 0
		report.TFRecords = make(map[Subset]string, len(Subsets))
		for _, s := range Subsets {
			path := filepath.Join(opts.OutDir, string(s)+tfrecordExt)
			skipped, err := WriteTFRecord(path, datasets[s], classes, opts.NumShards, logger)
			report.addSkipped(skipped)
			exportSkipped += len(skipped)
			if err != nil {
				return report, err
			}
			report.TFRecords[s] = path
		}
		if err := WriteTFRecordLabelMap(filepath.Join(opts.OutDir, LabelMapFileName), classes); err != nil {
			return report, err
		}
		if !incomplete && exportSkipped == 0 {
			if err := markComplete(opts.OutDir); err != nil {
				return report, err
			}
		}
	}

	logger.Info("conversion done",
		"images", report.ImagesProcessed,
		"boxes", report.BoxesEmitted,
		"skipped", report.Skipped,
		string(Train), report.Subsets[Train],
		string(Val), report.Subsets[Val],
		string(Test), report.Subsets[Test])

	return report, nil
}
