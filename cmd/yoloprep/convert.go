package main

import (
	"github.com/spf13/cobra"

	"github.com/sensorable/yoloprep"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert LabelMe annotations to a split YOLO dataset",
	Long: `Convert LabelMe JSON annotations to YOLO label files and split the images
into train, val and test sets.

Each JSON document is matched to the image with the same base name. Rectangles
become boxes directly; polygons are reduced to their axis-aligned bounding box.
The output layout is

  <out>/images/{train,val,test}/*
  <out>/labels/{train,val,test}/*.txt
  <out>/data.yaml

Files that cannot be converted are skipped and listed in the report. Invalid
ratios, unreadable inputs or existing output (without --overwrite) abort the
run before anything is written.

Examples:
  yoloprep convert --images cat_image --labels cat_label --out data
  yoloprep convert --train-ratio 0.8 --val-ratio 0.1 --test-ratio 0.1 --seed 7
  yoloprep convert --map-labels "Cat=cat" --filter-labels cat,dog --overwrite`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cfgFile)
		if err != nil {
			return err
		}
		if err := bindFlags(v, cmd, convertFlagKeys); err != nil {
			return err
		}
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		report, err := yoloprep.Convert(cmd.Context(), cfg.ConvertOptions())
		if report != nil {
			if outErr := outputTo(cmd.OutOrStdout(), globalOutputFormat, report); outErr != nil &&
				err == nil {
				err = outErr
			}
		}
		return err
	},
}

// convertFlagKeys maps config keys to the convert command flags.
var convertFlagKeys = map[string]string{
	"images":          "images",
	"labels":          "labels",
	"out":             "out",
	"ratios.train":    "train-ratio",
	"ratios.val":      "val-ratio",
	"ratios.test":     "test-ratio",
	"seed":            "seed",
	"overwrite":       "overwrite",
	"classes":         "classes",
	"class_order":     "class-order",
	"map_labels":      "map-labels",
	"filter_labels":   "filter-labels",
	"min_bbox_width":  "min-bbox-width",
	"min_bbox_height": "min-bbox-height",
	"precision":       "precision",
	"copy_attempts":   "copy-attempts",
	"tfrecord":        "tfrecord",
	"num_shards":      "num-shards",
}

func init() {
	d := DefaultConfig()
	f := convertCmd.Flags()

	// Paths.
	f.String("images", d.Images, "the image input `dir`")
	f.String("labels", d.Labels, "the LabelMe JSON input `dir` (may equal --images)")
	f.String("out", d.Out, "the dataset output `dir`")

	// Split.
	f.Float64("train-ratio", d.Ratios.Train, "fraction of images in the training set")
	f.Float64("val-ratio", d.Ratios.Val, "fraction of images in the validation set")
	f.Float64("test-ratio", d.Ratios.Test, "fraction of images in the test set")
	f.Int64("seed", d.Seed, "random seed for the split")
	f.Bool("overwrite", d.Overwrite, "replace the output of a previous run")

	// Labels.
	f.StringSlice("classes", d.Classes, "fixed class order; other labels get the following ids")
	f.String("class-order", d.ClassOrder, "id order for labels not in --classes: first-seen or sorted")
	f.StringSlice("map-labels", d.MapLabels, "old=new label (sub-)string replacements")
	f.StringSlice("filter-labels", d.FilterLabels, "labels to keep after mapping (empty keeps all)")
	f.Float64("min-bbox-width", d.MinBboxWidth, "min. box width in `pixels`")
	f.Float64("min-bbox-height", d.MinBboxHeight, "min. box height in `pixels`")

	// Output.
	f.Int("precision", d.Precision, "decimals in label rows")
	f.Uint("copy-attempts", d.CopyAttempts, "attempts per image copy")
	f.Bool("tfrecord", d.TFRecord, "also write <subset>.tfrecord files and label_map.pbtxt")
	f.Int("num-shards", d.NumShards, "TFRecord shard files per subset")

	rootCmd.AddCommand(convertCmd)
}
