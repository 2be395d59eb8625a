package main

import (
	"github.com/spf13/cobra"

	"github.com/sensorable/yoloprep"
)

var renameOpts yoloprep.RenameOptions

var renameCmd = &cobra.Command{
	Use:   "rename <dir>",
	Short: "Rename images to sequential zero-padded numbers",
	Long: `Rename the images in a directory to sequential zero-padded numbers.

The final names are checked for conflicts first, then all files are renamed in
two steps through temporary names so that no file is overwritten.

Examples:
  yoloprep rename data/images/train --dry-run
  yoloprep rename cat_image --start 0 --padding 3
  yoloprep rename cat_image --start 100 --padding 4 --sort mtime --labels cat_label`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		renameOpts.Logger = logger
		plan, err := yoloprep.RenameImages(args[0], renameOpts)
		if err != nil {
			return err
		}
		if renameOpts.DryRun {
			logger.Info("dry run, nothing renamed", "files", len(plan))
		}
		return outputTo(cmd.OutOrStdout(), globalOutputFormat, plan)
	},
}

func init() {
	f := renameCmd.Flags()
	f.IntVar(&renameOpts.Start, "start", 0, "start index")
	f.IntVar(&renameOpts.Padding, "padding", 3, "zero padding width (3 -> 000)")
	f.StringVar(&renameOpts.SortBy, "sort", "name", "sort files by name or mtime")
	f.StringSliceVar(&renameOpts.Exts, "exts", yoloprep.DefaultImageExts, "extensions to include")
	f.StringVar(&renameOpts.LabelDir, "labels", "", "also rename matching LabelMe JSON files in `dir`")
	f.BoolVar(&renameOpts.DryRun, "dry-run", false, "show planned renames but do not perform them")
	f.BoolVar(&renameOpts.Force, "force", false, "rename even if the padding capacity is exceeded")

	rootCmd.AddCommand(renameCmd)
}
