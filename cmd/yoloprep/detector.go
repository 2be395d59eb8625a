package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensorable/yoloprep"
)

var (
	trainOpts   = yoloprep.DefaultTrainOptions()
	valOpts     = yoloprep.DefaultValOptions()
	predictOpts = yoloprep.DefaultPredictOptions()
	dryRun      bool
)

// runDetector runs the detector executable from the configuration with args, or prints the command
// line when --dry-run is set.
func runDetector(cmd *cobra.Command, args []string) error {
	v, err := newViper(cfgFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), cfg.DetectorBin, args)
		return nil
	}
	return yoloprep.RunDetector(cmd.Context(), cfg.DetectorBin, args, cmd.OutOrStdout(),
		cmd.ErrOrStderr(), logger)
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a detector on the converted dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDetector(cmd, yoloprep.TrainArgs(trainOpts))
	},
}

var valCmd = &cobra.Command{
	Use:   "val",
	Short: "Evaluate trained weights on a subset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDetector(cmd, yoloprep.ValArgs(valOpts))
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run trained weights on images and save the visualised predictions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDetector(cmd, yoloprep.PredictArgs(predictOpts))
	},
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainOpts.Data, "data", trainOpts.Data, "the dataset descriptor")
	f.StringVar(&trainOpts.Model, "model", trainOpts.Model, "initial weights or model config")
	f.IntVar(&trainOpts.Epochs, "epochs", trainOpts.Epochs, "number of epochs")
	f.IntVar(&trainOpts.ImgSize, "imgsz", trainOpts.ImgSize, "input image size")
	f.IntVar(&trainOpts.Batch, "batch", trainOpts.Batch, "batch size")
	f.StringVar(&trainOpts.Project, "project", trainOpts.Project, "output project directory")
	f.StringVar(&trainOpts.Name, "name", trainOpts.Name, "run name within the project")

	f = valCmd.Flags()
	f.StringVar(&valOpts.Data, "data", valOpts.Data, "the dataset descriptor")
	f.StringVar(&valOpts.Weights, "weights", valOpts.Weights, "the trained weights")
	f.StringVar(&valOpts.Split, "split", valOpts.Split, "the subset to evaluate: val or test")
	f.IntVar(&valOpts.ImgSize, "imgsz", valOpts.ImgSize, "input image size")
	f.StringVar(&valOpts.Project, "project", valOpts.Project, "output project directory")
	f.StringVar(&valOpts.Name, "name", valOpts.Name, "run name within the project")

	f = predictCmd.Flags()
	f.StringVar(&predictOpts.Weights, "weights", predictOpts.Weights, "the trained weights")
	f.StringVar(&predictOpts.Source, "source", predictOpts.Source, "image file or directory")
	f.IntVar(&predictOpts.ImgSize, "imgsz", predictOpts.ImgSize, "input image size")
	f.StringVar(&predictOpts.Project, "project", predictOpts.Project, "output project directory")
	f.StringVar(&predictOpts.Name, "name", predictOpts.Name, "run name within the project")

	for _, c := range []*cobra.Command{trainCmd, valCmd, predictCmd} {
		c.Flags().BoolVar(&dryRun, "dry-run", false, "print the detector command line only")
		rootCmd.AddCommand(c)
	}
}
