package yoloprep

// Invocation of the external detector toolchain (the Ultralytics "yolo" command line).

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
)

// DefaultDetectorBin is the detector command line executable.
const DefaultDetectorBin = "yolo"

// TrainOptions configures a training run.
type TrainOptions struct {
	Data    string // The data.yaml descriptor.
	Model   string // Initial weights or model config, e.g. yolov8n.pt.
	Epochs  int
	ImgSize int
	Batch   int
	Project string
	Name    string
}

// DefaultTrainOptions returns the options of a short training run on the default dataset layout.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Data:    filepath.Join("data", DescriptorFileName),
		Model:   "yolov8n.pt",
		Epochs:  5,
		ImgSize: 640,
		Batch:   16,
		Project: "yolo_train",
		Name:    "exp",
	}
}

// ValOptions configures an evaluation run.
type ValOptions struct {
	Data    string
	Weights string
	Split   string // The subset to evaluate, e.g. "val" or "test".
	ImgSize int
	Project string
	Name    string
}

// DefaultWeights is where a default training run leaves its best weights.
var DefaultWeights = filepath.Join("yolo_train", "exp", "weights", "best.pt")

// DefaultValOptions returns the options for evaluating the default training run.
func DefaultValOptions() ValOptions {
	return ValOptions{
		Data:    filepath.Join("data", DescriptorFileName),
		Weights: DefaultWeights,
		Split:   string(Val),
		ImgSize: 640,
		Project: "yolo_eval",
		Name:    "exp",
	}
}

// PredictOptions configures an inference run.
type PredictOptions struct {
	Weights string
	Source  string // Image file or directory.
	ImgSize int
	Project string
	Name    string
}

// DefaultPredictOptions returns the options for running the default weights on the test images.
func DefaultPredictOptions() PredictOptions {
	return PredictOptions{
		Weights: DefaultWeights,
		Source:  filepath.Join("data", "images", string(Test)),
		ImgSize: 640,
		Project: "yolo_infer",
		Name:    "exp",
	}
}

// TrainArgs returns the detector arguments for a training run.
func TrainArgs(o TrainOptions) []string {
	return []string{"detect", "train",
		"data=" + o.Data,
		"model=" + o.Model,
		"epochs=" + strconv.Itoa(o.Epochs),
		"imgsz=" + strconv.Itoa(o.ImgSize),
		"batch=" + strconv.Itoa(o.Batch),
		"project=" + o.Project,
		"name=" + o.Name,
		"exist_ok=True",
	}
}

// ValArgs returns the detector arguments for an evaluation run with saved visualisations.
func ValArgs(o ValOptions) []string {
	return []string{"detect", "val",
		"model=" + o.Weights,
		"data=" + o.Data,
		"split=" + o.Split,
		"imgsz=" + strconv.Itoa(o.ImgSize),
		"save_json=True",
		"plots=True",
		"project=" + o.Project,
		"name=" + o.Name,
		"exist_ok=True",
	}
}

// PredictArgs returns the detector arguments for an inference run with saved visualisations.
func PredictArgs(o PredictOptions) []string {
	return []string{"detect", "predict",
		"model=" + o.Weights,
		"source=" + o.Source,
		"imgsz=" + strconv.Itoa(o.ImgSize),
		"save=True",
		"project=" + o.Project,
		"name=" + o.Name,
		"exist_ok=True",
	}
}

// RunDetector runs bin with args, streaming its output to stdout and stderr. The process is killed
// when ctx is done.
func RunDetector(ctx context.Context, bin string, args []string, stdout, stderr io.Writer,
	logger *slog.Logger) error {

	if bin == "" {
		bin = DefaultDetectorBin
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("detector executable %q not found: %w", bin, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	orDefault(logger).Info("running detector", "cmd", path, "args", args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v failed: %w", bin, args, err)
	}
	return nil
}
