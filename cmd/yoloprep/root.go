package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "yoloprep",
	Short: "Prepare LabelMe annotations as a YOLO detection dataset",
	Long: `yoloprep converts LabelMe JSON annotations into YOLO label files, splits the
images into train/val/test sets and writes the data.yaml descriptor read by the
detector toolchain.

It also renames image folders to sequential numbers and runs the external
"yolo" command line for training, evaluation and inference.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setOutputFormat(outputFormat); err != nil {
			return err
		}
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./yoloprep.yaml or ~/.yoloprep/yoloprep.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "report format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	rootCmd.AddCommand(versionCmd)
}
