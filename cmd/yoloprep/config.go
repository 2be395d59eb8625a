package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/sensorable/yoloprep"
)

// Config holds the settings shared by the subcommands. Values are layered: defaults, then the
// config file, then YOLOPREP_* environment variables, then command line flags.
type Config struct {
	Images        string          `mapstructure:"images" yaml:"images"`
	Labels        string          `mapstructure:"labels" yaml:"labels"`
	Out           string          `mapstructure:"out" yaml:"out"`
	Ratios        yoloprep.Ratios `mapstructure:"ratios" yaml:"ratios"`
	Seed          int64           `mapstructure:"seed" yaml:"seed"`
	Overwrite     bool            `mapstructure:"overwrite" yaml:"overwrite"`
	Classes       []string        `mapstructure:"classes" yaml:"classes"`
	ClassOrder    string          `mapstructure:"class_order" yaml:"class_order"`
	MapLabels     []string        `mapstructure:"map_labels" yaml:"map_labels"`
	FilterLabels  []string        `mapstructure:"filter_labels" yaml:"filter_labels"`
	MinBboxWidth  float64         `mapstructure:"min_bbox_width" yaml:"min_bbox_width"`
	MinBboxHeight float64         `mapstructure:"min_bbox_height" yaml:"min_bbox_height"`
	Precision     int             `mapstructure:"precision" yaml:"precision"`
	CopyAttempts  uint            `mapstructure:"copy_attempts" yaml:"copy_attempts"`
	TFRecord      bool            `mapstructure:"tfrecord" yaml:"tfrecord"`
	NumShards     int             `mapstructure:"num_shards" yaml:"num_shards"`
	DetectorBin   string          `mapstructure:"detector_bin" yaml:"detector_bin"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Images:       "images",
		Labels:       "labels_raw",
		Out:          "data",
		Ratios:       yoloprep.DefaultRatios,
		Seed:         42,
		Classes:      []string{},
		ClassOrder:   string(yoloprep.ClassOrderFirstSeen),
		MapLabels:    []string{},
		FilterLabels: []string{},
		Precision:    6,
		CopyAttempts: 3,
		NumShards:    1,
		DetectorBin:  yoloprep.DefaultDetectorBin,
	}
}

// configFileName is the config file base name searched for when --config is not given.
const configFileName = "yoloprep"

// newViper returns a viper instance with the defaults, the config file and the environment loaded.
// A missing config file is not an error unless cfgFile names it explicitly.
func newViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("images", d.Images)
	v.SetDefault("labels", d.Labels)
	v.SetDefault("out", d.Out)
	v.SetDefault("ratios.train", d.Ratios.Train)
	v.SetDefault("ratios.val", d.Ratios.Val)
	v.SetDefault("ratios.test", d.Ratios.Test)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("overwrite", d.Overwrite)
	v.SetDefault("classes", d.Classes)
	v.SetDefault("class_order", d.ClassOrder)
	v.SetDefault("map_labels", d.MapLabels)
	v.SetDefault("filter_labels", d.FilterLabels)
	v.SetDefault("min_bbox_width", d.MinBboxWidth)
	v.SetDefault("min_bbox_height", d.MinBboxHeight)
	v.SetDefault("precision", d.Precision)
	v.SetDefault("copy_attempts", d.CopyAttempts)
	v.SetDefault("tfrecord", d.TFRecord)
	v.SetDefault("num_shards", d.NumShards)
	v.SetDefault("detector_bin", d.DetectorBin)

	// Environment variables with YOLOPREP_ prefix, e.g. YOLOPREP_RATIOS_TRAIN.
	v.SetEnvPrefix("YOLOPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.yoloprep")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return v, nil
}

// bindFlags binds the named command flags to config keys. Only flags set on the command line
// override the config file.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keysToFlags map[string]string) error {
	for key, name := range keysToFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig unmarshals the layered settings.
func loadConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings used by the convert command.
func (c *Config) Validate() error {
	if err := c.Ratios.Validate(); err != nil {
		return err
	}
	if c.Images == "" || c.Labels == "" {
		return errors.New("missing image or label input directory")
	}
	if c.Out == "" {
		return errors.New("missing output directory")
	}
	if filepath.Clean(c.Out) == filepath.Clean(c.Images) ||
		filepath.Clean(c.Out) == filepath.Clean(c.Labels) {
		return errors.New("the input and output directories cannot be identical")
	}
	switch yoloprep.ClassOrder(c.ClassOrder) {
	case yoloprep.ClassOrderFirstSeen, yoloprep.ClassOrderSorted:
	default:
		return fmt.Errorf("unknown class order %q", c.ClassOrder)
	}
	if c.Precision < 1 || c.Precision > 17 {
		return fmt.Errorf("invalid precision %d, must be in [1, 17]", c.Precision)
	}
	if c.MinBboxWidth < 0 || c.MinBboxHeight < 0 {
		return errors.New("invalid minimum bounding box size")
	}
	return nil
}

// ConvertOptions maps the settings to the library options.
func (c *Config) ConvertOptions() yoloprep.ConvertOptions {
	return yoloprep.ConvertOptions{
		ImageDir:      filepath.Clean(c.Images),
		LabelDir:      filepath.Clean(c.Labels),
		OutDir:        filepath.Clean(c.Out),
		Ratios:        c.Ratios,
		Seed:          c.Seed,
		Overwrite:     c.Overwrite,
		Classes:       c.Classes,
		ClassOrder:    yoloprep.ClassOrder(c.ClassOrder),
		LabelMappings: c.MapLabels,
		FilterLabels:  c.FilterLabels,
		MinBboxWidth:  c.MinBboxWidth,
		MinBboxHeight: c.MinBboxHeight,
		Precision:     c.Precision,
		CopyAttempts:  c.CopyAttempts,
		TFRecord:      c.TFRecord,
		NumShards:     c.NumShards,
		Logger:        logger,
	}
}

// WriteDefaultConfig writes the default configuration to path. An existing file is only replaced
// if force is set.
func WriteDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists", path)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# yoloprep configuration
# Every key can also be set as an environment variable, e.g. YOLOPREP_RATIOS_TRAIN=0.8,
# or overridden by the matching command line flag.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFileName + ".yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := WriteDefaultConfig(path, configInitForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cfgFile)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		return outputTo(cmd.OutOrStdout(), globalOutputFormat, cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "replace an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
