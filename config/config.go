// Package config loads and validates training run configuration. Values
// come from an optional TOML file with command-line flags layered on top.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Paths contains input and output directory configuration.
type Paths struct {
	InputPath  string `toml:"input_path"`
	OutputPath string `toml:"output_path"`
	LogPath    string `toml:"log_path"`
}

// Training contains hyperparameters for the training run.
type Training struct {
	InputType    string  `toml:"input_type"`
	Epochs       int     `toml:"epochs"`
	BatchSize    int     `toml:"batch_size"`
	LearningRate float64 `toml:"learning_rate"`
	Patience     int     `toml:"patience"`
	TestFraction float64 `toml:"test_fraction"`
	Seed         int64   `toml:"seed"`
	Workers      int     `toml:"workers"` // 0 means one per CPU core
}

// Augmentation contains the random perturbations applied to training batches.
type Augmentation struct {
	MaxRotateDeg float64 `toml:"max_rotate_deg"`
	MaxShiftFrac float64 `toml:"max_shift_frac"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"` // "console" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// Config encapsulates all configuration values for a training run.
type Config struct {
	Paths        Paths        `toml:"paths"`
	Training     Training     `toml:"training"`
	Augmentation Augmentation `toml:"augmentation"`
	Logging      Logging      `toml:"logging"`
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputPath:  defaultInputPath,
			OutputPath: defaultOutputPath,
			LogPath:    defaultLogPath,
		},
		Training: Training{
			InputType:    defaultInputType,
			Epochs:       defaultEpochs,
			BatchSize:    defaultBatchSize,
			LearningRate: defaultLearningRate,
			Patience:     defaultPatience,
			TestFraction: defaultTestFraction,
		},
		Augmentation: Augmentation{
			MaxRotateDeg: defaultMaxRotateDeg,
			MaxShiftFrac: defaultMaxShiftFrac,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// Load parses and validates a configuration file layered over Default.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTraining(); err != nil {
		return err
	}
	if err := c.validateAugmentation(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.InputPath == "" {
		return errors.New("paths.input_path must be set")
	}
	if c.Paths.OutputPath == "" {
		return errors.New("paths.output_path must be set")
	}
	if c.Paths.LogPath == "" {
		return errors.New("paths.log_path must be set")
	}
	return nil
}

func (c *Config) validateTraining() error {
	if c.Training.InputType == "" {
		return errors.New("training.input_type must be set")
	}
	if c.Training.Epochs <= 0 {
		return fmt.Errorf("training.epochs must be positive, got %d", c.Training.Epochs)
	}
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("training.batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be positive, got %g", c.Training.LearningRate)
	}
	if c.Training.Patience < 0 {
		return fmt.Errorf("training.patience must not be negative, got %d", c.Training.Patience)
	}
	if c.Training.TestFraction <= 0 || c.Training.TestFraction >= 1 {
		return fmt.Errorf("training.test_fraction must be in (0, 1), got %g", c.Training.TestFraction)
	}
	if c.Training.Workers < 0 {
		return fmt.Errorf("training.workers must not be negative, got %d", c.Training.Workers)
	}
	return nil
}

func (c *Config) validateAugmentation() error {
	if c.Augmentation.MaxRotateDeg < 0 {
		return errors.New("augmentation.max_rotate_deg must not be negative")
	}
	if c.Augmentation.MaxShiftFrac < 0 || c.Augmentation.MaxShiftFrac >= 1 {
		return errors.New("augmentation.max_shift_frac must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
