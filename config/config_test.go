package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "glyphnet.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Paths.InputPath != "/kqi/input/images" {
		t.Errorf("InputPath = %q, expected /kqi/input/images", cfg.Paths.InputPath)
	}
	if cfg.Training.Epochs != 100 || cfg.Training.BatchSize != 32 {
		t.Errorf("Epochs/BatchSize = %d/%d, expected 100/32", cfg.Training.Epochs, cfg.Training.BatchSize)
	}
	if cfg.Training.LearningRate != 0.001 {
		t.Errorf("LearningRate = %g, expected 0.001", cfg.Training.LearningRate)
	}
	if cfg.Training.TestFraction != 0.33 {
		t.Errorf("TestFraction = %g, expected 0.33", cfg.Training.TestFraction)
	}
	if cfg.Augmentation.MaxRotateDeg != 20 || cfg.Augmentation.MaxShiftFrac != 0.1 {
		t.Errorf("Augmentation = %+v, expected 20 deg / 0.1 shift", cfg.Augmentation)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Run("EmptyPathUsesDefaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Training.Epochs != 100 {
			t.Errorf("Epochs = %d, expected default 100", cfg.Training.Epochs)
		}
	})

	t.Run("FileOverridesDefaults", func(t *testing.T) {
		path := writeConfig(t, `
[paths]
input_path = "/data/chars"

[training]
input_type = "chinese"
epochs = 5
seed = 17

[logging]
format = "json"
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Paths.InputPath != "/data/chars" {
			t.Errorf("InputPath = %q, expected /data/chars", cfg.Paths.InputPath)
		}
		if cfg.Training.InputType != "chinese" || cfg.Training.Epochs != 5 || cfg.Training.Seed != 17 {
			t.Errorf("Training section not applied: %+v", cfg.Training)
		}
		if cfg.Logging.Format != "json" {
			t.Errorf("Format = %q, expected json", cfg.Logging.Format)
		}
		// untouched fields keep their defaults
		if cfg.Training.BatchSize != 32 {
			t.Errorf("BatchSize = %d, expected default 32", cfg.Training.BatchSize)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
			t.Error("Expected error for explicitly named missing file")
		}
	})

	t.Run("MalformedTOML", func(t *testing.T) {
		path := writeConfig(t, "[training\nepochs = 5")
		if _, err := Load(path); err == nil {
			t.Error("Expected error for malformed TOML")
		}
	})

	t.Run("InvalidValuesRejected", func(t *testing.T) {
		path := writeConfig(t, "[training]\nepochs = -1\n")
		if _, err := Load(path); err == nil {
			t.Error("Expected validation error for negative epochs")
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"EmptyInputPath", func(c *Config) { c.Paths.InputPath = "" }, "input_path"},
		{"EmptyOutputPath", func(c *Config) { c.Paths.OutputPath = "" }, "output_path"},
		{"EmptyLogPath", func(c *Config) { c.Paths.LogPath = "" }, "log_path"},
		{"EmptyInputType", func(c *Config) { c.Training.InputType = "" }, "input_type"},
		{"ZeroBatch", func(c *Config) { c.Training.BatchSize = 0 }, "batch_size"},
		{"ZeroLearningRate", func(c *Config) { c.Training.LearningRate = 0 }, "learning_rate"},
		{"NegativePatience", func(c *Config) { c.Training.Patience = -1 }, "patience"},
		{"TestFractionTooHigh", func(c *Config) { c.Training.TestFraction = 1 }, "test_fraction"},
		{"NegativeWorkers", func(c *Config) { c.Training.Workers = -2 }, "workers"},
		{"NegativeRotation", func(c *Config) { c.Augmentation.MaxRotateDeg = -5 }, "max_rotate_deg"},
		{"ShiftTooLarge", func(c *Config) { c.Augmentation.MaxShiftFrac = 1 }, "max_shift_frac"},
		{"UnknownFormat", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"UnknownLevel", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
