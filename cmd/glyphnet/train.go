package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/klauspost/cpuid/v2"
	"github.com/spf13/cobra"

	"glyphnet/config"
	"glyphnet/engine"
	"glyphnet/layers"
	"glyphnet/logging"
	"glyphnet/optimizer"
	"glyphnet/runhistory"
	"glyphnet/tblog"
	"glyphnet/training"
	"glyphnet/vision/augment"
	"glyphnet/vision/dataset"
	"glyphnet/vision/preprocessing"
)

const (
	lockFileName       = ".glyphnet.lock"
	checkpointFileName = "params.json"
	confusionFileName  = "confusion_matrix.csv"
	historyFileName    = "runs.db"
)

func newTrainCommand() *cobra.Command {
	var configFlag string
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a classifier on a directory tree of labeled images",
		Long: `Train loads every image under --input_path, labels each one according to
--input_type, holds out a test fraction, and trains a convolutional
classifier on the remainder. The best checkpoint, the confusion matrix
and the event logs land under --output_path and --log_path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runTraining(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	flags.String("input_path", defaults.Paths.InputPath, "Directory tree holding the labeled images")
	flags.String("output_path", defaults.Paths.OutputPath, "Directory for checkpoint and confusion matrix")
	flags.String("log_path", defaults.Paths.LogPath, "Directory for TensorBoard event logs")
	flags.String("input_type", defaults.Training.InputType, "Labeling scheme: mnist (parent directory) or chinese (filename suffix)")
	flags.Int("epochs", defaults.Training.Epochs, "Maximum training epochs")
	flags.Int("batch_size", defaults.Training.BatchSize, "Samples per training batch")
	flags.Float64("learning_rate", defaults.Training.LearningRate, "Adam learning rate")
	flags.Int("patience", defaults.Training.Patience, "Epochs without validation-loss improvement before stopping")
	flags.Float64("test_fraction", defaults.Training.TestFraction, "Fraction of samples held out for testing")
	flags.Int64("seed", defaults.Training.Seed, "Seed for splitting, shuffling, augmentation and weight init")
	flags.Int("workers", defaults.Training.Workers, "Image decode workers (0 means one per CPU core)")
	flags.String("log_level", defaults.Logging.Level, "Log level: debug, info, warn or error")
	flags.String("log_format", defaults.Logging.Format, "Log format: console or json")

	return cmd
}

// applyFlagOverrides layers explicitly set flags over the file-derived
// config, so flags always win.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input_path") {
		cfg.Paths.InputPath, _ = flags.GetString("input_path")
	}
	if flags.Changed("output_path") {
		cfg.Paths.OutputPath, _ = flags.GetString("output_path")
	}
	if flags.Changed("log_path") {
		cfg.Paths.LogPath, _ = flags.GetString("log_path")
	}
	if flags.Changed("input_type") {
		cfg.Training.InputType, _ = flags.GetString("input_type")
	}
	if flags.Changed("epochs") {
		cfg.Training.Epochs, _ = flags.GetInt("epochs")
	}
	if flags.Changed("batch_size") {
		cfg.Training.BatchSize, _ = flags.GetInt("batch_size")
	}
	if flags.Changed("learning_rate") {
		cfg.Training.LearningRate, _ = flags.GetFloat64("learning_rate")
	}
	if flags.Changed("patience") {
		cfg.Training.Patience, _ = flags.GetInt("patience")
	}
	if flags.Changed("test_fraction") {
		cfg.Training.TestFraction, _ = flags.GetFloat64("test_fraction")
	}
	if flags.Changed("seed") {
		cfg.Training.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("workers") {
		cfg.Training.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("log_level") {
		cfg.Logging.Level, _ = flags.GetString("log_level")
	}
	if flags.Changed("log_format") {
		cfg.Logging.Format, _ = flags.GetString("log_format")
	}
}

func runTraining(parent context.Context, cfg *config.Config) error {
	mode, err := dataset.ParseLabelMode(cfg.Training.InputType)
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.Paths.OutputPath, cfg.Paths.LogPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	lock := flock.New(filepath.Join(cfg.Paths.OutputPath, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another run is already writing to %s", cfg.Paths.OutputPath)
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	seed := cfg.Training.Seed

	workers := cfg.Training.Workers
	if workers == 0 {
		workers = cpuid.CPU.PhysicalCores
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
	}
	logger.Info("starting run",
		"run_id", runID,
		"input_path", cfg.Paths.InputPath,
		"input_type", cfg.Training.InputType,
		"seed", seed,
		"cpu", cpuid.CPU.BrandName,
		"cores", cpuid.CPU.LogicalCores,
		"workers", workers)

	data, err := dataset.Load(cfg.Paths.InputPath, mode, workers)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	logger.Info("dataset loaded",
		"samples", data.Len(),
		"classes", data.Index.Len(),
		"labels", data.Index.Names())

	train, test, err := data.Split(cfg.Training.TestFraction, seed)
	if err != nil {
		return fmt.Errorf("split dataset: %w", err)
	}
	logger.Info("dataset split", "train", train.Len(), "test", test.Len())

	inputShape := []int{preprocessing.TargetSize, preprocessing.TargetSize, 1}
	spec, err := layers.NewImageClassifier(inputShape, data.Index.Len())
	if err != nil {
		return err
	}
	model, err := engine.NewModel(spec, seed)
	if err != nil {
		return err
	}
	logger.Info("model compiled", "parameters", spec.TotalParameters, "layers", len(spec.Layers))

	adamCfg := optimizer.DefaultAdamConfig()
	adamCfg.LearningRate = float32(cfg.Training.LearningRate)
	opt := optimizer.NewAdam(adamCfg)

	aug := augment.New(cfg.Augmentation.MaxRotateDeg, cfg.Augmentation.MaxShiftFrac, seed)
	loader, err := training.NewDataLoader(train, cfg.Training.BatchSize, aug, seed)
	if err != nil {
		return err
	}

	events, err := tblog.NewWriter(cfg.Paths.LogPath)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer events.Close()

	history, err := runhistory.Open(filepath.Join(cfg.Paths.OutputPath, historyFileName))
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer history.Close()

	if err := history.BeginRun(ctx, runhistory.RunInfo{
		ID:           runID,
		StartedAt:    time.Now().UTC(),
		InputPath:    cfg.Paths.InputPath,
		InputType:    cfg.Training.InputType,
		NumClasses:   data.Index.Len(),
		NumSamples:   data.Len(),
		Epochs:       cfg.Training.Epochs,
		BatchSize:    cfg.Training.BatchSize,
		LearningRate: cfg.Training.LearningRate,
		Seed:         seed,
	}); err != nil {
		return fmt.Errorf("record run start: %w", err)
	}

	trainer := training.NewTrainer(model, opt, training.Config{
		Epochs:         cfg.Training.Epochs,
		Patience:       cfg.Training.Patience,
		CheckpointPath: filepath.Join(cfg.Paths.OutputPath, checkpointFileName),
		RunID:          runID,
	})
	trainer.SetLogger(logger)
	trainer.SetEventWriter(events)
	trainer.SetHistory(history)

	result, err := trainer.Train(ctx, loader, test)
	if err != nil {
		_ = history.FinishRun(context.WithoutCancel(ctx), runID, "failed", 0)
		return err
	}

	report, err := training.Evaluate(model, test)
	if err != nil {
		_ = history.FinishRun(ctx, runID, "failed", result.BestValidLoss)
		return err
	}

	csvPath := filepath.Join(cfg.Paths.OutputPath, confusionFileName)
	if err := report.WriteConfusionCSV(csvPath); err != nil {
		return err
	}

	imageEvents, err := tblog.NewWriter(filepath.Join(cfg.Paths.LogPath, "images"))
	if err != nil {
		return fmt.Errorf("open image event log: %w", err)
	}
	defer imageEvents.Close()
	if err := report.WriteMisclassified(imageEvents, int64(cfg.Training.Epochs)); err != nil {
		return err
	}
	for _, idx := range report.Misclassified(training.MaxMisclassifiedReports) {
		logger.Debug("misclassified sample",
			"path", test.Paths[idx],
			"true", test.Index.Name(test.Labels[idx]),
			"predicted", test.Index.Name(report.Predictions[idx]))
	}

	if err := history.FinishRun(ctx, runID, "completed", result.BestValidLoss); err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}

	logTestMetrics(logger, report, test.Index)
	logger.Info("run complete",
		"run_id", runID,
		"epochs_run", len(result.Epochs),
		"best_epoch", result.BestEpoch,
		"best_valid_loss", result.BestValidLoss,
		"stopped_early", result.StoppedEarly,
		"confusion_matrix", csvPath)

	if stdoutIsTerminal() {
		fmt.Println(renderConfusionTable(report.Matrix, test.Index))
	}

	return nil
}

func logTestMetrics(logger *slog.Logger, report *training.Report, index *dataset.LabelIndex) {
	logger.Info("test set evaluated",
		"samples", report.Matrix.TotalSamples,
		"accuracy", report.Matrix.Accuracy(),
		"misclassified", len(report.Misclassified(0)))

	for class := 0; class < report.Matrix.NumClasses; class++ {
		logger.Info("class metrics",
			"label", index.Name(class),
			"precision", report.Matrix.Precision(class),
			"recall", report.Matrix.Recall(class))
	}
}
