// Package training drives the train/validate/checkpoint cycle and the
// post-training evaluation report.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"glyphnet/checkpoints"
	"glyphnet/engine"
	"glyphnet/optimizer"
	"glyphnet/runhistory"
	"glyphnet/tblog"
	"glyphnet/tensor"
	"glyphnet/vision/dataset"
)

// Config holds configuration for training
type Config struct {
	Epochs   int
	Patience int // epochs without validation-loss improvement before stopping

	// CheckpointPath, when set, receives the best-validation-loss model
	// snapshot, overwriting the previous best.
	CheckpointPath string

	RunID string
}

// EpochMetrics holds metrics for a single epoch
type EpochMetrics struct {
	Epoch         int
	TrainLoss     float64
	TrainAccuracy float64
	ValidLoss     float64
	ValidAccuracy float64
	Duration      time.Duration
}

// Result summarizes a completed training run.
type Result struct {
	Epochs        []EpochMetrics
	BestValidLoss float64
	BestEpoch     int
	StoppedEarly  bool
}

// Trainer manages the training process
type Trainer struct {
	model  *engine.Model
	opt    optimizer.Optimizer
	config Config

	logger  *slog.Logger
	events  *tblog.Writer
	history *runhistory.Store
}

// NewTrainer creates a new Trainer
func NewTrainer(model *engine.Model, opt optimizer.Optimizer, config Config) *Trainer {
	return &Trainer{
		model:  model,
		opt:    opt,
		config: config,
		logger: slog.Default(),
	}
}

// SetLogger replaces the trainer's logger.
func (t *Trainer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// SetEventWriter streams per-epoch scalars and weight histograms to a
// TensorBoard event log.
func (t *Trainer) SetEventWriter(w *tblog.Writer) {
	t.events = w
}

// SetHistory persists per-epoch metrics rows under the configured run id.
func (t *Trainer) SetHistory(store *runhistory.Store) {
	t.history = store
}

// Train runs up to config.Epochs epochs over loader, validating against
// valid each epoch. It stops early when validation loss has not improved
// for config.Patience consecutive epochs. Any error aborts the run.
func (t *Trainer) Train(ctx context.Context, loader *DataLoader, valid *dataset.Data) (*Result, error) {
	if t.config.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", t.config.Epochs)
	}
	if valid == nil || valid.Len() == 0 {
		return nil, fmt.Errorf("validation set is empty")
	}

	steps := loader.StepsPerEpoch()
	if steps == 0 {
		return nil, fmt.Errorf("training set smaller than one batch")
	}

	if t.events != nil {
		if err := t.events.WriteText("model/architecture", 0, t.model.Spec.Summary()); err != nil {
			return nil, fmt.Errorf("write architecture summary: %w", err)
		}
	}

	result := &Result{BestValidLoss: math.Inf(1), BestEpoch: -1}
	patienceCounter := 0

	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training canceled: %w", err)
		}
		epochStart := time.Now()

		trainLoss, trainAcc, err := t.trainEpoch(loader, steps)
		if err != nil {
			return nil, fmt.Errorf("training epoch %d failed: %w", epoch, err)
		}

		validLoss, validAcc, err := t.validate(valid)
		if err != nil {
			return nil, fmt.Errorf("validation epoch %d failed: %w", epoch, err)
		}

		metrics := EpochMetrics{
			Epoch:         epoch,
			TrainLoss:     trainLoss,
			TrainAccuracy: trainAcc,
			ValidLoss:     validLoss,
			ValidAccuracy: validAcc,
			Duration:      time.Since(epochStart),
		}
		result.Epochs = append(result.Epochs, metrics)

		t.logger.Info("epoch complete",
			"epoch", epoch,
			"train_loss", trainLoss,
			"train_accuracy", trainAcc,
			"valid_loss", validLoss,
			"valid_accuracy", validAcc,
			"duration", metrics.Duration)

		if err := t.emitEpoch(ctx, metrics); err != nil {
			return nil, err
		}

		if validLoss < result.BestValidLoss {
			result.BestValidLoss = validLoss
			result.BestEpoch = epoch
			patienceCounter = 0

			if t.config.CheckpointPath != "" {
				if err := t.saveCheckpoint(epoch, validLoss, validAcc); err != nil {
					return nil, err
				}
			}
		} else {
			patienceCounter++
			if t.config.Patience > 0 && patienceCounter >= t.config.Patience {
				t.logger.Info("early stopping",
					"epoch", epoch,
					"best_epoch", result.BestEpoch,
					"best_valid_loss", result.BestValidLoss)
				result.StoppedEarly = true
				break
			}
		}
	}

	return result, nil
}

func (t *Trainer) trainEpoch(loader *DataLoader, steps int) (float64, float64, error) {
	totalLoss := 0.0
	correct := 0
	seen := 0

	for step := 0; step < steps; step++ {
		batch, err := loader.Next()
		if err != nil {
			return 0, 0, fmt.Errorf("load batch %d: %w", step, err)
		}

		probs, err := t.model.Forward(batch.Images, true)
		if err != nil {
			return 0, 0, err
		}
		loss, err := t.model.Loss(batch.Labels)
		if err != nil {
			return 0, 0, err
		}
		totalLoss += loss

		for i, pred := range argmaxRows(probs) {
			if pred == batch.Labels[i] {
				correct++
			}
		}
		seen += len(batch.Labels)

		grads, err := t.model.Backward(batch.Labels)
		if err != nil {
			return 0, 0, err
		}
		if err := t.opt.Step(t.model.Weights, grads); err != nil {
			return 0, 0, err
		}
	}

	return totalLoss / float64(steps), float64(correct) / float64(seen), nil
}

func (t *Trainer) validate(valid *dataset.Data) (float64, float64, error) {
	probs, err := t.model.Forward(valid.Images, false)
	if err != nil {
		return 0, 0, err
	}
	loss, err := t.model.Loss(valid.Labels)
	if err != nil {
		return 0, 0, err
	}

	correct := 0
	for i, pred := range argmaxRows(probs) {
		if pred == valid.Labels[i] {
			correct++
		}
	}
	return loss, float64(correct) / float64(valid.Len()), nil
}

func (t *Trainer) emitEpoch(ctx context.Context, m EpochMetrics) error {
	step := int64(m.Epoch + 1)

	if t.events != nil {
		scalars := []struct {
			tag   string
			value float64
		}{
			{"train/loss", m.TrainLoss},
			{"train/accuracy", m.TrainAccuracy},
			{"validation/loss", m.ValidLoss},
			{"validation/accuracy", m.ValidAccuracy},
			{"train/learning_rate", float64(t.opt.LearningRate())},
		}
		for _, s := range scalars {
			if err := t.events.WriteScalar(s.tag, step, float32(s.value)); err != nil {
				return fmt.Errorf("write scalar %s: %w", s.tag, err)
			}
		}

		names := t.model.WeightNames()
		for i, w := range t.model.Weights {
			if err := t.events.WriteHistogram("weights/"+names[i], step, w.Data); err != nil {
				return fmt.Errorf("write histogram for %s: %w", names[i], err)
			}
		}
	}

	if t.history != nil {
		rec := runhistory.EpochRecord{
			RunID:         t.config.RunID,
			Epoch:         m.Epoch,
			TrainLoss:     m.TrainLoss,
			TrainAccuracy: m.TrainAccuracy,
			ValidLoss:     m.ValidLoss,
			ValidAccuracy: m.ValidAccuracy,
			Duration:      m.Duration,
		}
		if err := t.history.RecordEpoch(ctx, rec); err != nil {
			return fmt.Errorf("record epoch history: %w", err)
		}
	}

	return nil
}

func (t *Trainer) saveCheckpoint(epoch int, validLoss, validAcc float64) error {
	state := checkpoints.TrainingState{
		Epoch:        epoch,
		LearningRate: t.opt.LearningRate(),
		BestLoss:     validLoss,
		BestAccuracy: validAcc,
		Optimizer:    t.opt.Name(),
	}
	cp, err := checkpoints.FromModel(t.model, state, t.config.RunID)
	if err != nil {
		return fmt.Errorf("capture checkpoint: %w", err)
	}
	if err := checkpoints.Save(cp, t.config.CheckpointPath); err != nil {
		return err
	}

	t.logger.Debug("checkpoint saved",
		"path", t.config.CheckpointPath,
		"epoch", epoch,
		"valid_loss", validLoss)
	return nil
}

// argmaxRows returns the index of the largest value in each row of a
// (batch, classes) tensor.
func argmaxRows(probs *tensor.Tensor) []int {
	batch := probs.Shape[0]
	classes := probs.Shape[1]
	out := make([]int, batch)
	for b := 0; b < batch; b++ {
		best := 0
		bestVal := probs.Data[b*classes]
		for c := 1; c < classes; c++ {
			if v := probs.Data[b*classes+c]; v > bestVal {
				bestVal = v
				best = c
			}
		}
		out[b] = best
	}
	return out
}
