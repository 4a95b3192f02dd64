// Package checkpoints persists model parameters and training state as JSON
// so the best snapshot of a run can be restored later.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"glyphnet/engine"
	"glyphnet/layers"
	"glyphnet/tensor"
)

// Checkpoint represents a complete model state including weights and
// training metadata.
type Checkpoint struct {
	ModelSpec *layers.ModelSpec `json:"model_spec"`
	Weights   []WeightTensor    `json:"weights"`

	TrainingState TrainingState `json:"training_state"`

	Metadata Metadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight" or "bias"
}

// TrainingState captures the training progress at checkpoint time
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	LearningRate float32 `json:"learning_rate"`
	BestLoss     float64 `json:"best_loss"`
	BestAccuracy float64 `json:"best_accuracy"`
	Optimizer    string  `json:"optimizer,omitempty"`
}

// Metadata contains checkpoint provenance
type Metadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	RunID       string    `json:"run_id,omitempty"`
	Description string    `json:"description,omitempty"`
}

// FromModel captures the current parameters of a model into a checkpoint.
// Weight names follow "<layer>.weight" / "<layer>.bias".
func FromModel(m *engine.Model, state TrainingState, runID string) (*Checkpoint, error) {
	cp := &Checkpoint{
		ModelSpec:     m.Spec,
		TrainingState: state,
		Metadata: Metadata{
			Version:   "1.0.0",
			Framework: "glyphnet",
			CreatedAt: time.Now().UTC(),
			RunID:     runID,
		},
	}

	wi := 0
	for _, layer := range m.Spec.Layers {
		for pi := range layer.ParameterShapes {
			if wi >= len(m.Weights) {
				return nil, fmt.Errorf("model has fewer weight tensors than the spec declares")
			}
			w := m.Weights[wi]
			kind := "weight"
			if pi == 1 {
				kind = "bias"
			}

			data := make([]float32, len(w.Data))
			copy(data, w.Data)
			shape := make([]int, len(w.Shape))
			copy(shape, w.Shape)

			cp.Weights = append(cp.Weights, WeightTensor{
				Name:  layer.Name + "." + kind,
				Shape: shape,
				Data:  data,
				Layer: layer.Name,
				Type:  kind,
			})
			wi++
		}
	}
	if wi != len(m.Weights) {
		return nil, fmt.Errorf("model has %d weight tensors, spec declares %d", len(m.Weights), wi)
	}

	return cp, nil
}

// ApplyTo restores the checkpoint weights into a model compiled from the
// same spec.
func (cp *Checkpoint) ApplyTo(m *engine.Model) error {
	if len(cp.Weights) != len(m.Weights) {
		return fmt.Errorf("checkpoint holds %d weight tensors, model expects %d", len(cp.Weights), len(m.Weights))
	}

	restored := make([]*tensor.Tensor, len(cp.Weights))
	for i, wt := range cp.Weights {
		t, err := tensor.FromData(wt.Data, wt.Shape...)
		if err != nil {
			return fmt.Errorf("restore weight %s: %w", wt.Name, err)
		}
		restored[i] = t
	}
	return m.SetWeights(restored)
}

// Save writes the checkpoint as JSON, replacing any existing file at path.
// The write goes through a temp file so a crash cannot leave a truncated
// checkpoint behind.
func Save(cp *Checkpoint, path string) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load reads a JSON checkpoint from disk.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	if cp.ModelSpec == nil {
		return nil, fmt.Errorf("checkpoint has no model spec")
	}
	return &cp, nil
}
