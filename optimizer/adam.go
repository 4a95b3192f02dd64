package optimizer

import (
	"fmt"
	"math"

	"glyphnet/tensor"
)

// AdamConfig holds configuration for the Adam optimizer
type AdamConfig struct {
	LearningRate float32
	Beta1        float32 // Momentum decay (typically 0.9)
	Beta2        float32 // Variance decay (typically 0.999)
	Epsilon      float32 // Small constant to prevent division by zero (typically 1e-8)
	WeightDecay  float32 // L2 regularization coefficient
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// Adam implements the Adam optimizer with bias-corrected first and second
// moment estimates. Moment buffers are allocated lazily on the first Step.
type Adam struct {
	config AdamConfig

	momentum []*tensor.Tensor // first moment per weight tensor
	variance []*tensor.Tensor // second moment per weight tensor

	// Step tracking for bias correction
	stepCount uint64
}

// NewAdam creates a new Adam optimizer
func NewAdam(config AdamConfig) *Adam {
	return &Adam{config: config}
}

// Step applies one Adam update to all parameter tensors.
func (a *Adam) Step(weights, grads []*tensor.Tensor) error {
	if len(weights) != len(grads) {
		return fmt.Errorf("got %d gradient tensors for %d weight tensors", len(grads), len(weights))
	}

	if a.momentum == nil {
		a.momentum = make([]*tensor.Tensor, len(weights))
		a.variance = make([]*tensor.Tensor, len(weights))
		for i, w := range weights {
			m, err := tensor.New(w.Shape...)
			if err != nil {
				return fmt.Errorf("allocate momentum buffer %d: %w", i, err)
			}
			v, err := tensor.New(w.Shape...)
			if err != nil {
				return fmt.Errorf("allocate variance buffer %d: %w", i, err)
			}
			a.momentum[i] = m
			a.variance[i] = v
		}
	}
	if len(a.momentum) != len(weights) {
		return fmt.Errorf("optimizer state holds %d tensors, got %d", len(a.momentum), len(weights))
	}

	a.stepCount++
	beta1 := float64(a.config.Beta1)
	beta2 := float64(a.config.Beta2)
	correction1 := 1 - math.Pow(beta1, float64(a.stepCount))
	correction2 := 1 - math.Pow(beta2, float64(a.stepCount))
	lr := float64(a.config.LearningRate)
	eps := float64(a.config.Epsilon)
	decay := float64(a.config.WeightDecay)

	for i, w := range weights {
		g := grads[i]
		if !tensor.ShapesEqual(w.Shape, g.Shape) {
			return fmt.Errorf("gradient %d shape %v doesn't match weight shape %v", i, g.Shape, w.Shape)
		}

		m := a.momentum[i].Data
		v := a.variance[i].Data
		for j := range w.Data {
			grad := float64(g.Data[j])
			if decay != 0 {
				grad += decay * float64(w.Data[j])
			}

			m[j] = float32(beta1*float64(m[j]) + (1-beta1)*grad)
			v[j] = float32(beta2*float64(v[j]) + (1-beta2)*grad*grad)

			mHat := float64(m[j]) / correction1
			vHat := float64(v[j]) / correction2

			w.Data[j] -= float32(lr * mHat / (math.Sqrt(vHat) + eps))
		}
	}

	return nil
}

// LearningRate returns the configured learning rate.
func (a *Adam) LearningRate() float32 {
	return a.config.LearningRate
}

// StepCount returns the number of updates applied so far.
func (a *Adam) StepCount() uint64 {
	return a.stepCount
}

// Name returns "Adam".
func (a *Adam) Name() string {
	return "Adam"
}
