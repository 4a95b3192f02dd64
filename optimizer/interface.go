// Package optimizer provides first-order gradient optimizers operating on
// CPU tensors.
package optimizer

import (
	"glyphnet/tensor"
)

// Optimizer updates parameters in place from their gradients.
type Optimizer interface {
	// Step applies one update. weights and grads must be parallel slices
	// of identically shaped tensors.
	Step(weights, grads []*tensor.Tensor) error

	// LearningRate returns the current learning rate.
	LearningRate() float32

	// Name returns the optimizer name for logging and checkpoints.
	Name() string
}
