package optimizer

import (
	"fmt"

	"glyphnet/tensor"
)

// SGDConfig holds configuration for the SGD optimizer
type SGDConfig struct {
	LearningRate float32
	Momentum     float32 // 0 disables momentum
}

// SGD implements stochastic gradient descent with optional momentum.
type SGD struct {
	config   SGDConfig
	velocity []*tensor.Tensor
}

// NewSGD creates a new SGD optimizer
func NewSGD(config SGDConfig) *SGD {
	return &SGD{config: config}
}

// Step applies one SGD update to all parameter tensors.
func (s *SGD) Step(weights, grads []*tensor.Tensor) error {
	if len(weights) != len(grads) {
		return fmt.Errorf("got %d gradient tensors for %d weight tensors", len(grads), len(weights))
	}

	useMomentum := s.config.Momentum != 0
	if useMomentum && s.velocity == nil {
		s.velocity = make([]*tensor.Tensor, len(weights))
		for i, w := range weights {
			v, err := tensor.New(w.Shape...)
			if err != nil {
				return fmt.Errorf("allocate velocity buffer %d: %w", i, err)
			}
			s.velocity[i] = v
		}
	}

	lr := s.config.LearningRate
	for i, w := range weights {
		g := grads[i]
		if !tensor.ShapesEqual(w.Shape, g.Shape) {
			return fmt.Errorf("gradient %d shape %v doesn't match weight shape %v", i, g.Shape, w.Shape)
		}

		if useMomentum {
			v := s.velocity[i].Data
			for j := range w.Data {
				v[j] = s.config.Momentum*v[j] + g.Data[j]
				w.Data[j] -= lr * v[j]
			}
		} else {
			for j := range w.Data {
				w.Data[j] -= lr * g.Data[j]
			}
		}
	}

	return nil
}

// LearningRate returns the configured learning rate.
func (s *SGD) LearningRate() float32 {
	return s.config.LearningRate
}

// Name returns "SGD".
func (s *SGD) Name() string {
	return "SGD"
}
