// Package engine executes compiled layer specifications on the CPU.
// It provides forward inference and backpropagation for the layer types
// the classifier uses: Conv2D, Dense, ReLU, MaxPool2D, Dropout, Flatten
// and a softmax output fused with sparse categorical cross entropy.
package engine

import (
	"fmt"
	"math"
	"math/rand"

	"glyphnet/layers"
	"glyphnet/tensor"
)

// Model holds a compiled spec together with its parameter tensors.
// Parameter order follows spec.ParameterShapes.
type Model struct {
	Spec    *layers.ModelSpec
	Weights []*tensor.Tensor

	// paramOffset[i] is the index into Weights of layer i's first parameter.
	paramOffset []int

	rng *rand.Rand

	// caches populated by the last Forward call in training mode
	inputs   []*tensor.Tensor // input to each layer, batched
	masks    [][]bool         // dropout / relu masks per layer
	poolIdx  [][]int          // argmax indices per MaxPool2D layer
	probs    *tensor.Tensor   // softmax output of the last forward pass
	batchLen int
}

// NewModel allocates and initializes parameters for a compiled spec.
// Weight tensors use He-style initialization seeded by seed; biases start
// at zero. The final layer must be Softmax.
func NewModel(spec *layers.ModelSpec, seed int64) (*Model, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("model spec must be compiled")
	}
	if len(spec.Layers) == 0 || spec.Layers[len(spec.Layers)-1].Type != layers.Softmax {
		return nil, fmt.Errorf("model must end with a Softmax layer")
	}

	m := &Model{
		Spec:        spec,
		rng:         rand.New(rand.NewSource(seed)),
		paramOffset: make([]int, len(spec.Layers)),
	}

	for i := range spec.Layers {
		layer := &spec.Layers[i]
		m.paramOffset[i] = len(m.Weights)

		for pi, shape := range layer.ParameterShapes {
			w, err := tensor.New(shape...)
			if err != nil {
				return nil, fmt.Errorf("allocate parameter %d of layer %s: %w", pi, layer.Name, err)
			}
			// First parameter tensor is the weight matrix/kernel, any
			// second one is the bias which stays zero.
			if pi == 0 {
				m.initWeight(w, layer)
			}
			m.Weights = append(m.Weights, w)
		}
	}

	if len(m.Weights) != len(spec.ParameterShapes) {
		return nil, fmt.Errorf("parameter count mismatch: allocated %d, spec has %d",
			len(m.Weights), len(spec.ParameterShapes))
	}

	return m, nil
}

// initWeight fills a weight tensor with He-initialized values based on the
// layer's fan-in.
func (m *Model) initWeight(w *tensor.Tensor, layer *layers.LayerSpec) {
	fanIn := 1
	switch layer.Type {
	case layers.Conv2D:
		// kernel shape [k, k, inC, outC]
		fanIn = w.Shape[0] * w.Shape[1] * w.Shape[2]
	case layers.Dense:
		fanIn = w.Shape[0]
	}

	std := float32(math.Sqrt(2.0 / float64(fanIn)))
	for i := range w.Data {
		w.Data[i] = float32(m.rng.NormFloat64()) * std
	}
}

// SetWeights replaces the model parameters, validating shapes against the
// spec. Used when restoring from a checkpoint.
func (m *Model) SetWeights(weights []*tensor.Tensor) error {
	if len(weights) != len(m.Weights) {
		return fmt.Errorf("expected %d parameter tensors, got %d", len(m.Weights), len(weights))
	}
	for i, w := range weights {
		if !tensor.ShapesEqual(w.Shape, m.Weights[i].Shape) {
			return fmt.Errorf("parameter %d shape %v doesn't match spec shape %v",
				i, w.Shape, m.Weights[i].Shape)
		}
	}
	copy(m.Weights, weights)
	return nil
}

// WeightNames returns a "<layer>.weight" / "<layer>.bias" style name per
// parameter tensor, in Weights order.
func (m *Model) WeightNames() []string {
	names := make([]string, 0, len(m.Weights))
	for _, layer := range m.Spec.Layers {
		for pi := range layer.ParameterShapes {
			kind := "weight"
			if pi == 1 {
				kind = "bias"
			}
			names = append(names, layer.Name+"."+kind)
		}
	}
	return names
}

// NumClasses returns the size of the softmax output.
func (m *Model) NumClasses() int {
	return m.Spec.OutputShape[0]
}

// layerParams returns the parameter tensors belonging to layer i.
func (m *Model) layerParams(i int) []*tensor.Tensor {
	start := m.paramOffset[i]
	end := len(m.Weights)
	if i+1 < len(m.paramOffset) {
		end = m.paramOffset[i+1]
	}
	return m.Weights[start:end]
}
