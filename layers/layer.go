package layers

import (
	"fmt"
)

// LayerType represents the type of neural network layer
type LayerType int

const (
	Dense LayerType = iota
	Conv2D
	ReLU
	Softmax
	MaxPool2D
	Dropout
	Flatten
)

func (lt LayerType) String() string {
	switch lt {
	case Dense:
		return "Dense"
	case Conv2D:
		return "Conv2D"
	case ReLU:
		return "ReLU"
	case Softmax:
		return "Softmax"
	case MaxPool2D:
		return "MaxPool2D"
	case Dropout:
		return "Dropout"
	case Flatten:
		return "Flatten"
	default:
		return "Unknown"
	}
}

// LayerSpec defines layer configuration for the engine.
// This is pure configuration - no execution logic.
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// Per-sample shape information (computed during model compilation)
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Parameter metadata (computed during model compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// ParamInt reads an integer layer parameter. Values survive a JSON round
// trip as float64, so both representations are accepted.
func (ls *LayerSpec) ParamInt(key string) (int, error) {
	raw, ok := ls.Parameters[key]
	if !ok {
		return 0, fmt.Errorf("layer %s: missing %s parameter", ls.Name, key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("layer %s: parameter %s has type %T, expected int", ls.Name, key, raw)
	}
}

// ParamFloat reads a floating-point layer parameter.
func (ls *LayerSpec) ParamFloat(key string) (float32, error) {
	raw, ok := ls.Parameters[key]
	if !ok {
		return 0, fmt.Errorf("layer %s: missing %s parameter", ls.Name, key)
	}
	switch v := raw.(type) {
	case float32:
		return v, nil
	case float64:
		return float32(v), nil
	case int:
		return float32(v), nil
	default:
		return 0, fmt.Errorf("layer %s: parameter %s has type %T, expected float", ls.Name, key, raw)
	}
}

// ParamBool reads a boolean layer parameter, returning def when absent.
func (ls *LayerSpec) ParamBool(key string, def bool) bool {
	if v, ok := ls.Parameters[key].(bool); ok {
		return v
	}
	return def
}

// ModelSpec defines a complete neural network model as layer configuration.
// Shapes are per sample; the batch dimension is supplied at execution time.
type ModelSpec struct {
	Layers []LayerSpec `json:"layers"`

	// Compiled model information
	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// Summary returns a human-readable per-layer shape table.
func (ms *ModelSpec) Summary() string {
	s := fmt.Sprintf("Model: input %v, output %v, %d parameters\n",
		ms.InputShape, ms.OutputShape, ms.TotalParameters)
	for i, layer := range ms.Layers {
		s += fmt.Sprintf("  %2d %-10s %-16s %v -> %v (%d params)\n",
			i, layer.Type.String(), layer.Name, layer.InputShape, layer.OutputShape, layer.ParameterCount)
	}
	return s
}

// ModelBuilder helps construct neural network models
type ModelBuilder struct {
	layers     []LayerSpec
	inputShape []int
	compiled   bool
}

// NewModelBuilder creates a new model builder. inputShape is the per-sample
// shape, e.g. [28, 28, 1] for grayscale images in HWC order.
func NewModelBuilder(inputShape []int) *ModelBuilder {
	shapeCopy := make([]int, len(inputShape))
	copy(shapeCopy, inputShape)
	return &ModelBuilder{
		layers:     make([]LayerSpec, 0),
		inputShape: shapeCopy,
		compiled:   false,
	}
}

// AddLayer adds a layer to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	mb.layers = append(mb.layers, layer)
	mb.compiled = false // Invalidate compilation
	return mb
}

// AddConv2D adds a valid-padding, stride-1 Conv2D layer to the model
func (mb *ModelBuilder) AddConv2D(outputChannels, kernelSize int, useBias bool, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"output_channels": outputChannels,
			"kernel_size":     kernelSize,
			"use_bias":        useBias,
		},
	})
}

// AddDense adds a dense layer to the model. Input size is computed during
// compilation by flattening the incoming shape.
func (mb *ModelBuilder) AddDense(outputSize int, useBias bool, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Dense,
		Name: name,
		Parameters: map[string]interface{}{
			"output_size": outputSize,
			"use_bias":    useBias,
		},
	})
}

// AddReLU adds a ReLU activation to the model
func (mb *ModelBuilder) AddReLU(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type:       ReLU,
		Name:       name,
		Parameters: map[string]interface{}{},
	})
}

// AddSoftmax adds a Softmax activation to the model
func (mb *ModelBuilder) AddSoftmax(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type:       Softmax,
		Name:       name,
		Parameters: map[string]interface{}{},
	})
}

// AddMaxPool2D adds a MaxPool2D layer with a square pool window. Stride
// equals the pool size.
func (mb *ModelBuilder) AddMaxPool2D(poolSize int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: MaxPool2D,
		Name: name,
		Parameters: map[string]interface{}{
			"pool_size": poolSize,
		},
	})
}

// AddDropout adds a Dropout layer to the model.
// rate: dropout probability (0.0 = no dropout, 1.0 = drop all)
func (mb *ModelBuilder) AddDropout(rate float32, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Dropout,
		Name: name,
		Parameters: map[string]interface{}{
			"rate": rate,
		},
	})
}

// AddFlatten adds a Flatten layer collapsing the per-sample shape to 1-D.
func (mb *ModelBuilder) AddFlatten(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type:       Flatten,
		Name:       name,
		Parameters: map[string]interface{}{},
	})
}

// Compile compiles the model and computes shapes and parameter counts
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}

	model := &ModelSpec{
		Layers:     make([]LayerSpec, len(mb.layers)),
		InputShape: mb.inputShape,
		Compiled:   false,
	}
	copy(model.Layers, mb.layers)

	currentShape := mb.inputShape
	var allParameterShapes [][]int
	totalParams := int64(0)

	for i := range model.Layers {
		layer := &model.Layers[i]

		layer.InputShape = make([]int, len(currentShape))
		copy(layer.InputShape, currentShape)

		outputShape, paramShapes, paramCount, err := computeLayerInfo(layer, currentShape)
		if err != nil {
			return nil, fmt.Errorf("failed to compute layer %d (%s) info: %w", i, layer.Name, err)
		}

		layer.OutputShape = outputShape
		layer.ParameterShapes = paramShapes
		layer.ParameterCount = paramCount

		allParameterShapes = append(allParameterShapes, paramShapes...)
		totalParams += paramCount

		currentShape = outputShape
	}

	model.OutputShape = currentShape
	model.ParameterShapes = allParameterShapes
	model.TotalParameters = totalParams
	model.Compiled = true
	mb.compiled = true

	return model, nil
}

// computeLayerInfo computes output shape and parameter information for a layer
func computeLayerInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	switch layer.Type {
	case Dense:
		return computeDenseInfo(layer, inputShape)
	case Conv2D:
		return computeConv2DInfo(layer, inputShape)
	case MaxPool2D:
		return computeMaxPool2DInfo(layer, inputShape)
	case Flatten:
		return computeFlattenInfo(inputShape)
	case ReLU, Softmax, Dropout:
		return copyShape(inputShape), nil, 0, nil
	default:
		return nil, nil, 0, fmt.Errorf("unsupported layer type: %s", layer.Type.String())
	}
}

func computeDenseInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	outputSize, err := layer.ParamInt("output_size")
	if err != nil {
		return nil, nil, 0, err
	}
	if outputSize <= 0 {
		return nil, nil, 0, fmt.Errorf("invalid output_size: %d", outputSize)
	}

	inputSize := 1
	for _, dim := range inputShape {
		inputSize *= dim
	}

	paramShapes := [][]int{{inputSize, outputSize}}
	paramCount := int64(inputSize * outputSize)
	if layer.ParamBool("use_bias", true) {
		paramShapes = append(paramShapes, []int{outputSize})
		paramCount += int64(outputSize)
	}

	return []int{outputSize}, paramShapes, paramCount, nil
}

func computeConv2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 3 {
		return nil, nil, 0, fmt.Errorf("Conv2D requires HWC input, got shape %v", inputShape)
	}

	outputChannels, err := layer.ParamInt("output_channels")
	if err != nil {
		return nil, nil, 0, err
	}
	kernelSize, err := layer.ParamInt("kernel_size")
	if err != nil {
		return nil, nil, 0, err
	}

	height, width, inputChannels := inputShape[0], inputShape[1], inputShape[2]
	outHeight := height - kernelSize + 1
	outWidth := width - kernelSize + 1
	if outHeight <= 0 || outWidth <= 0 {
		return nil, nil, 0, fmt.Errorf("kernel size %d too large for input %dx%d", kernelSize, height, width)
	}

	paramShapes := [][]int{{kernelSize, kernelSize, inputChannels, outputChannels}}
	paramCount := int64(kernelSize * kernelSize * inputChannels * outputChannels)
	if layer.ParamBool("use_bias", true) {
		paramShapes = append(paramShapes, []int{outputChannels})
		paramCount += int64(outputChannels)
	}

	return []int{outHeight, outWidth, outputChannels}, paramShapes, paramCount, nil
}

func computeMaxPool2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 3 {
		return nil, nil, 0, fmt.Errorf("MaxPool2D requires HWC input, got shape %v", inputShape)
	}

	poolSize, err := layer.ParamInt("pool_size")
	if err != nil {
		return nil, nil, 0, err
	}
	if poolSize <= 0 {
		return nil, nil, 0, fmt.Errorf("invalid pool_size: %d", poolSize)
	}

	height, width, channels := inputShape[0], inputShape[1], inputShape[2]
	outHeight := height / poolSize
	outWidth := width / poolSize
	if outHeight == 0 || outWidth == 0 {
		return nil, nil, 0, fmt.Errorf("pool size %d too large for input %dx%d", poolSize, height, width)
	}

	return []int{outHeight, outWidth, channels}, nil, 0, nil
}

func computeFlattenInfo(inputShape []int) ([]int, [][]int, int64, error) {
	size := 1
	for _, dim := range inputShape {
		size *= dim
	}
	return []int{size}, nil, 0, nil
}

func copyShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}
