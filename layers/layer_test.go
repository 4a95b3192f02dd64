package layers

import (
	"encoding/json"
	"testing"
)

// TestLayerTypeString tests layer type names
func TestLayerTypeString(t *testing.T) {
	tests := []struct {
		layerType LayerType
		expected  string
	}{
		{Dense, "Dense"},
		{Conv2D, "Conv2D"},
		{ReLU, "ReLU"},
		{Softmax, "Softmax"},
		{MaxPool2D, "MaxPool2D"},
		{Dropout, "Dropout"},
		{Flatten, "Flatten"},
		{LayerType(999), "Unknown"},
	}

	for _, test := range tests {
		if got := test.layerType.String(); got != test.expected {
			t.Errorf("LayerType(%d).String() = %s, expected %s", test.layerType, got, test.expected)
		}
	}
}

func TestCompileShapes(t *testing.T) {
	t.Run("ConvReducesSpatialDims", func(t *testing.T) {
		model, err := NewModelBuilder([]int{28, 28, 1}).
			AddConv2D(32, 3, true, "conv1").
			AddReLU("relu1").
			Compile()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		conv := model.Layers[0]
		if conv.OutputShape[0] != 26 || conv.OutputShape[1] != 26 || conv.OutputShape[2] != 32 {
			t.Errorf("Conv output shape = %v, expected [26 26 32]", conv.OutputShape)
		}
		// 3*3*1*32 weights + 32 biases
		if conv.ParameterCount != 320 {
			t.Errorf("Conv parameter count = %d, expected 320", conv.ParameterCount)
		}
	})

	t.Run("PoolFloorsOddDims", func(t *testing.T) {
		model, err := NewModelBuilder([]int{5, 5, 4}).
			AddMaxPool2D(2, "pool").
			Compile()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got := model.OutputShape; got[0] != 2 || got[1] != 2 || got[2] != 4 {
			t.Errorf("Pool output shape = %v, expected [2 2 4]", got)
		}
	})

	t.Run("DenseFlattensInput", func(t *testing.T) {
		model, err := NewModelBuilder([]int{4, 4, 2}).
			AddDense(10, true, "fc").
			Compile()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		fc := model.Layers[0]
		if fc.ParameterCount != 32*10+10 {
			t.Errorf("Dense parameter count = %d, expected %d", fc.ParameterCount, 32*10+10)
		}
		if model.OutputShape[0] != 10 {
			t.Errorf("Output shape = %v, expected [10]", model.OutputShape)
		}
	})

	t.Run("EmptyModel", func(t *testing.T) {
		if _, err := NewModelBuilder([]int{28, 28, 1}).Compile(); err == nil {
			t.Error("Expected error compiling empty model")
		}
	})

	t.Run("KernelTooLarge", func(t *testing.T) {
		_, err := NewModelBuilder([]int{2, 2, 1}).
			AddConv2D(8, 3, true, "conv").
			Compile()
		if err == nil {
			t.Error("Expected error for kernel larger than input")
		}
	})
}

func TestNewImageClassifier(t *testing.T) {
	model, err := NewImageClassifier([]int{28, 28, 1}, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !model.Compiled {
		t.Error("Expected compiled model")
	}
	if got := model.OutputShape; len(got) != 1 || got[0] != 10 {
		t.Errorf("Output shape = %v, expected [10]", got)
	}

	// 28 -conv-> 26 -conv-> 24 -pool-> 12 -conv-> 10 -conv-> 8 -pool-> 4
	flatten := findLayer(t, model, "flatten")
	if flatten.OutputShape[0] != 4*4*32 {
		t.Errorf("Flatten output = %v, expected [512]", flatten.OutputShape)
	}

	if _, err := NewImageClassifier([]int{28, 28, 1}, 1); err == nil {
		t.Error("Expected error for single-class model")
	}
}

func TestParamIntSurvivesJSONRoundTrip(t *testing.T) {
	model, err := NewImageClassifier([]int{28, 28, 1}, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	data, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded ModelSpec
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	conv := findLayer(t, &decoded, "conv1")
	kernel, err := conv.ParamInt("kernel_size")
	if err != nil {
		t.Fatalf("ParamInt after round trip: %v", err)
	}
	if kernel != 3 {
		t.Errorf("kernel_size = %d, expected 3", kernel)
	}

	drop := findLayer(t, &decoded, "dropout3")
	rate, err := drop.ParamFloat("rate")
	if err != nil {
		t.Fatalf("ParamFloat after round trip: %v", err)
	}
	if rate != 0.5 {
		t.Errorf("rate = %v, expected 0.5", rate)
	}
}

func findLayer(t *testing.T, model *ModelSpec, name string) *LayerSpec {
	t.Helper()
	for i := range model.Layers {
		if model.Layers[i].Name == name {
			return &model.Layers[i]
		}
	}
	t.Fatalf("layer %s not found", name)
	return nil
}
