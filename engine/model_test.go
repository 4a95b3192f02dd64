package engine

import (
	"math"
	"testing"

	"glyphnet/layers"
	"glyphnet/tensor"
)

func compileModel(t *testing.T, build func(*layers.ModelBuilder) *layers.ModelBuilder, inputShape []int) *layers.ModelSpec {
	t.Helper()
	spec, err := build(layers.NewModelBuilder(inputShape)).Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return spec
}

func TestNewModel(t *testing.T) {
	t.Run("AllocatesSpecParameters", func(t *testing.T) {
		spec := compileModel(t, func(b *layers.ModelBuilder) *layers.ModelBuilder {
			return b.AddConv2D(4, 3, true, "conv").
				AddReLU("relu").
				AddFlatten("flatten").
				AddDense(3, true, "fc").
				AddSoftmax("softmax")
		}, []int{6, 6, 1})

		model, err := NewModel(spec, 0)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(model.Weights) != len(spec.ParameterShapes) {
			t.Errorf("Expected %d parameter tensors, got %d", len(spec.ParameterShapes), len(model.Weights))
		}
		// bias tensors start at zero
		bias := model.Weights[1]
		for i, v := range bias.Data {
			if v != 0 {
				t.Errorf("bias[%d] = %v, expected 0", i, v)
			}
		}
	})

	t.Run("RejectsModelWithoutSoftmax", func(t *testing.T) {
		spec := compileModel(t, func(b *layers.ModelBuilder) *layers.ModelBuilder {
			return b.AddFlatten("flatten").AddDense(3, true, "fc")
		}, []int{4, 4, 1})

		if _, err := NewModel(spec, 0); err == nil {
			t.Error("Expected error for model without softmax output")
		}
	})

	t.Run("DeterministicInit", func(t *testing.T) {
		spec := compileModel(t, func(b *layers.ModelBuilder) *layers.ModelBuilder {
			return b.AddFlatten("flatten").AddDense(3, true, "fc").AddSoftmax("softmax")
		}, []int{4, 4, 1})

		m1, _ := NewModel(spec, 42)
		m2, _ := NewModel(spec, 42)
		for i := range m1.Weights[0].Data {
			if m1.Weights[0].Data[i] != m2.Weights[0].Data[i] {
				t.Fatal("Same seed must produce identical weights")
			}
		}
	})
}

func TestForward(t *testing.T) {
	spec := compileModel(t, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddConv2D(2, 2, true, "conv").
			AddReLU("relu").
			AddMaxPool2D(2, "pool").
			AddFlatten("flatten").
			AddDense(3, true, "fc").
			AddSoftmax("softmax")
	}, []int{5, 5, 1})

	model, err := NewModel(spec, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	x, _ := tensor.New(4, 5, 5, 1)
	for i := range x.Data {
		x.Data[i] = float32(i%7) * 0.1
	}

	probs, err := model.Forward(x, false)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !tensor.ShapesEqual(probs.Shape, []int{4, 3}) {
		t.Fatalf("Output shape = %v, expected [4 3]", probs.Shape)
	}

	// softmax rows sum to 1
	for b := 0; b < 4; b++ {
		sum := 0.0
		for c := 0; c < 3; c++ {
			v := probs.Data[b*3+c]
			if v < 0 || v > 1 {
				t.Errorf("prob out of range: %v", v)
			}
			sum += float64(v)
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Errorf("row %d sums to %v, expected 1", b, sum)
		}
	}

	t.Run("ShapeMismatch", func(t *testing.T) {
		bad, _ := tensor.New(4, 6, 6, 1)
		if _, err := model.Forward(bad, false); err == nil {
			t.Error("Expected input shape error")
		}
	})
}

func TestPredict(t *testing.T) {
	spec := compileModel(t, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddFlatten("flatten").AddDense(2, false, "fc").AddSoftmax("softmax")
	}, []int{1, 1, 2})

	model, err := NewModel(spec, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// identity weights: class = argmax of the two input pixels
	w := model.Weights[0]
	w.Data[0], w.Data[1] = 1, 0
	w.Data[2], w.Data[3] = 0, 1

	x, _ := tensor.FromData([]float32{3, 1, 0.2, 0.9}, 2, 1, 1, 2)
	preds, err := model.Predict(x)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if preds[0] != 0 || preds[1] != 1 {
		t.Errorf("Predictions = %v, expected [0 1]", preds)
	}
}

func TestDropoutModes(t *testing.T) {
	spec := compileModel(t, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddFlatten("flatten").
			AddDropout(0.9, "dropout").
			AddDense(2, true, "fc").
			AddSoftmax("softmax")
	}, []int{2, 2, 1})

	model, err := NewModel(spec, 7)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	x, _ := tensor.FromData([]float32{1, 2, 3, 4}, 1, 2, 2, 1)

	ref, err := model.Forward(x, false)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	again, err := model.Forward(x, false)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	for i := range ref.Data {
		if ref.Data[i] != again.Data[i] {
			t.Fatal("Inference must be deterministic with dropout disabled")
		}
	}
}

// TestGradientCheck verifies analytic gradients against central finite
// differences on a small model covering every layer type.
func TestGradientCheck(t *testing.T) {
	spec := compileModel(t, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddConv2D(2, 2, true, "conv").
			AddReLU("relu").
			AddMaxPool2D(2, "pool").
			AddFlatten("flatten").
			AddDense(3, true, "fc").
			AddSoftmax("softmax")
	}, []int{5, 5, 1})

	model, err := NewModel(spec, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	x, _ := tensor.New(2, 5, 5, 1)
	for i := range x.Data {
		x.Data[i] = float32(math.Sin(float64(i))) * 0.5
	}
	labelIdx := []int{1, 2}

	if _, err := model.Forward(x, true); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	grads, err := model.Backward(labelIdx)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	lossAt := func() float64 {
		if _, err := model.Forward(x, true); err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		loss, err := model.Loss(labelIdx)
		if err != nil {
			t.Fatalf("Loss failed: %v", err)
		}
		return loss
	}

	const eps = 1e-2
	for wi, w := range model.Weights {
		for i := 0; i < len(w.Data); i += 5 {
			orig := w.Data[i]

			w.Data[i] = orig + eps
			plus := lossAt()
			w.Data[i] = orig - eps
			minus := lossAt()
			w.Data[i] = orig

			numeric := (plus - minus) / (2 * eps)
			analytic := float64(grads[wi].Data[i])

			diff := math.Abs(numeric - analytic)
			scale := math.Max(math.Abs(numeric)+math.Abs(analytic), 1e-2)
			if diff/scale > 0.05 {
				t.Errorf("weight %d[%d]: analytic %v vs numeric %v", wi, i, analytic, numeric)
			}
		}
	}
}

func TestSetWeights(t *testing.T) {
	spec := compileModel(t, func(b *layers.ModelBuilder) *layers.ModelBuilder {
		return b.AddFlatten("flatten").AddDense(2, true, "fc").AddSoftmax("softmax")
	}, []int{2, 2, 1})

	model, _ := NewModel(spec, 0)
	other, _ := NewModel(spec, 99)

	if err := model.SetWeights(other.Weights); err != nil {
		t.Fatalf("SetWeights failed: %v", err)
	}
	if model.Weights[0].Data[0] != other.Weights[0].Data[0] {
		t.Error("Weights not replaced")
	}

	bad, _ := tensor.New(3, 3)
	if err := model.SetWeights([]*tensor.Tensor{bad, model.Weights[1]}); err == nil {
		t.Error("Expected shape mismatch error")
	}
}
