package engine

import (
	"fmt"
	"math"

	"glyphnet/layers"
	"glyphnet/tensor"
)

// Forward runs the model over a batch shaped (N, H, W, C) matching the
// spec's per-sample input shape. In training mode dropout is active and
// intermediate activations are cached for Backward.
func (m *Model) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != len(m.Spec.InputShape)+1 {
		return nil, fmt.Errorf("input shape %v doesn't match spec input %v plus batch dimension",
			x.Shape, m.Spec.InputShape)
	}
	for i, dim := range m.Spec.InputShape {
		if x.Shape[i+1] != dim {
			return nil, fmt.Errorf("input shape %v doesn't match spec input %v plus batch dimension",
				x.Shape, m.Spec.InputShape)
		}
	}

	n := m.Spec.Layers
	m.inputs = make([]*tensor.Tensor, len(n))
	m.masks = make([][]bool, len(n))
	m.poolIdx = make([][]int, len(n))
	m.batchLen = x.Shape[0]

	var err error
	for i := range n {
		layer := &n[i]
		m.inputs[i] = x

		switch layer.Type {
		case layers.Conv2D:
			x, err = m.conv2DForward(i, layer, x)
		case layers.Dense:
			x, err = m.denseForward(i, layer, x)
		case layers.ReLU:
			x = m.reluForward(i, x)
		case layers.MaxPool2D:
			x, err = m.maxPoolForward(i, layer, x)
		case layers.Dropout:
			x, err = m.dropoutForward(i, layer, x, training)
		case layers.Flatten:
			x, err = x.Reshape(x.Shape[0], layer.OutputShape[0])
		case layers.Softmax:
			x = softmaxForward(x)
		default:
			return nil, fmt.Errorf("unsupported layer type: %s", layer.Type.String())
		}
		if err != nil {
			return nil, fmt.Errorf("forward pass failed at layer %s: %w", layer.Name, err)
		}
	}

	m.probs = x
	return x, nil
}

// Predict runs inference and returns the argmax class index per sample.
func (m *Model) Predict(x *tensor.Tensor) ([]int, error) {
	probs, err := m.Forward(x, false)
	if err != nil {
		return nil, err
	}

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
	return out, nil
}

// Loss computes mean sparse categorical cross entropy against the cached
// softmax output of the last Forward call.
func (m *Model) Loss(labelIdx []int) (float64, error) {
	if m.probs == nil {
		return 0, fmt.Errorf("no forward pass has been run")
	}
	batch := m.probs.Shape[0]
	classes := m.probs.Shape[1]
	if len(labelIdx) != batch {
		return 0, fmt.Errorf("got %d labels for batch of %d", len(labelIdx), batch)
	}

	total := 0.0
	for b, label := range labelIdx {
		if label < 0 || label >= classes {
			return 0, fmt.Errorf("label %d out of range [0, %d)", label, classes)
		}
		p := float64(m.probs.Data[b*classes+label])
		if p < 1e-12 {
			p = 1e-12
		}
		total += -math.Log(p)
	}
	return total / float64(batch), nil
}

func (m *Model) conv2DForward(idx int, layer *layers.LayerSpec, x *tensor.Tensor) (*tensor.Tensor, error) {
	params := m.layerParams(idx)
	kernel := params[0]
	var bias *tensor.Tensor
	if len(params) > 1 {
		bias = params[1]
	}

	batch := x.Shape[0]
	inH, inW, inC := x.Shape[1], x.Shape[2], x.Shape[3]
	k := kernel.Shape[0]
	outC := kernel.Shape[3]
	outH := inH - k + 1
	outW := inW - k + 1

	out, err := tensor.New(batch, outH, outW, outC)
	if err != nil {
		return nil, err
	}

	for b := 0; b < batch; b++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				outBase := ((b*outH+oy)*outW + ox) * outC
				for ky := 0; ky < k; ky++ {
					inRow := ((b*inH+oy+ky)*inW + ox) * inC
					kRow := ky * k * inC * outC
					for kx := 0; kx < k; kx++ {
						inBase := inRow + kx*inC
						kBase := kRow + kx*inC*outC
						for ic := 0; ic < inC; ic++ {
							v := x.Data[inBase+ic]
							if v == 0 {
								continue
							}
							wBase := kBase + ic*outC
							for oc := 0; oc < outC; oc++ {
								out.Data[outBase+oc] += v * kernel.Data[wBase+oc]
							}
						}
					}
				}
				if bias != nil {
					for oc := 0; oc < outC; oc++ {
						out.Data[outBase+oc] += bias.Data[oc]
					}
				}
			}
		}
	}

	return out, nil
}

func (m *Model) denseForward(idx int, layer *layers.LayerSpec, x *tensor.Tensor) (*tensor.Tensor, error) {
	params := m.layerParams(idx)
	weights := params[0]
	var bias *tensor.Tensor
	if len(params) > 1 {
		bias = params[1]
	}

	batch := x.Shape[0]
	inSize := weights.Shape[0]
	outSize := weights.Shape[1]

	flat := x
	if len(x.Shape) != 2 {
		var err error
		flat, err = x.Reshape(batch, inSize)
		if err != nil {
			return nil, err
		}
	}

	out, err := tensor.New(batch, outSize)
	if err != nil {
		return nil, err
	}

	for b := 0; b < batch; b++ {
		inBase := b * inSize
		outBase := b * outSize
		for i := 0; i < inSize; i++ {
			v := flat.Data[inBase+i]
			if v == 0 {
				continue
			}
			wBase := i * outSize
			for o := 0; o < outSize; o++ {
				out.Data[outBase+o] += v * weights.Data[wBase+o]
			}
		}
		if bias != nil {
			for o := 0; o < outSize; o++ {
				out.Data[outBase+o] += bias.Data[o]
			}
		}
	}

	return out, nil
}

func (m *Model) reluForward(idx int, x *tensor.Tensor) *tensor.Tensor {
	out := x.Clone()
	mask := make([]bool, len(out.Data))
	for i, v := range out.Data {
		if v > 0 {
			mask[i] = true
		} else {
			out.Data[i] = 0
		}
	}
	m.masks[idx] = mask
	return out
}

func (m *Model) maxPoolForward(idx int, layer *layers.LayerSpec, x *tensor.Tensor) (*tensor.Tensor, error) {
	p, err := layer.ParamInt("pool_size")
	if err != nil {
		return nil, err
	}

	batch := x.Shape[0]
	inH, inW, channels := x.Shape[1], x.Shape[2], x.Shape[3]
	outH := inH / p
	outW := inW / p

	out, err := tensor.New(batch, outH, outW, channels)
	if err != nil {
		return nil, err
	}
	argmax := make([]int, len(out.Data))

	for b := 0; b < batch; b++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				for c := 0; c < channels; c++ {
					bestIdx := ((b*inH+oy*p)*inW+ox*p)*channels + c
					bestVal := x.Data[bestIdx]
					for py := 0; py < p; py++ {
						for px := 0; px < p; px++ {
							inIdx := ((b*inH+oy*p+py)*inW+ox*p+px)*channels + c
							if x.Data[inIdx] > bestVal {
								bestVal = x.Data[inIdx]
								bestIdx = inIdx
							}
						}
					}
					outIdx := ((b*outH+oy)*outW+ox)*channels + c
					out.Data[outIdx] = bestVal
					argmax[outIdx] = bestIdx
				}
			}
		}
	}

	m.poolIdx[idx] = argmax
	return out, nil
}

func (m *Model) dropoutForward(idx int, layer *layers.LayerSpec, x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if !training {
		return x, nil
	}

	rate, err := layer.ParamFloat("rate")
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		return x, nil
	}
	if rate >= 1 {
		return nil, fmt.Errorf("dropout rate %v must be below 1", rate)
	}

	keep := 1 - rate
	scale := 1 / keep
	out := x.Clone()
	mask := make([]bool, len(out.Data))
	for i := range out.Data {
		if float32(m.rng.Float64()) < keep {
			mask[i] = true
			out.Data[i] *= scale
		} else {
			out.Data[i] = 0
		}
	}
	m.masks[idx] = mask
	return out, nil
}

// softmaxForward computes a numerically stable row-wise softmax over the
// last dimension of a (batch, classes) tensor.
func softmaxForward(x *tensor.Tensor) *tensor.Tensor {
	out := x.Clone()
	batch := x.Shape[0]
	classes := x.Shape[1]

	for b := 0; b < batch; b++ {
		base := b * classes
		maxVal := out.Data[base]
		for c := 1; c < classes; c++ {
			if out.Data[base+c] > maxVal {
				maxVal = out.Data[base+c]
			}
		}

		sum := 0.0
		for c := 0; c < classes; c++ {
			e := math.Exp(float64(out.Data[base+c] - maxVal))
			out.Data[base+c] = float32(e)
			sum += e
		}
		for c := 0; c < classes; c++ {
			out.Data[base+c] = float32(float64(out.Data[base+c]) / sum)
		}
	}

	return out
}
