package engine

import (
	"fmt"

	"glyphnet/layers"
	"glyphnet/tensor"
)

// Backward computes parameter gradients for mean sparse categorical cross
// entropy against labelIdx, using activations cached by the preceding
// Forward call. The softmax gradient is fused with the loss. Returned
// gradients are ordered like Weights.
func (m *Model) Backward(labelIdx []int) ([]*tensor.Tensor, error) {
	if m.probs == nil {
		return nil, fmt.Errorf("no forward pass has been run")
	}

	batch := m.probs.Shape[0]
	classes := m.probs.Shape[1]
	if len(labelIdx) != batch {
		return nil, fmt.Errorf("got %d labels for batch of %d", len(labelIdx), batch)
	}

	grads := make([]*tensor.Tensor, len(m.Weights))
	for i, w := range m.Weights {
		g, err := tensor.New(w.Shape...)
		if err != nil {
			return nil, err
		}
		grads[i] = g
	}

	// Fused softmax + cross entropy: dLogits = (probs - onehot) / batch.
	d := m.probs.Clone()
	inv := float32(1.0 / float64(batch))
	for b, label := range labelIdx {
		if label < 0 || label >= classes {
			return nil, fmt.Errorf("label %d out of range [0, %d)", label, classes)
		}
		base := b * classes
		for c := 0; c < classes; c++ {
			d.Data[base+c] *= inv
		}
		d.Data[base+label] -= inv
	}

	specLayers := m.Spec.Layers
	for i := len(specLayers) - 1; i >= 0; i-- {
		layer := &specLayers[i]

		var err error
		switch layer.Type {
		case layers.Softmax:
			if i != len(specLayers)-1 {
				return nil, fmt.Errorf("softmax must be the final layer")
			}
			// gradient already fused with the loss above
		case layers.Dense:
			d, err = m.denseBackward(i, d, grads)
		case layers.Conv2D:
			d, err = m.conv2DBackward(i, d, grads)
		case layers.ReLU:
			d = applyMask(d, m.masks[i], 1)
		case layers.Dropout:
			d, err = m.dropoutBackward(i, layer, d)
		case layers.MaxPool2D:
			d, err = m.maxPoolBackward(i, d)
		case layers.Flatten:
			d, err = d.Reshape(m.inputs[i].Shape...)
		default:
			return nil, fmt.Errorf("unsupported layer type: %s", layer.Type.String())
		}
		if err != nil {
			return nil, fmt.Errorf("backward pass failed at layer %s: %w", layer.Name, err)
		}
	}

	return grads, nil
}

func (m *Model) denseBackward(idx int, d *tensor.Tensor, grads []*tensor.Tensor) (*tensor.Tensor, error) {
	params := m.layerParams(idx)
	weights := params[0]
	hasBias := len(params) > 1

	input := m.inputs[idx]
	batch := input.Shape[0]
	inSize := weights.Shape[0]
	outSize := weights.Shape[1]

	flat := input
	if len(input.Shape) != 2 {
		var err error
		flat, err = input.Reshape(batch, inSize)
		if err != nil {
			return nil, err
		}
	}

	gradBase := m.paramOffset[idx]
	dW := grads[gradBase]
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
				dW.Data[wBase+o] += v * d.Data[outBase+o]
			}
		}
	}

	if hasBias {
		dB := grads[gradBase+1]
		for b := 0; b < batch; b++ {
			outBase := b * outSize
			for o := 0; o < outSize; o++ {
				dB.Data[o] += d.Data[outBase+o]
			}
		}
	}

	dx, err := tensor.New(batch, inSize)
	if err != nil {
		return nil, err
	}
	for b := 0; b < batch; b++ {
		inBase := b * inSize
		outBase := b * outSize
		for o := 0; o < outSize; o++ {
			g := d.Data[outBase+o]
			if g == 0 {
				continue
			}
			for i := 0; i < inSize; i++ {
				dx.Data[inBase+i] += g * weights.Data[i*outSize+o]
			}
		}
	}

	if len(input.Shape) != 2 {
		return dx.Reshape(input.Shape...)
	}
	return dx, nil
}

func (m *Model) conv2DBackward(idx int, d *tensor.Tensor, grads []*tensor.Tensor) (*tensor.Tensor, error) {
	params := m.layerParams(idx)
	kernel := params[0]
	hasBias := len(params) > 1

	input := m.inputs[idx]
	batch := input.Shape[0]
	inH, inW, inC := input.Shape[1], input.Shape[2], input.Shape[3]
	k := kernel.Shape[0]
	outC := kernel.Shape[3]
	outH := d.Shape[1]
	outW := d.Shape[2]

	gradBase := m.paramOffset[idx]
	dK := grads[gradBase]

	dx, err := tensor.New(batch, inH, inW, inC)
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
							v := input.Data[inBase+ic]
							wBase := kBase + ic*outC
							for oc := 0; oc < outC; oc++ {
								g := d.Data[outBase+oc]
								if g == 0 {
									continue
								}
								dK.Data[wBase+oc] += v * g
								dx.Data[inBase+ic] += kernel.Data[wBase+oc] * g
							}
						}
					}
				}
			}
		}
	}

	if hasBias {
		dB := grads[gradBase+1]
		for i := 0; i < len(d.Data); i += outC {
			for oc := 0; oc < outC; oc++ {
				dB.Data[oc] += d.Data[i+oc]
			}
		}
	}

	return dx, nil
}

func (m *Model) dropoutBackward(idx int, layer *layers.LayerSpec, d *tensor.Tensor) (*tensor.Tensor, error) {
	mask := m.masks[idx]
	if mask == nil {
		// dropout was inactive (inference mode or zero rate)
		return d, nil
	}

	rate, err := layer.ParamFloat("rate")
	if err != nil {
		return nil, err
	}
	return applyMask(d, mask, 1/(1-rate)), nil
}

func (m *Model) maxPoolBackward(idx int, d *tensor.Tensor) (*tensor.Tensor, error) {
	argmax := m.poolIdx[idx]
	if argmax == nil {
		return nil, fmt.Errorf("no cached pool indices")
	}

	input := m.inputs[idx]
	dx, err := tensor.New(input.Shape...)
	if err != nil {
		return nil, err
	}
	for outIdx, inIdx := range argmax {
		dx.Data[inIdx] += d.Data[outIdx]
	}
	return dx, nil
}

// applyMask zeroes masked-out gradient entries and scales the rest.
func applyMask(d *tensor.Tensor, mask []bool, scale float32) *tensor.Tensor {
	out := d.Clone()
	for i := range out.Data {
		if mask[i] {
			out.Data[i] *= scale
		} else {
			out.Data[i] = 0
		}
	}
	return out
}
