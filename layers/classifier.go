package layers

import (
	"fmt"
)

// NewImageClassifier builds the fixed convolutional classifier topology:
// two pairs of 3x3 convolutions (32 filters each), each pair followed by
// 2x2 max pooling and 25% dropout, then a 64-unit dense layer with 50%
// dropout and a softmax output sized to numClasses.
func NewImageClassifier(inputShape []int, numClasses int) (*ModelSpec, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("classifier needs at least 2 classes, got %d", numClasses)
	}

	builder := NewModelBuilder(inputShape).
		AddConv2D(32, 3, true, "conv1").
		AddReLU("relu1").
		AddConv2D(32, 3, true, "conv2").
		AddReLU("relu2").
		AddMaxPool2D(2, "pool1").
		AddDropout(0.25, "dropout1").
		AddConv2D(32, 3, true, "conv3").
		AddReLU("relu3").
		AddConv2D(32, 3, true, "conv4").
		AddReLU("relu4").
		AddMaxPool2D(2, "pool2").
		AddDropout(0.25, "dropout2").
		AddFlatten("flatten").
		AddDense(64, true, "fc1").
		AddReLU("relu5").
		AddDropout(0.5, "dropout3").
		AddDense(numClasses, true, "fc2").
		AddSoftmax("softmax")

	return builder.Compile()
}
