package training

import (
	"fmt"
	"math/rand"
	"sync"

	"glyphnet/tensor"
	"glyphnet/vision/augment"
	"glyphnet/vision/dataset"
)

// Batch represents a batch of images and their integer labels
type Batch struct {
	Images *tensor.Tensor // (B, H, W, C)
	Labels []int
}

// DataLoader is an infinite, restartable batch producer over a dataset.
// Each pass visits the samples in a freshly shuffled order; when fewer
// than a full batch remains the loader reshuffles and wraps, so partial
// batches are never emitted. An optional augmenter perturbs every image
// independently.
type DataLoader struct {
	data      *dataset.Data
	batchSize int
	augmenter *augment.Affine

	rng      *rand.Rand
	indices  []int
	position int
	mutex    sync.Mutex
}

// NewDataLoader creates a loader over data with its own seeded shuffle
// source. augmenter may be nil for unperturbed batches.
func NewDataLoader(data *dataset.Data, batchSize int, augmenter *augment.Affine, seed int64) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if data.Len() < batchSize {
		return nil, fmt.Errorf("dataset has %d samples, need at least one batch of %d", data.Len(), batchSize)
	}

	indices := make([]int, data.Len())
	for i := range indices {
		indices[i] = i
	}

	dl := &DataLoader{
		data:      data,
		batchSize: batchSize,
		augmenter: augmenter,
		rng:       rand.New(rand.NewSource(seed)),
		indices:   indices,
	}
	dl.shuffle()
	return dl, nil
}

// StepsPerEpoch returns how many batches constitute one epoch: dataset
// size over batch size, integer division.
func (dl *DataLoader) StepsPerEpoch() int {
	return dl.data.Len() / dl.batchSize
}

// BatchSize returns the configured batch size.
func (dl *DataLoader) BatchSize() int {
	return dl.batchSize
}

// Next produces the next batch. It never fails once constructed and never
// returns fewer than batchSize samples.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position+dl.batchSize > len(dl.indices) {
		dl.shuffle()
		dl.position = 0
	}
	batchIndices := dl.indices[dl.position : dl.position+dl.batchSize]
	dl.position += dl.batchSize

	sampleShape := dl.data.Images.Shape[1:]
	shape := append([]int{dl.batchSize}, sampleShape...)
	images, err := tensor.New(shape...)
	if err != nil {
		return nil, err
	}

	height, width := sampleShape[0], sampleShape[1]
	sampleSize := height * width * sampleShape[2]

	labels := make([]int, dl.batchSize)
	for i, idx := range batchIndices {
		dst := images.Data[i*sampleSize : (i+1)*sampleSize]
		src := dl.data.Sample(idx)
		if dl.augmenter != nil {
			dl.augmenter.Apply(dst, src, height, width)
		} else {
			copy(dst, src)
		}
		labels[i] = dl.data.Labels[idx]
	}

	return &Batch{Images: images, Labels: labels}, nil
}

func (dl *DataLoader) shuffle() {
	dl.rng.Shuffle(len(dl.indices), func(i, j int) {
		dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
	})
}
