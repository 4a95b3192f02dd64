package dataset

import (
	"fmt"
	"math/rand"
)

// SplitIndices partitions [0, n) into train and test index sets. The
// partition is a plain seeded random split with no stratification: the
// same n, testFraction and seed always produce the same partition.
// Test size is rounded up so a non-zero fraction always holds out at
// least one sample.
func SplitIndices(n int, testFraction float64, seed int64) (train, test []int, err error) {
	if n <= 0 {
		return nil, nil, fmt.Errorf("cannot split empty dataset")
	}
	if testFraction < 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %v must be in [0, 1)", testFraction)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	testSize := int(float64(n)*testFraction + 0.5)
	if testFraction > 0 && testSize == 0 {
		testSize = 1
	}
	if testSize >= n {
		testSize = n - 1
	}

	return indices[testSize:], indices[:testSize], nil
}

// Split partitions the dataset into train and test subsets using
// SplitIndices.
func (d *Data) Split(testFraction float64, seed int64) (train, test *Data, err error) {
	trainIdx, testIdx, err := SplitIndices(d.Len(), testFraction, seed)
	if err != nil {
		return nil, nil, err
	}

	train, err = d.Subset(trainIdx)
	if err != nil {
		return nil, nil, err
	}
	test, err = d.Subset(testIdx)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
