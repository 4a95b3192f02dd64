// Package dataset discovers labeled image files beneath a directory tree
// and partitions them into train and test subsets.
package dataset

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"glyphnet/tensor"
	"glyphnet/vision/preprocessing"
)

// LabelMode selects the naming convention used to derive a class label
// from an image path.
type LabelMode string

const (
	// ModeMNIST reads the label from the immediate parent directory name.
	ModeMNIST LabelMode = "mnist"
	// ModeChinese reads the label from the filename substring after the
	// last underscore and before the first dot.
	ModeChinese LabelMode = "chinese"
)

// ParseLabelMode validates a mode string. Unsupported values are an
// explicit error rather than silently producing no labels.
func ParseLabelMode(s string) (LabelMode, error) {
	switch LabelMode(s) {
	case ModeMNIST, ModeChinese:
		return LabelMode(s), nil
	default:
		return "", fmt.Errorf("unsupported input type %q (expected %q or %q)", s, ModeMNIST, ModeChinese)
	}
}

// ExtractLabel derives the label string for one file path.
func ExtractLabel(path string, mode LabelMode) (string, error) {
	var label string
	switch mode {
	case ModeMNIST:
		label = filepath.Base(filepath.Dir(path))
	case ModeChinese:
		name := filepath.Base(path)
		if dot := strings.IndexByte(name, '.'); dot >= 0 {
			name = name[:dot]
		}
		if under := strings.LastIndexByte(name, '_'); under >= 0 {
			name = name[under+1:]
		}
		label = name
	default:
		return "", fmt.Errorf("unsupported input type %q", mode)
	}

	if label == "" || label == "." || label == string(filepath.Separator) {
		return "", fmt.Errorf("no label derivable from path %q with mode %q", path, mode)
	}
	return label, nil
}

// Data is a fully loaded, memory-resident dataset: stacked image tensor,
// per-sample integer labels and the label bijection they index into.
type Data struct {
	Images *tensor.Tensor // (N, 28, 28, 1)
	Labels []int
	Index  *LabelIndex
	Paths  []string
}

// Len returns the number of samples.
func (d *Data) Len() int {
	return len(d.Labels)
}

// Load walks root recursively, decodes every regular file as a grayscale
// image (fail fast on the first undecodable file), derives labels per mode
// and builds the sorted label bijection. Files are visited in lexical walk
// order, so sample order is stable across runs.
func Load(root string, mode LabelMode, workers int) (*Data, error) {
	if _, err := ParseLabelMode(string(mode)); err != nil {
		return nil, err
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found under %s", root)
	}

	labels := make([]string, len(paths))
	for i, path := range paths {
		label, err := ExtractLabel(path, mode)
		if err != nil {
			return nil, err
		}
		labels[i] = label
	}

	index := NewLabelIndex(labels)
	labelIdx := make([]int, len(labels))
	for i, label := range labels {
		idx, ok := index.Lookup(label)
		if !ok {
			return nil, fmt.Errorf("label %q missing from index", label)
		}
		labelIdx[i] = idx
	}

	images, err := preprocessing.LoadImages(paths, workers)
	if err != nil {
		return nil, err
	}

	return &Data{
		Images: images,
		Labels: labelIdx,
		Index:  index,
		Paths:  paths,
	}, nil
}

// Subset gathers the given sample indices into a new Data sharing the
// label index.
func (d *Data) Subset(indices []int) (*Data, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty subset")
	}

	sampleSize := 1
	for _, dim := range d.Images.Shape[1:] {
		sampleSize *= dim
	}

	shape := append([]int{len(indices)}, d.Images.Shape[1:]...)
	images, err := tensor.New(shape...)
	if err != nil {
		return nil, err
	}

	labels := make([]int, len(indices))
	paths := make([]string, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= d.Len() {
			return nil, fmt.Errorf("index %d out of range [0, %d)", idx, d.Len())
		}
		copy(images.Data[i*sampleSize:(i+1)*sampleSize], d.Images.Data[idx*sampleSize:(idx+1)*sampleSize])
		labels[i] = d.Labels[idx]
		paths[i] = d.Paths[idx]
	}

	return &Data{
		Images: images,
		Labels: labels,
		Index:  d.Index,
		Paths:  paths,
	}, nil
}

// Sample returns the pixels of the image at index i as a slice view over
// the stacked data.
func (d *Data) Sample(i int) []float32 {
	sampleSize := 1
	for _, dim := range d.Images.Shape[1:] {
		sampleSize *= dim
	}
	return d.Images.Data[i*sampleSize : (i+1)*sampleSize]
}
