package training

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// ConfusionMatrix represents a confusion matrix for classification tasks.
// Matrix is indexed [true class][predicted class].
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int
	TotalSamples int
}

// NewConfusionMatrix creates a new confusion matrix
func NewConfusionMatrix(numClasses int) (*ConfusionMatrix, error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("number of classes must be positive, got %d", numClasses)
	}
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}
	return &ConfusionMatrix{
		NumClasses: numClasses,
		Matrix:     matrix,
	}, nil
}

// Add records one (true, predicted) pair.
func (cm *ConfusionMatrix) Add(trueClass, predictedClass int) error {
	if trueClass < 0 || trueClass >= cm.NumClasses {
		return fmt.Errorf("true class %d out of range [0, %d)", trueClass, cm.NumClasses)
	}
	if predictedClass < 0 || predictedClass >= cm.NumClasses {
		return fmt.Errorf("predicted class %d out of range [0, %d)", predictedClass, cm.NumClasses)
	}
	cm.Matrix[trueClass][predictedClass]++
	cm.TotalSamples++
	return nil
}

// Accuracy returns the fraction of diagonal entries.
func (cm *ConfusionMatrix) Accuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

// Precision returns true positives over predicted positives for a class.
// Classes never predicted report zero.
func (cm *ConfusionMatrix) Precision(class int) float64 {
	predicted := 0
	for i := 0; i < cm.NumClasses; i++ {
		predicted += cm.Matrix[i][class]
	}
	if predicted == 0 {
		return 0
	}
	return float64(cm.Matrix[class][class]) / float64(predicted)
}

// Recall returns true positives over actual positives for a class.
// Classes with no samples report zero.
func (cm *ConfusionMatrix) Recall(class int) float64 {
	actual := 0
	for j := 0; j < cm.NumClasses; j++ {
		actual += cm.Matrix[class][j]
	}
	if actual == 0 {
		return 0
	}
	return float64(cm.Matrix[class][class]) / float64(actual)
}

// WriteCSV writes the matrix as a delimited table: first row and column
// carry the label names, cells carry counts.
func (cm *ConfusionMatrix) WriteCSV(w io.Writer, labelNames []string) error {
	if len(labelNames) != cm.NumClasses {
		return fmt.Errorf("got %d label names for %d classes", len(labelNames), cm.NumClasses)
	}

	cw := csv.NewWriter(w)

	header := append([]string{""}, labelNames...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, cm.NumClasses+1)
	for i := 0; i < cm.NumClasses; i++ {
		row[0] = labelNames[i]
		for j := 0; j < cm.NumClasses; j++ {
			row[j+1] = strconv.Itoa(cm.Matrix[i][j])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
