package training

import (
	"fmt"
	"os"

	"glyphnet/engine"
	"glyphnet/tblog"
	"glyphnet/vision/dataset"
)

// MaxMisclassifiedReports bounds how many misclassified samples are
// written to the event log.
const MaxMisclassifiedReports = 20

// Report holds the evaluation outcome over a held-out set.
type Report struct {
	Matrix      *ConfusionMatrix
	Predictions []int

	test *dataset.Data
}

// Evaluate runs one inference pass over the test set, taking the
// highest-probability class per sample, and builds the confusion matrix.
func Evaluate(model *engine.Model, test *dataset.Data) (*Report, error) {
	if test == nil || test.Len() == 0 {
		return nil, fmt.Errorf("test set is empty")
	}

	preds, err := model.Predict(test.Images)
	if err != nil {
		return nil, fmt.Errorf("predict test set: %w", err)
	}

	cm, err := NewConfusionMatrix(test.Index.Len())
	if err != nil {
		return nil, err
	}
	for i, pred := range preds {
		if err := cm.Add(test.Labels[i], pred); err != nil {
			return nil, err
		}
	}

	return &Report{Matrix: cm, Predictions: preds, test: test}, nil
}

// Misclassified returns the test-set indices whose prediction differs from
// the true label, in test-set order, capped at limit (unlimited when
// limit <= 0).
func (r *Report) Misclassified(limit int) []int {
	var out []int
	for i, pred := range r.Predictions {
		if pred != r.test.Labels[i] {
			out = append(out, i)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// WriteConfusionCSV writes the confusion matrix to path with label-string
// row and column headers.
func (r *Report) WriteConfusionCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create confusion matrix file: %w", err)
	}
	defer f.Close()

	if err := r.Matrix.WriteCSV(f, r.test.Index.Names()); err != nil {
		return err
	}
	return f.Close()
}

// WriteMisclassified emits up to MaxMisclassifiedReports misclassified test
// images to the event log, each tagged with its true and predicted label.
// The step matches the end-of-training epoch budget.
func (r *Report) WriteMisclassified(events *tblog.Writer, step int64) error {
	height := r.test.Images.Shape[1]
	width := r.test.Images.Shape[2]

	for _, idx := range r.Misclassified(MaxMisclassifiedReports) {
		trueName := r.test.Index.Name(r.test.Labels[idx])
		predName := r.test.Index.Name(r.Predictions[idx])
		tag := fmt.Sprintf("true %s: predicted %s", trueName, predName)

		if err := events.WriteImage(tag, step, r.test.Sample(idx), height, width); err != nil {
			return fmt.Errorf("write misclassified image %d: %w", idx, err)
		}
	}
	return nil
}
