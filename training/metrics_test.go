package training

import (
	"math"
	"strings"
	"testing"
)

func mustMatrix(t *testing.T, numClasses int) *ConfusionMatrix {
	t.Helper()
	cm, err := NewConfusionMatrix(numClasses)
	if err != nil {
		t.Fatalf("NewConfusionMatrix failed: %v", err)
	}
	return cm
}

func TestConfusionMatrix(t *testing.T) {
	t.Run("Creation", func(t *testing.T) {
		cm := mustMatrix(t, 3)
		if cm.NumClasses != 3 {
			t.Errorf("NumClasses = %d, expected 3", cm.NumClasses)
		}
		if len(cm.Matrix) != 3 {
			t.Fatalf("Matrix has %d rows, expected 3", len(cm.Matrix))
		}
		for i, row := range cm.Matrix {
			if len(row) != 3 {
				t.Errorf("Row %d has %d columns, expected 3", i, len(row))
			}
		}
	})

	t.Run("InvalidSize", func(t *testing.T) {
		if _, err := NewConfusionMatrix(0); err == nil {
			t.Error("Expected error for zero classes")
		}
	})

	t.Run("AddAndTotals", func(t *testing.T) {
		cm := mustMatrix(t, 2)
		// 3 correct class 0, 1 correct class 1, 2 confusions 1->0
		for i := 0; i < 3; i++ {
			if err := cm.Add(0, 0); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
		}
		cm.Add(1, 1)
		cm.Add(1, 0)
		cm.Add(1, 0)

		if cm.TotalSamples != 6 {
			t.Errorf("TotalSamples = %d, expected 6", cm.TotalSamples)
		}
		sum := 0
		for _, row := range cm.Matrix {
			for _, v := range row {
				sum += v
			}
		}
		if sum != 6 {
			t.Errorf("Matrix cell sum = %d, expected 6 (one cell per sample)", sum)
		}
		if cm.Matrix[1][0] != 2 {
			t.Errorf("Matrix[1][0] = %d, expected 2", cm.Matrix[1][0])
		}
	})

	t.Run("AccuracyPrecisionRecall", func(t *testing.T) {
		cm := mustMatrix(t, 2)
		cm.Add(0, 0)
		cm.Add(0, 0)
		cm.Add(0, 1)
		cm.Add(1, 1)
		cm.Add(1, 0)

		if acc := cm.Accuracy(); math.Abs(acc-0.6) > 1e-9 {
			t.Errorf("Accuracy = %f, expected 0.6", acc)
		}
		// class 0: predicted-0 column is {2, 1}, true-0 row is {2, 1}
		if p := cm.Precision(0); math.Abs(p-2.0/3.0) > 1e-9 {
			t.Errorf("Precision(0) = %f, expected 2/3", p)
		}
		if r := cm.Recall(0); math.Abs(r-2.0/3.0) > 1e-9 {
			t.Errorf("Recall(0) = %f, expected 2/3", r)
		}
		if r := cm.Recall(1); math.Abs(r-0.5) > 1e-9 {
			t.Errorf("Recall(1) = %f, expected 0.5", r)
		}
	})

	t.Run("OutOfRangeRejected", func(t *testing.T) {
		cm := mustMatrix(t, 2)
		if err := cm.Add(2, 0); err == nil {
			t.Error("Expected error for true label out of range")
		}
		if err := cm.Add(0, -1); err == nil {
			t.Error("Expected error for predicted label out of range")
		}
	})

	t.Run("EmptyMatrixMetrics", func(t *testing.T) {
		cm := mustMatrix(t, 2)
		if acc := cm.Accuracy(); acc != 0 {
			t.Errorf("Accuracy of empty matrix = %f, expected 0", acc)
		}
		if p := cm.Precision(0); p != 0 {
			t.Errorf("Precision with no predictions = %f, expected 0", p)
		}
		if r := cm.Recall(0); r != 0 {
			t.Errorf("Recall with no samples = %f, expected 0", r)
		}
	})
}

func TestConfusionMatrixCSV(t *testing.T) {
	cm := mustMatrix(t, 2)
	cm.Add(0, 0)
	cm.Add(0, 0)
	cm.Add(1, 0)
	cm.Add(1, 1)

	t.Run("Format", func(t *testing.T) {
		var buf strings.Builder
		if err := cm.WriteCSV(&buf, []string{"catA", "catB"}); err != nil {
			t.Fatalf("WriteCSV failed: %v", err)
		}
		expected := ",catA,catB\ncatA,2,0\ncatB,1,1\n"
		if buf.String() != expected {
			t.Errorf("CSV content mismatch:\ngot:\n%s\nexpected:\n%s", buf.String(), expected)
		}
	})

	t.Run("LabelCountMismatch", func(t *testing.T) {
		var buf strings.Builder
		if err := cm.WriteCSV(&buf, []string{"catA"}); err == nil {
			t.Error("Expected error when label names do not cover all classes")
		}
	})
}
