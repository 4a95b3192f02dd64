package augment

import (
	"testing"
)

func TestAffine(t *testing.T) {
	const h, w = 8, 8
	src := make([]float32, h*w)
	src[3*w+4] = 1 // lone bright pixel

	t.Run("Deterministic", func(t *testing.T) {
		a1 := New(20, 0.1, 42)
		a2 := New(20, 0.1, 42)

		dst1 := make([]float32, h*w)
		dst2 := make([]float32, h*w)
		a1.Apply(dst1, src, h, w)
		a2.Apply(dst2, src, h, w)

		for i := range dst1 {
			if dst1[i] != dst2[i] {
				t.Fatal("Same seed must produce identical perturbations")
			}
		}
	})

	t.Run("ZeroPerturbationIsIdentity", func(t *testing.T) {
		a := New(0, 0, 1)
		dst := make([]float32, h*w)
		a.Apply(dst, src, h, w)

		for i := range src {
			if dst[i] != src[i] {
				t.Fatalf("pixel %d changed under zero-magnitude augmentation", i)
			}
		}
	})

	t.Run("MassPreservedForSmallShift", func(t *testing.T) {
		// A pure translation must move the bright pixel, not duplicate or
		// lose it (it stays within bounds for small shifts).
		a := New(0, 0.1, 3)
		dst := make([]float32, h*w)
		a.Apply(dst, src, h, w)

		count := 0
		for _, v := range dst {
			if v == 1 {
				count++
			}
		}
		if count != 1 {
			t.Errorf("bright pixel count = %d, expected 1", count)
		}
	})

	t.Run("OutOfBoundsPixelsZero", func(t *testing.T) {
		bright := make([]float32, h*w)
		for i := range bright {
			bright[i] = 1
		}

		a := New(0, 0.5, 9)
		dst := make([]float32, h*w)

		zeros := 0
		for draw := 0; draw < 10; draw++ {
			a.Apply(dst, bright, h, w)
			for _, v := range dst {
				if v == 0 {
					zeros++
				}
			}
		}
		if zeros == 0 {
			t.Error("expected zero-filled pixels at the shifted-in border")
		}
	})
}
