// Package augment applies random affine perturbations to grayscale image
// grids for training-time data augmentation.
package augment

import (
	"math"
	"math/rand"
)

// Affine draws a random rotation and translation per image. Sampling is
// nearest neighbour around the image center; pixels mapped from outside
// the source are zero.
type Affine struct {
	MaxRotateDeg float64 // rotation drawn uniformly from [-MaxRotateDeg, MaxRotateDeg]
	MaxShiftFrac float64 // translation per axis, fraction of the image extent
	rng          *rand.Rand
}

// New creates an augmenter with its own seeded random source, leaving the
// process-wide generator untouched.
func New(maxRotateDeg, maxShiftFrac float64, seed int64) *Affine {
	return &Affine{
		MaxRotateDeg: maxRotateDeg,
		MaxShiftFrac: maxShiftFrac,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// Apply perturbs one height x width image into dst. src and dst must both
// hold height*width values and must not alias.
func (a *Affine) Apply(dst, src []float32, height, width int) {
	angle := (a.rng.Float64()*2 - 1) * a.MaxRotateDeg * math.Pi / 180
	shiftY := (a.rng.Float64()*2 - 1) * a.MaxShiftFrac * float64(height)
	shiftX := (a.rng.Float64()*2 - 1) * a.MaxShiftFrac * float64(width)

	sin, cos := math.Sincos(angle)
	cy := float64(height-1) / 2
	cx := float64(width-1) / 2

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// inverse mapping: rotate about the center, then shift
			dy := float64(y) - cy - shiftY
			dx := float64(x) - cx - shiftX
			srcY := cos*dy + sin*dx + cy
			srcX := -sin*dy + cos*dx + cx

			sy := int(math.Round(srcY))
			sx := int(math.Round(srcX))

			var v float32
			if sy >= 0 && sy < height && sx >= 0 && sx < width {
				v = src[sy*width+sx]
			}
			dst[y*width+x] = v
		}
	}
}
