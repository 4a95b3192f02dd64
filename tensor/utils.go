package tensor

// ShapesEqual reports whether two shapes match exactly.
func ShapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NumElementsFor returns the element count implied by a shape, or 0 for an
// empty shape.
func NumElementsFor(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}
