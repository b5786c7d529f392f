package vector

import "math"

// unitTolerance bounds how far a vector's norm may be from 1 and still count as unit length.
const unitTolerance = 1e-3

// SquaredL2 returns the squared Euclidean distance between a and b.
// For unit vectors it equals 2 - 2*cos(a, b), so it ranks identically to cosine similarity.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

// IsUnit reports whether x has L2 norm 1 within tolerance.
func IsUnit(x []float32) bool {
	return math.Abs(L2Norm(x)-1) <= unitTolerance
}
