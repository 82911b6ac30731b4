package frames

import "math"

// DBToLinear converts a gain in decibels to a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear amplitude factor to decibels. Non-positive factors map
// to negative infinity.
func LinearToDB(linear float64) float64 {
	if linear <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(linear)
}

// ApplyGain writes src scaled by gain into dst and returns the number of samples written.
func ApplyGain(dst, src []float32, gain float32) int {
	n := min(len(dst), len(src))
	if gain == 1 {
		return copy(dst[:n], src[:n])
	}
	for i := range n {
		dst[i] = src[i] * gain
	}
	return n
}
