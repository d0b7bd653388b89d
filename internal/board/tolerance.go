package board

import "math"

// NoiseFloor is the highest resistance reading treated as zero ohms.
const NoiseFloor = 15.0

// Tolerance is an acceptance window around an expected value.
type Tolerance struct {
	// Percent is a fraction of the expected value (0.05 for 5%).
	Percent float64
	// Absolute is a fixed allowance, used when Percent is zero.
	Absolute float64
	// Floor is the pass threshold when the expected value is zero.
	Floor float64
}

// Percent returns a percentage window with the default zero floor.
func Percent(p float64) Tolerance {
	return Tolerance{Percent: p, Floor: NoiseFloor}
}

// Absolute returns a fixed allowance window.
func Absolute(a float64) Tolerance {
	return Tolerance{Absolute: a}
}

// Check reports whether measured is acceptable for expected.
func (t Tolerance) Check(expected, measured float64) bool {
	if t.Percent == 0 {
		return math.Abs(measured-expected) <= t.Absolute
	}
	if expected == 0 {
		return measured < t.Floor
	}
	return math.Abs(measured-expected) <= math.Abs(expected)*t.Percent
}
