package synth

import (
	"math"
)

// ToPCM16 converts engine samples to signed 16-bit PCM. Out of range values
// saturate; in range values truncate toward zero. NaN becomes 0.
func ToPCM16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = clip(s)
	}
	return out
}

func clip(s float64) int16 {
	switch {
	case math.IsNaN(s):
		return 0
	case s < math.MinInt16:
		return math.MinInt16
	case s > math.MaxInt16:
		return math.MaxInt16
	}
	return int16(s)
}
