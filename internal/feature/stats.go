package feature

import (
	"math"
	"sort"
)

// seqStats summarizes an interaction sequence. Sequences with fewer than
// two points substitute the supplied default for every statistic and a zero
// standard deviation, so downstream math never divides by zero or sees NaN.
type seqStats struct {
	Mean   float64
	Std    float64
	Median float64
	Min    float64
	Max    float64
	N      int
}

func summarize(values []float64, def float64) seqStats {
	if len(values) < 2 {
		return seqStats{Mean: def, Std: 0, Median: def, Min: def, Max: def, N: len(values)}
	}

	var sum float64
	min, max := values[0], values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)))

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return seqStats{Mean: mean, Std: std, Median: median, Min: min, Max: max, N: len(values)}
}

// consistency is the coefficient of variation (std/mean) of a sequence.
// Values near zero mean machine-like regularity. Undefined inputs (fewer
// than two points, zero mean) return the neutral 1.0 so no suspicion signal
// fires on missing data.
func consistency(values []float64) float64 {
	if len(values) < 2 {
		return 1.0
	}
	s := summarize(values, 0)
	if s.Mean <= 0 {
		return 1.0
	}
	return s.Std / s.Mean
}
