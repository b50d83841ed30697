package trend

import "math"

// PercentChange is the fractional change of current vs. baseline
// (0.5 == +50%). Boundary rule for a zero baseline: any growth from
// zero reads as +100%, zero to zero reads as flat.
func PercentChange(current, baseline float64) float64 {
	if baseline == 0 {
		if current > 0 {
			return 1.0
		}
		return 0
	}
	return (current - baseline) / baseline
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStdDev uses divisor n, not n-1: anomaly bands here describe
// the entire observed window, not a sample of a larger population.
func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}
