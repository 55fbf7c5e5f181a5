package features

import (
	"math"
	"sort"
)

// NanSum sums the non-NaN values. Returns 0 for no values.
func NanSum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum
}

// WeightedMean returns Σ(v·w)/Σ(w) over pairs with a non-NaN value and positive weight.
// Returns NaN when the total weight is zero.
func WeightedMean(values, weights []float64) float64 {
	var num, den float64
	for i, v := range values {
		w := weights[i]
		if math.IsNaN(v) || math.IsNaN(w) || w <= 0 {
			continue
		}
		num += v * w
		den += w
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// NanMedian returns the median of the non-NaN values, or NaN.
func NanMedian(values []float64) float64 {
	clean := dropNaN(values)
	if len(clean) == 0 {
		return math.NaN()
	}
	sort.Float64s(clean)
	mid := len(clean) / 2
	if len(clean)%2 == 1 {
		return clean[mid]
	}
	return (clean[mid-1] + clean[mid]) / 2
}

// NanMax returns the maximum non-NaN value, or NaN.
func NanMax(values []float64) float64 {
	out := math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(out) || v > out {
			out = v
		}
	}
	return out
}

// NanMin returns the minimum non-NaN value, or NaN.
func NanMin(values []float64) float64 {
	out := math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(out) || v < out {
			out = v
		}
	}
	return out
}

// NanMean returns the mean of the non-NaN values, or NaN.
func NanMean(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// LastNonNaN returns the last non-NaN value, or NaN.
func LastNonNaN(values []float64) float64 {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) {
			return values[i]
		}
	}
	return math.NaN()
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
