// Package scale provides scale-aware convergence metrics.
package scale

import (
	"math"

	"github.com/copyleftdev/newtonls/internal/optimization"
)

// RelativeGradient returns
//
//	max_i |g_i| * max(|x_i|, typx_i) / max(|f|, typf)
//
// where typx and typf are the typical magnitudes of the variables and of the
// function. A non-finite result is reported as +Inf.
func RelativeGradient(x []float64, f float64, g, typx []float64, typf float64) float64 {
	denom := math.Max(math.Abs(f), typf)
	result := 0.0
	for i := range g {
		r := math.Abs(g[i]) * math.Max(math.Abs(x[i]), typx[i]) / denom
		if math.IsNaN(r) {
			return math.Inf(1)
		}
		result = math.Max(result, r)
	}
	if math.IsInf(result, 0) {
		return math.Inf(1)
	}
	return result
}

// Ones returns a unit typical-magnitude vector of length n.
func Ones(n int) []float64 {
	typx := make([]float64, n)
	for i := range typx {
		typx[i] = 1
	}
	return typx
}

// FunctionScale returns max(|f|, 1), the function scale used with unit
// variable scales.
func FunctionScale(f float64) float64 {
	return math.Max(math.Abs(f), 1)
}

// Metric is the relative gradient as an optimization.ScaleMetric.
var Metric optimization.ScaleMetric = optimization.ScaleMetricFunc(RelativeGradient)
