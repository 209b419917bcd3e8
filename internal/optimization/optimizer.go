package optimization

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Evaluator computes the objective function and its derivatives at the
// point most recently passed to SetPoint.
//
// Implementations must return freshly allocated gradient slices and Hessian
// matrices; callers are free to retain them.
type Evaluator interface {
	// SetPoint records the point at which the next evaluation occurs. The
	// caller may modify x after SetPoint returns.
	SetPoint(x []float64)

	// ValueAndGradient returns the function value and gradient.
	ValueAndGradient() (float64, []float64, error)

	// ValueGradientHessian returns the function value, gradient and Hessian.
	ValueGradientHessian() (float64, []float64, *mat.SymDense, error)
}

// DirectionFinder turns a gradient and a possibly indefinite Hessian into a
// direction d with strictly negative directional derivative g·d whenever the
// gradient is non-zero.
type DirectionFinder interface {
	Direction(gradient []float64, hessian mat.Symmetric) ([]float64, error)
}

// ScaleMetric computes a dimensionless convergence indicator.
type ScaleMetric interface {
	RelativeGradient(x []float64, value float64, gradient, typx []float64, typf float64) float64
}

// ScaleMetricFunc adapts an ordinary function to the ScaleMetric interface.
type ScaleMetricFunc func(x []float64, value float64, gradient, typx []float64, typf float64) float64

// RelativeGradient calls f.
func (f ScaleMetricFunc) RelativeGradient(x []float64, value float64, gradient, typx []float64, typf float64) float64 {
	return f(x, value, gradient, typx, typf)
}

// Status is the terminal state of an optimization run.
type Status int

const (
	// NotTerminated is the zero Status, never present in a finished Report.
	NotTerminated Status = iota
	// Converged means the relative gradient fell to or below the tolerance.
	Converged
	// Exhausted means the outer iteration budget was used up.
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "Converged"
	case Exhausted:
		return "Exhausted"
	default:
		return "NotTerminated"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Converged":
		*s = Converged
	case "Exhausted":
		*s = Exhausted
	case "NotTerminated":
		*s = NotTerminated
	default:
		return fmt.Errorf("optimization: unknown status %q", text)
	}
	return nil
}

// Counters accumulates the number of function, gradient and Hessian
// evaluations. It is a value type; the Add methods return updated copies.
type Counters struct {
	Function int `json:"function"`
	Gradient int `json:"gradient"`
	Hessian  int `json:"hessian"`
}

// AddLineSearch accounts for n combined value and gradient evaluations.
func (c Counters) AddLineSearch(n int) Counters {
	c.Function += n
	c.Gradient += n
	return c
}

// AddFull accounts for one value, gradient and Hessian evaluation.
func (c Counters) AddFull() Counters {
	c.Function++
	c.Gradient++
	c.Hessian++
	return c
}

// Iteration describes one completed outer step.
type Iteration struct {
	Iteration             int       `json:"iteration"`
	Value                 float64   `json:"value"`
	RelativeGradient      float64   `json:"relative_gradient"`
	Step                  float64   `json:"step"`
	LineSearchEvaluations int       `json:"line_search_evaluations"`
	Counters              Counters  `json:"counters"`
	X                     []float64 `json:"x"`
}

// Recorder receives a copy of every completed outer step.
type Recorder func(Iteration)

// Report is the termination report of an optimization run.
type Report struct {
	Algorithm           string  `json:"algorithm"`
	Status              Status  `json:"status"`
	RelativeGradient    float64 `json:"relative_gradient"`
	Iterations          int     `json:"iterations"`
	FunctionEvaluations int     `json:"function_evaluations"`
	GradientEvaluations int     `json:"gradient_evaluations"`
	HessianEvaluations  int     `json:"hessian_evaluations"`
	Cause               string  `json:"cause"`
}

// Solution represents a point and its objective value.
type Solution struct {
	Parameters []float64 `json:"parameters"`
	Value      float64   `json:"value"`
}
