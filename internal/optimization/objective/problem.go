// Package objective provides Evaluator implementations: adapters for gonum
// problems, finite-difference derivatives, analytic test functions and a
// registry of named problems.
package objective

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/newtonls/internal/optimization"
)

// Problem evaluates a gonum optimize.Problem with analytic derivatives.
type Problem struct {
	p optimize.Problem
	x []float64
}

// NewProblem returns an Evaluator for p. Func, Grad and Hess must all be set.
func NewProblem(p optimize.Problem) (*Problem, error) {
	if p.Func == nil || p.Grad == nil || p.Hess == nil {
		return nil, optimization.NewErrorf("problem must define Func, Grad and Hess").
			WithComponent("objective").WithOperation("NewProblem")
	}
	return &Problem{p: p}, nil
}

// SetPoint implements optimization.Evaluator.
func (e *Problem) SetPoint(x []float64) {
	e.x = append(e.x[:0], x...)
}

// ValueAndGradient implements optimization.Evaluator.
func (e *Problem) ValueAndGradient() (float64, []float64, error) {
	if len(e.x) == 0 {
		return 0, nil, errNoPoint
	}
	f := e.p.Func(e.x)
	g := make([]float64, len(e.x))
	e.p.Grad(g, e.x)
	return f, g, nil
}

// ValueGradientHessian implements optimization.Evaluator.
func (e *Problem) ValueGradientHessian() (float64, []float64, *mat.SymDense, error) {
	f, g, err := e.ValueAndGradient()
	if err != nil {
		return 0, nil, nil, err
	}
	h := mat.NewSymDense(len(e.x), nil)
	e.p.Hess(h, e.x)
	return f, g, h, nil
}

var errNoPoint = errors.New("objective: SetPoint has not been called")

// defaultHessianStep balances truncation and roundoff error of the second
// order central differences.
const defaultHessianStep = 1e-4

// FiniteDifference evaluates a function whose derivatives are approximated
// by central differences.
type FiniteDifference struct {
	fn       func([]float64) float64
	gradient *fd.Settings
	hessian  *fd.Settings
	x        []float64
}

// NewFiniteDifference returns an Evaluator for fn. A zero step selects the
// default step of the central formula for the gradient and 1e-4 for the
// Hessian.
func NewFiniteDifference(fn func([]float64) float64, step float64) *FiniteDifference {
	hessStep := step
	if step <= 0 {
		step, hessStep = 0, defaultHessianStep
	}
	return &FiniteDifference{
		fn:       fn,
		gradient: &fd.Settings{Formula: fd.Central, Step: step},
		hessian:  &fd.Settings{Step: hessStep},
	}
}

// SetPoint implements optimization.Evaluator.
func (e *FiniteDifference) SetPoint(x []float64) {
	e.x = append(e.x[:0], x...)
}

// ValueAndGradient implements optimization.Evaluator.
func (e *FiniteDifference) ValueAndGradient() (float64, []float64, error) {
	if len(e.x) == 0 {
		return 0, nil, errNoPoint
	}
	f := e.fn(e.x)
	g := fd.Gradient(nil, e.fn, e.x, e.gradient)
	return f, g, nil
}

// ValueGradientHessian implements optimization.Evaluator.
func (e *FiniteDifference) ValueGradientHessian() (float64, []float64, *mat.SymDense, error) {
	f, g, err := e.ValueAndGradient()
	if err != nil {
		return 0, nil, nil, err
	}
	h := mat.NewSymDense(len(e.x), nil)
	fd.Hessian(h, e.fn, e.x, e.hessian)
	return f, g, h, nil
}

// Counting wraps an Evaluator and counts the evaluations made through it.
type Counting struct {
	optimization.Evaluator
	counters optimization.Counters
}

// NewCounting returns a counting wrapper around ev.
func NewCounting(ev optimization.Evaluator) *Counting {
	return &Counting{Evaluator: ev}
}

// ValueAndGradient implements optimization.Evaluator.
func (c *Counting) ValueAndGradient() (float64, []float64, error) {
	c.counters = c.counters.AddLineSearch(1)
	return c.Evaluator.ValueAndGradient()
}

// ValueGradientHessian implements optimization.Evaluator.
func (c *Counting) ValueGradientHessian() (float64, []float64, *mat.SymDense, error) {
	c.counters = c.counters.AddFull()
	return c.Evaluator.ValueGradientHessian()
}

// Counters returns the evaluations made so far.
func (c *Counting) Counters() optimization.Counters {
	return c.counters
}

func (c *Counting) String() string {
	return fmt.Sprintf("f=%d g=%d h=%d", c.counters.Function, c.counters.Gradient, c.counters.Hessian)
}

// Value evaluates the objective of ev at x.
func Value(ev optimization.Evaluator, x []float64) (float64, error) {
	ev.SetPoint(x)
	f, _, err := ev.ValueAndGradient()
	return f, err
}
