// Package linesearch implements an inexact line search whose accepted steps
// satisfy both Wolfe conditions.
package linesearch

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/newtonls/internal/optimization"
)

// MaxIterations bounds the number of trial steps of one search.
const MaxIterations = 1000

const component = "linesearch"

// Params holds the control parameters of the search.
type Params struct {
	// InitialStep is the first trial step. Must be > 0.
	InitialStep float64
	// Beta1 is the sufficient decrease (Armijo) parameter.
	Beta1 float64
	// Beta2 is the curvature parameter. Must be > Beta1.
	Beta2 float64
	// Expansion multiplies the step while no upper bound is known. Must be > 1.
	Expansion float64
}

// DefaultParams returns the conventional parameters: unit first step,
// Beta1 = 1e-4, Beta2 = 0.99 and doubling.
func DefaultParams() Params {
	return Params{
		InitialStep: 1.0,
		Beta1:       1.0e-4,
		Beta2:       0.99,
		Expansion:   2.0,
	}
}

// Validate reports the first parameter violation, if any.
func (p Params) Validate() error {
	const op = "Validate"
	if !(p.Expansion > 1) {
		return optimization.WrapErrorf(optimization.ErrInvalidParameter,
			"lambda is %v and must be > 1", p.Expansion).
			WithComponent(component).WithOperation(op).
			WithValue("lambda", p.Expansion)
	}
	if !(p.InitialStep > 0) {
		return optimization.WrapErrorf(optimization.ErrInvalidParameter,
			"alpha0 is %v and must be > 0", p.InitialStep).
			WithComponent(component).WithOperation(op).
			WithValue("alpha0", p.InitialStep)
	}
	if !(p.Beta1 < p.Beta2) {
		return optimization.WrapErrorf(optimization.ErrInvalidParameter,
			"incompatible Wolfe parameters: beta1=%v is not less than beta2=%v", p.Beta1, p.Beta2).
			WithComponent(component).WithOperation(op).
			WithValue("beta1", p.Beta1).
			WithValue("beta2", p.Beta2)
	}
	return nil
}

// Search returns a step alpha along direction from point that satisfies
//
//	f(point + alpha*direction) <= f(point) + alpha*Beta1*deriv
//	g(point + alpha*direction)·direction >= Beta2*deriv
//
// where deriv = g(point)·direction, together with the number of evaluations
// performed: one at the base point plus one per trial step.
//
// The step is halved inside the bracket [alphaL, alphaR] when it is too long
// and expanded by p.Expansion while it is too short and no upper bound is
// known. Search keeps no state between calls.
func Search(ev optimization.Evaluator, point, direction []float64, p Params) (alpha float64, evals int, err error) {
	const op = "Search"

	if err := p.Validate(); err != nil {
		return 0, 0, err
	}
	if len(point) == 0 || len(point) != len(direction) {
		return 0, 0, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"point has length %d, direction has length %d", len(point), len(direction)).
			WithComponent(component).WithOperation(op)
	}

	ev.SetPoint(point)
	f, g, err := ev.ValueAndGradient()
	evals = 1
	if err != nil {
		return 0, evals, wrapEvaluation(err, op, 0)
	}
	if len(g) != len(point) {
		return 0, evals, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"gradient has length %d, point has length %d", len(g), len(point)).
			WithComponent(component).WithOperation(op)
	}

	deriv := floats.Dot(g, direction)
	if !(deriv < 0) {
		return 0, evals, optimization.WrapErrorf(optimization.ErrNonDescentDirection,
			"directional derivative %v >= 0", deriv).
			WithComponent(component).WithOperation(op).
			WithValue("deriv", deriv)
	}

	alpha = p.InitialStep
	alphaL, alphaR := 0.0, math.Inf(1)
	candidate := make([]float64, len(point))
	for i := 0; i < MaxIterations; i++ {
		floats.AddScaledTo(candidate, point, alpha, direction)
		ev.SetPoint(candidate)
		fc, gc, err := ev.ValueAndGradient()
		evals++
		if err != nil {
			return 0, evals, wrapEvaluation(err, op, alpha)
		}

		switch {
		case fc > f+alpha*p.Beta1*deriv:
			// Too long.
			alphaR = alpha
			alpha = (alphaL + alphaR) / 2
		case floats.Dot(gc, direction) < p.Beta2*deriv:
			// Too short.
			alphaL = alpha
			if math.IsInf(alphaR, 1) {
				alpha *= p.Expansion
			} else {
				alpha = (alphaL + alphaR) / 2
			}
		default:
			return alpha, evals, nil
		}
	}

	return 0, evals, optimization.WrapErrorf(optimization.ErrLineSearchExhausted,
		"no step verifying both Wolfe conditions after %d iterations", MaxIterations).
		WithComponent(component).WithOperation(op).
		WithValue("iterations", MaxIterations)
}

func wrapEvaluation(err error, op string, alpha float64) error {
	return optimization.WrapErrorf(fmt.Errorf("%w: %w", optimization.ErrEvaluation, err),
		"evaluation at step %v", alpha).
		WithComponent(component).WithOperation(op).
		WithValue("alpha", alpha)
}
