// Package newton implements Newton's method with an inexact line search
// satisfying the Wolfe conditions.
package newton

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/newtonls/internal/optimization"
	"github.com/copyleftdev/newtonls/internal/optimization/direction"
	"github.com/copyleftdev/newtonls/internal/optimization/linesearch"
	"github.com/copyleftdev/newtonls/internal/optimization/scale"
)

// Algorithm is the name reported in every Report.
const Algorithm = "Unconstrained Newton with line search"

const (
	// DefaultTolerance is the cube root of the float64 machine epsilon.
	DefaultTolerance = 6.0554544523933395e-06
	// DefaultMaxIterations is the default outer iteration budget.
	DefaultMaxIterations = 100
)

const component = "newton"

// Driver runs Newton iterations. The zero value is ready to use; unset
// fields take their defaults. A Driver may be shared by concurrent calls as
// long as its collaborators are safe for concurrent use, which the defaults
// are.
type Driver struct {
	// Direction computes the descent direction. Defaults to a
	// direction.ModifiedCholesky.
	Direction optimization.DirectionFinder
	// Metric is the convergence metric. Defaults to scale.Metric.
	Metric optimization.ScaleMetric
	// LineSearch holds the line search parameters. The zero value selects
	// linesearch.DefaultParams.
	LineSearch linesearch.Params
	// Recorder, if set, is called after every completed outer step.
	Recorder optimization.Recorder
	// Logger receives per-iteration debug output. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Optimize minimizes the objective of ev from start with a default Driver.
func Optimize(ev optimization.Evaluator, start []float64, epsilon float64, maxIterations int) ([]float64, optimization.Report, error) {
	var d Driver
	return d.Optimize(ev, start, epsilon, maxIterations)
}

// Optimize minimizes the objective of ev starting at start. It stops when
// the relative gradient is at or below epsilon (Converged) or after
// maxIterations outer steps (Exhausted). The caller's start slice is not
// modified.
//
// Any error raised by the line search, the direction finder or the
// evaluator ends the run and is returned unmodified; no report is produced
// in that case.
func (d *Driver) Optimize(ev optimization.Evaluator, start []float64, epsilon float64, maxIterations int) ([]float64, optimization.Report, error) {
	const op = "Optimize"

	if len(start) == 0 {
		return nil, optimization.Report{}, optimization.WrapError(optimization.ErrDimensionMismatch,
			"empty starting point").WithComponent(component).WithOperation(op)
	}
	if math.IsNaN(epsilon) || epsilon < 0 {
		return nil, optimization.Report{}, optimization.WrapErrorf(optimization.ErrInvalidParameter,
			"epsilon is %v and must be >= 0", epsilon).
			WithComponent(component).WithOperation(op).
			WithValue("epsilon", epsilon)
	}
	if maxIterations < 0 {
		return nil, optimization.Report{}, optimization.WrapErrorf(optimization.ErrInvalidParameter,
			"max iterations is %d and must be >= 0", maxIterations).
			WithComponent(component).WithOperation(op).
			WithValue("max_iterations", float64(maxIterations))
	}

	r := d.newRun(ev, start, epsilon, maxIterations)
	st := stateInit
	for !st.terminal() {
		next, err := r.step(st)
		if err != nil {
			r.logger.Debug("optimization failed",
				zap.Stringer("state", st),
				zap.Int("k", r.k),
				zap.Error(err),
			)
			return nil, optimization.Report{}, err
		}
		st = next
	}
	return r.x, r.report(st), nil
}

// run is the state of one Optimize call.
type run struct {
	ev       optimization.Evaluator
	dir      optimization.DirectionFinder
	metric   optimization.ScaleMetric
	params   linesearch.Params
	recorder optimization.Recorder
	logger   *zap.Logger

	epsilon float64
	maxIter int

	x        []float64
	typx     []float64
	f        float64
	g        []float64
	h        *mat.SymDense
	relgrad  float64
	k        int
	counters optimization.Counters
}

var defaultDirection = &direction.ModifiedCholesky{}

func (d *Driver) newRun(ev optimization.Evaluator, start []float64, epsilon float64, maxIterations int) *run {
	r := &run{
		ev:       ev,
		dir:      d.Direction,
		metric:   d.Metric,
		params:   d.LineSearch,
		recorder: d.Recorder,
		logger:   d.Logger,
		epsilon:  epsilon,
		maxIter:  maxIterations,
		x:        append([]float64(nil), start...),
		typx:     scale.Ones(len(start)),
	}
	if r.dir == nil {
		r.dir = defaultDirection
	}
	if r.metric == nil {
		r.metric = scale.Metric
	}
	if r.params == (linesearch.Params{}) {
		r.params = linesearch.DefaultParams()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named(component)
	return r
}

// evaluate computes f, g and H at the current iterate and refreshes the
// relative gradient.
func (r *run) evaluate() error {
	r.ev.SetPoint(r.x)
	f, g, h, err := r.ev.ValueGradientHessian()
	r.counters = r.counters.AddFull()
	if err != nil {
		return optimization.WrapErrorf(fmt.Errorf("%w: %w", optimization.ErrEvaluation, err),
			"evaluation at iteration %d", r.k).
			WithComponent(component).WithOperation("evaluate")
	}
	if len(g) != len(r.x) || h == nil || h.SymmetricDim() != len(r.x) {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"evaluator returned derivatives of the wrong size for dimension %d", len(r.x)).
			WithComponent(component).WithOperation("evaluate")
	}
	r.f, r.g, r.h = f, g, h
	r.relgrad = r.metric.RelativeGradient(r.x, r.f, r.g, r.typx, scale.FunctionScale(r.f))
	return nil
}

// iterate performs one outer Newton step.
func (r *run) iterate() error {
	dir, err := r.dir.Direction(r.g, r.h)
	if err != nil {
		return err
	}
	alpha, n, err := linesearch.Search(r.ev, r.x, dir, r.params)
	if err != nil {
		return err
	}
	r.counters = r.counters.AddLineSearch(n)
	floats.AddScaled(r.x, alpha, dir)
	r.k++
	if err := r.evaluate(); err != nil {
		return err
	}

	r.logger.Debug("iteration",
		zap.Int("k", r.k),
		zap.Float64("f", r.f),
		zap.Float64("relgrad", r.relgrad),
		zap.Float64("alpha", alpha),
		zap.Int("line_search_evaluations", n),
	)
	if r.recorder != nil {
		r.recorder(optimization.Iteration{
			Iteration:             r.k,
			Value:                 r.f,
			RelativeGradient:      r.relgrad,
			Step:                  alpha,
			LineSearchEvaluations: n,
			Counters:              r.counters,
			X:                     append([]float64(nil), r.x...),
		})
	}
	return nil
}

func (r *run) report(st state) optimization.Report {
	rep := optimization.Report{
		Algorithm:           Algorithm,
		RelativeGradient:    r.relgrad,
		Iterations:          r.k,
		FunctionEvaluations: r.counters.Function,
		GradientEvaluations: r.counters.Gradient,
		HessianEvaluations:  r.counters.Hessian,
	}
	switch st {
	case stateConverged:
		rep.Status = optimization.Converged
		format := "Relative gradient = %.2g <= %.2g"
		if r.k == 0 {
			format = "Relative gradient = %.3g <= %.2g"
		}
		rep.Cause = fmt.Sprintf(format, r.relgrad, r.epsilon)
	case stateExhausted:
		rep.Status = optimization.Exhausted
		rep.Cause = fmt.Sprintf("Maximum number of iterations reached: %d", r.maxIter)
	}
	return rep
}
