package objective

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Quadratic is f(x) = ½ xᵀAx − bᵀx.
type Quadratic struct {
	A *mat.SymDense
	B []float64
}

// NewQuadratic returns the quadratic with Hessian a and linear term b.
func NewQuadratic(a *mat.SymDense, b []float64) (*Quadratic, error) {
	if a.SymmetricDim() != len(b) {
		return nil, fmt.Errorf("quadratic: A is %dx%d but b has length %d",
			a.SymmetricDim(), a.SymmetricDim(), len(b))
	}
	return &Quadratic{A: a, B: b}, nil
}

// Func returns the function value at x.
func (q *Quadratic) Func(x []float64) float64 {
	xv := mat.NewVecDense(len(x), x)
	return 0.5*mat.Inner(xv, q.A, xv) - floats.Dot(q.B, x)
}

// Grad stores Ax − b in grad.
func (q *Quadratic) Grad(grad, x []float64) {
	gv := mat.NewVecDense(len(grad), grad)
	gv.MulVec(q.A, mat.NewVecDense(len(x), x))
	floats.Sub(grad, q.B)
}

// Hess stores A in hess.
func (q *Quadratic) Hess(hess *mat.SymDense, x []float64) {
	hess.CopySym(q.A)
}

// Problem returns q as a gonum optimization problem.
func (q *Quadratic) Problem() optimize.Problem {
	return optimize.Problem{Func: q.Func, Grad: q.Grad, Hess: q.Hess}
}

// Rosenbrock is the two-dimensional function
//
//	f(x, y) = (A − x)² + B (y − x²)²
//
// with minimum 0 at (A, A²).
type Rosenbrock struct {
	A, B float64
}

// Func returns the function value at x.
func (r Rosenbrock) Func(x []float64) float64 {
	a := r.A - x[0]
	b := x[1] - x[0]*x[0]
	return a*a + r.B*b*b
}

// Grad stores the gradient at x in grad.
func (r Rosenbrock) Grad(grad, x []float64) {
	b := x[1] - x[0]*x[0]
	grad[0] = -2*(r.A-x[0]) - 4*r.B*x[0]*b
	grad[1] = 2 * r.B * b
}

// Hess stores the Hessian at x in hess.
func (r Rosenbrock) Hess(hess *mat.SymDense, x []float64) {
	hess.SetSym(0, 0, 2-4*r.B*x[1]+12*r.B*x[0]*x[0])
	hess.SetSym(0, 1, -4*r.B*x[0])
	hess.SetSym(1, 1, 2*r.B)
}

// Problem returns r as a gonum optimization problem.
func (r Rosenbrock) Problem() optimize.Problem {
	return optimize.Problem{Func: r.Func, Grad: r.Grad, Hess: r.Hess}
}
