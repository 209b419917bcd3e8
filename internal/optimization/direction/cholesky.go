// Package direction computes safe descent directions from a gradient and a
// possibly indefinite Hessian.
package direction

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/newtonls/internal/optimization"
)

const (
	defaultIncrease         = 5
	defaultMaxModifications = 20
	minTau                  = 0.001
)

// ModifiedCholesky solves (H + tau*I) d = -g, adding successively larger
// multiples of the identity to the Hessian H until the Cholesky factorization
// succeeds (Nocedal & Wright, Algorithm 3.3). When no factorization succeeds
// the steepest descent direction -g is returned. Either way g·d < 0 for every
// non-zero g.
//
// A ModifiedCholesky is safe for concurrent use; its zero value is ready to
// use.
type ModifiedCholesky struct {
	// Increase is the factor by which tau grows after a failed
	// factorization. Zero selects 5; otherwise it must be greater than 1.
	Increase float64
	// MaxModifications bounds the number of trial factorizations. Zero
	// selects 20.
	MaxModifications int

	mu sync.Mutex
	ws *workspace
}

// Direction implements optimization.DirectionFinder.
func (m *ModifiedCholesky) Direction(gradient []float64, hessian mat.Symmetric) ([]float64, error) {
	const op = "Direction"

	n := len(gradient)
	if n == 0 || hessian == nil || hessian.SymmetricDim() != n {
		dim := 0
		if hessian != nil {
			dim = hessian.SymmetricDim()
		}
		return nil, optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"gradient has length %d, Hessian is %dx%d", n, dim, dim).
			WithComponent("direction").WithOperation(op)
	}
	increase := m.Increase
	if increase == 0 {
		increase = defaultIncrease
	}
	if !(increase > 1) {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidParameter,
			"increase is %v and must be > 1", increase).
			WithComponent("direction").WithOperation(op).
			WithValue("increase", increase)
	}
	maxMods := m.MaxModifications
	if maxMods <= 0 {
		maxMods = defaultMaxModifications
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws == nil {
		m.ws = newWorkspace()
	}

	hess := m.ws.getSymDense(n)
	defer m.ws.putSymDense(hess)
	grad := m.ws.getVecDense(n)
	defer m.ws.putVecDense(grad)
	for i, v := range gradient {
		grad.SetVec(i, v)
	}

	dir := make([]float64, n)
	d := mat.NewVecDense(n, dir)

	minDiag := hessian.At(0, 0)
	for i := 1; i < n; i++ {
		minDiag = math.Min(minDiag, hessian.At(i, i))
	}
	tau := 0.0
	if !(minDiag > 0) {
		tau = -minDiag + minTau
	}
	if math.IsNaN(tau) || math.IsInf(tau, 0) {
		d.ScaleVec(-1, grad)
		return dir, nil
	}

	var chol mat.Cholesky
	for k := 0; k < maxMods; k++ {
		hess.CopySym(hessian)
		if tau != 0 {
			for i := 0; i < n; i++ {
				hess.SetSym(i, i, hessian.At(i, i)+tau)
			}
		}
		if chol.Factorize(hess) {
			if err := chol.SolveVecTo(d, grad); err == nil {
				d.ScaleVec(-1, d)
				if floats.Dot(gradient, dir) < 0 {
					return dir, nil
				}
			}
		}
		tau = math.Max(increase*tau, minTau)
	}

	// No usable factorization; fall back to steepest descent.
	d.ScaleVec(-1, grad)
	return dir, nil
}

