package direction

import "gonum.org/v1/gonum/mat"

// workspace keeps reusable matrix storage keyed by dimension to reduce
// allocations across outer iterations.
type workspace struct {
	symPool map[int][]*mat.SymDense
	vecPool map[int][]*mat.VecDense
}

func newWorkspace() *workspace {
	return &workspace{
		symPool: make(map[int][]*mat.SymDense),
		vecPool: make(map[int][]*mat.VecDense),
	}
}

// getSymDense returns an n×n symmetric matrix from the pool or creates a new one.
func (w *workspace) getSymDense(n int) *mat.SymDense {
	if pool := w.symPool[n]; len(pool) > 0 {
		m := pool[len(pool)-1]
		w.symPool[n] = pool[:len(pool)-1]
		return m
	}
	return mat.NewSymDense(n, nil)
}

// putSymDense returns a symmetric matrix to the pool.
func (w *workspace) putSymDense(m *mat.SymDense) {
	n := m.SymmetricDim()
	w.symPool[n] = append(w.symPool[n], m)
}

// getVecDense returns a vector of length n from the pool or creates a new one.
func (w *workspace) getVecDense(n int) *mat.VecDense {
	if pool := w.vecPool[n]; len(pool) > 0 {
		v := pool[len(pool)-1]
		w.vecPool[n] = pool[:len(pool)-1]
		return v
	}
	return mat.NewVecDense(n, nil)
}

// putVecDense returns a vector to the pool.
func (w *workspace) putVecDense(v *mat.VecDense) {
	n := v.Len()
	w.vecPool[n] = append(w.vecPool[n], v)
}
