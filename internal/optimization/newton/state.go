package newton

// state is a state of the outer iteration.
type state int

const (
	stateInit state = iota
	stateIterating
	stateConverged
	stateExhausted
)

func (s state) terminal() bool {
	return s == stateConverged || s == stateExhausted
}

func (s state) String() string {
	switch s {
	case stateInit:
		return "Init"
	case stateIterating:
		return "Iterating"
	case stateConverged:
		return "Converged"
	case stateExhausted:
		return "Exhausted"
	default:
		return "unknown"
	}
}

// step performs the work of state st and returns the next state. An error
// is the third way out of the machine and is always fatal.
func (r *run) step(st state) (state, error) {
	switch st {
	case stateInit:
		if err := r.evaluate(); err != nil {
			return st, err
		}
		return r.checkConvergence(), nil
	case stateIterating:
		if err := r.iterate(); err != nil {
			return st, err
		}
		return r.checkConvergence(), nil
	default:
		return st, nil
	}
}

// checkConvergence decides between Converged, Exhausted and another step.
// Convergence takes precedence when both hold after the last step.
func (r *run) checkConvergence() state {
	switch {
	case r.relgrad <= r.epsilon:
		return stateConverged
	case r.k >= r.maxIter:
		return stateExhausted
	default:
		return stateIterating
	}
}
