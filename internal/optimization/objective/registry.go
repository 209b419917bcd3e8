package objective

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/optimize/functions"

	"github.com/copyleftdev/newtonls/internal/optimization"
)

// Entry describes a named test problem.
type Entry struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Dim         int       `json:"dim"`
	Start       []float64 `json:"start"`

	build func() (optimization.Evaluator, error)
}

// New returns a fresh evaluator for the problem. Evaluators are not safe
// for concurrent use, so every optimization run needs its own.
func (e Entry) New() (optimization.Evaluator, error) {
	return e.build()
}

// DefaultStart returns a copy of the problem's standard starting point.
func (e Entry) DefaultStart() []float64 {
	return append([]float64(nil), e.Start...)
}

// CheckStart reports whether x has the problem's dimension.
func (e Entry) CheckStart(x []float64) error {
	if len(x) != e.Dim {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"problem %q has dimension %d, start has length %d", e.Name, e.Dim, len(x))
	}
	return nil
}

func fromProblem(p optimize.Problem) func() (optimization.Evaluator, error) {
	return func() (optimization.Evaluator, error) {
		return NewProblem(p)
	}
}

// ErrUnknownProblem is returned by Lookup for names not in the registry.
var ErrUnknownProblem = errors.New("unknown problem")

var registry = map[string]Entry{}

func register(e Entry) {
	if _, dup := registry[e.Name]; dup {
		panic("objective: duplicate problem " + e.Name)
	}
	registry[e.Name] = e
}

func init() {
	register(Entry{
		Name:        "square",
		Description: "f(x) = x², minimum 0 at 0",
		Dim:         1,
		Start:       []float64{10},
		build: func() (optimization.Evaluator, error) {
			q, err := NewQuadratic(mat.NewSymDense(1, []float64{2}), []float64{0})
			if err != nil {
				return nil, err
			}
			return NewProblem(q.Problem())
		},
	})
	register(Entry{
		Name:        "quadratic",
		Description: "½ xᵀAx − bᵀx with A = [[3 1] [1 2]], b = [1 1]",
		Dim:         2,
		Start:       []float64{10, -10},
		build: func() (optimization.Evaluator, error) {
			q, err := NewQuadratic(mat.NewSymDense(2, []float64{3, 1, 1, 2}), []float64{1, 1})
			if err != nil {
				return nil, err
			}
			return NewProblem(q.Problem())
		},
	})
	register(Entry{
		Name:        "rosenbrock",
		Description: "two-dimensional Rosenbrock function, minimum 0 at (1, 1)",
		Dim:         2,
		Start:       []float64{-1.2, 1},
		build:       fromProblem(Rosenbrock{A: 1, B: 100}.Problem()),
	})
	register(Entry{
		Name:        "beale",
		Description: "Beale function, minimum 0 at (3, 0.5)",
		Dim:         2,
		Start:       []float64{1, 1},
		build: fromProblem(optimize.Problem{
			Func: functions.Beale{}.Func,
			Grad: functions.Beale{}.Grad,
			Hess: functions.Beale{}.Hess,
		}),
	})
	register(Entry{
		Name:        "brown-badly-scaled",
		Description: "Brown badly scaled function, minimum 0 at (1e6, 2e-6)",
		Dim:         2,
		Start:       []float64{1, 1},
		build: fromProblem(optimize.Problem{
			Func: functions.BrownBadlyScaled{}.Func,
			Grad: functions.BrownBadlyScaled{}.Grad,
			Hess: functions.BrownBadlyScaled{}.Hess,
		}),
	})
	register(Entry{
		Name:        "powell-badly-scaled",
		Description: "Powell badly scaled function, minimum 0",
		Dim:         2,
		Start:       []float64{0, 1},
		build: fromProblem(optimize.Problem{
			Func: functions.PowellBadlyScaled{}.Func,
			Grad: functions.PowellBadlyScaled{}.Grad,
			Hess: functions.PowellBadlyScaled{}.Hess,
		}),
	})
	register(Entry{
		Name:        "wood",
		Description: "Wood function, minimum 0 at (1, 1, 1, 1)",
		Dim:         4,
		Start:       []float64{-3, -1, -3, -1},
		build: fromProblem(optimize.Problem{
			Func: functions.Wood{}.Func,
			Grad: functions.Wood{}.Grad,
			Hess: functions.Wood{}.Hess,
		}),
	})
	register(Entry{
		Name:        "brown-and-dennis",
		Description: "Brown and Dennis function",
		Dim:         4,
		Start:       []float64{25, 5, -5, -1},
		build: fromProblem(optimize.Problem{
			Func: functions.BrownAndDennis{}.Func,
			Grad: functions.BrownAndDennis{}.Grad,
			Hess: functions.BrownAndDennis{}.Hess,
		}),
	})
	register(Entry{
		Name:        "extended-rosenbrock-fd",
		Description: "four-dimensional extended Rosenbrock with finite-difference derivatives",
		Dim:         4,
		Start:       []float64{-1.2, 1, -1.2, 1},
		build: func() (optimization.Evaluator, error) {
			return NewFiniteDifference(functions.ExtendedRosenbrock{}.Func, 0), nil
		},
	})
}

// Lookup returns the problem registered under name.
func Lookup(name string) (Entry, error) {
	e, ok := registry[name]
	if !ok {
		return Entry{}, fmt.Errorf("objective: %w %q", ErrUnknownProblem, name)
	}
	return e, nil
}

// Names returns the registered problem names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns all registered problems sorted by name.
func Entries() []Entry {
	names := Names()
	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = registry[name]
	}
	return entries
}
