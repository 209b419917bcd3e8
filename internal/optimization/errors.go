package optimization

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter signifies that a control parameter is outside of
	// its admissible range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNonDescentDirection signifies that the directional derivative at the
	// base point is not strictly negative.
	ErrNonDescentDirection = errors.New("non-descent search direction")

	// ErrLineSearchExhausted signifies that no step satisfying both Wolfe
	// conditions was found within the inner iteration cap.
	ErrLineSearchExhausted = errors.New("line search exhausted")

	// ErrDimensionMismatch signifies vectors or matrices of incompatible sizes.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEvaluation signifies that the objective evaluator failed.
	ErrEvaluation = errors.New("objective evaluation failed")
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Values holds the offending numeric values, keyed by name.
	Values map[string]float64
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithValue records an offending value under name.
func (e *Error) WithValue(name string, v float64) *Error {
	if e.Values == nil {
		e.Values = make(map[string]float64, 2)
	}
	e.Values[name] = v
	return e
}

// Value returns the offending value recorded under name.
func (e *Error) Value(name string) (float64, bool) {
	if e == nil || e.Values == nil {
		return 0, false
	}
	v, ok := e.Values[name]
	return v, ok
}

// NewErrorf creates a new optimization error with formatted message.
func NewErrorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: message,
		Err:     err,
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsOptimizationError checks if an error is of type Error anywhere in its
// chain. If so, it returns the error and true.
func IsOptimizationError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
