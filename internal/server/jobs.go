package server

import (
	"errors"
	"fmt"
	"math"
	"time"

	apperrors "github.com/copyleftdev/newtonls/internal/errors"
	"github.com/copyleftdev/newtonls/internal/logging"
	"github.com/copyleftdev/newtonls/internal/optimization"
	"github.com/copyleftdev/newtonls/internal/optimization/newton"
	"github.com/copyleftdev/newtonls/internal/optimization/objective"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	// ErrInvalidParams is returned for malformed or out-of-range request
	// parameters.
	ErrInvalidParams = errors.New("invalid params")
	// ErrNotFound is returned for unknown optimization IDs.
	ErrNotFound = errors.New("optimization not found")
	// ErrConflict is returned when cancelling a job that already finished.
	ErrConflict = errors.New("optimization already finished")
	// ErrClosed is returned when starting a job after Close.
	ErrClosed = errors.New("server is shutting down")
)

// StartParams are the parameters of optimization.start.
type StartParams struct {
	Problem       string    `json:"problem"`
	Start         []float64 `json:"start,omitempty"`
	Epsilon       *float64  `json:"epsilon,omitempty"`
	MaxIterations *int      `json:"max_iterations,omitempty"`
}

// StartResult is returned by optimization.start.
type StartResult struct {
	ID     string `json:"optimization_id"`
	Status string `json:"status"`
}

// IDParams identify an optimization job.
type IDParams struct {
	ID string `json:"optimization_id"`
}

// StatusResult is the snapshot returned by optimization.status.
type StatusResult struct {
	ID            string                   `json:"optimization_id"`
	Problem       string                   `json:"problem"`
	Status        string                   `json:"status"`
	Progress      float64                  `json:"progress"`
	Iterations    int                      `json:"iterations"`
	MaxIterations int                      `json:"max_iterations"`
	Epsilon       float64                  `json:"epsilon"`
	Start         []float64                `json:"start"`
	StartTime     string                   `json:"start_time"`
	LastUpdate    string                   `json:"last_update"`
	EndTime       string                   `json:"end_time,omitempty"`
	BestSolution  *optimization.Solution   `json:"best_solution,omitempty"`
	Report        *optimization.Report     `json:"report,omitempty"`
	History       []optimization.Iteration `json:"history,omitempty"`
	Error         string                   `json:"error,omitempty"`
}

// OptimizationState tracks one optimization job. All fields are guarded by
// the server's mutex.
type OptimizationState struct {
	ID            string
	Problem       string
	Status        string
	Start         []float64
	Epsilon       float64
	MaxIterations int
	StartTime     time.Time
	EndTime       *time.Time
	LastUpdated   time.Time
	Iterations    int
	History       []optimization.Iteration
	BestSolution  *optimization.Solution
	Report        *optimization.Report
	Error         string

	entry  objective.Entry
	cancel chan struct{}
	done   chan struct{}
}

func (st *OptimizationState) terminal() bool {
	switch st.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (st *OptimizationState) finish(status string) {
	now := time.Now()
	st.Status = status
	st.EndTime = &now
	st.LastUpdated = now
}

func (st *OptimizationState) progress() float64 {
	if st.Status == StatusCompleted {
		return 1
	}
	if st.MaxIterations == 0 {
		return 0
	}
	return math.Min(float64(st.Iterations)/float64(st.MaxIterations), 1)
}

func (st *OptimizationState) snapshot() StatusResult {
	res := StatusResult{
		ID:            st.ID,
		Problem:       st.Problem,
		Status:        st.Status,
		Progress:      st.progress(),
		Iterations:    st.Iterations,
		MaxIterations: st.MaxIterations,
		Epsilon:       st.Epsilon,
		Start:         append([]float64(nil), st.Start...),
		StartTime:     st.StartTime.Format(time.RFC3339),
		LastUpdate:    st.LastUpdated.Format(time.RFC3339),
		History:       append([]optimization.Iteration(nil), st.History...),
		Error:         st.Error,
	}
	if st.EndTime != nil {
		res.EndTime = st.EndTime.Format(time.RFC3339)
	}
	if st.BestSolution != nil {
		sol := *st.BestSolution
		sol.Parameters = append([]float64(nil), sol.Parameters...)
		res.BestSolution = &sol
	}
	if st.Report != nil {
		rep := *st.Report
		res.Report = &rep
	}
	return res
}

// newJob validates p and returns a pending job.
func (s *Server) newJob(p StartParams) (*OptimizationState, error) {
	if p.Problem == "" {
		return nil, fmt.Errorf("%w: problem is required", ErrInvalidParams)
	}
	entry, err := objective.Lookup(p.Problem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	start := entry.DefaultStart()
	if p.Start != nil {
		if err := entry.CheckStart(p.Start); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		start = append([]float64(nil), p.Start...)
	}

	epsilon := s.cfg.Optimization.Epsilon
	if p.Epsilon != nil {
		epsilon = *p.Epsilon
	}
	if math.IsNaN(epsilon) || epsilon < 0 {
		return nil, fmt.Errorf("%w: epsilon is %v and must be >= 0", ErrInvalidParams, epsilon)
	}

	maxIter := s.cfg.Optimization.MaxIterations
	if p.MaxIterations != nil {
		maxIter = *p.MaxIterations
	}
	if maxIter < 0 {
		return nil, fmt.Errorf("%w: max_iterations is %d and must be >= 0", ErrInvalidParams, maxIter)
	}

	now := time.Now()
	return &OptimizationState{
		ID:            fmt.Sprintf("opt_%d_%d", now.UnixNano(), s.seq.Add(1)),
		Problem:       entry.Name,
		Status:        StatusPending,
		Start:         start,
		Epsilon:       epsilon,
		MaxIterations: maxIter,
		StartTime:     now,
		LastUpdated:   now,
		entry:         entry,
		cancel:        make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// runOptimization executes one job in its own goroutine once a worker slot
// is free.
func (s *Server) runOptimization(state *OptimizationState) {
	defer s.wg.Done()
	defer close(state.done)

	select {
	case s.workers <- struct{}{}:
		defer func() { <-s.workers }()
	case <-state.cancel:
		return
	case <-s.quit:
		return
	}

	s.mu.Lock()
	if state.Status != StatusPending {
		s.mu.Unlock()
		return
	}
	state.Status = StatusRunning
	state.LastUpdated = time.Now()
	s.mu.Unlock()

	s.metrics.JobStarted()
	jobLogger := s.logger.WithFields(map[string]interface{}{
		"optimization_id": state.ID,
		"problem":         state.Problem,
	})
	jobLogger.Info("Optimization started", map[string]interface{}{
		"dimension":      len(state.Start),
		"epsilon":        state.Epsilon,
		"max_iterations": state.MaxIterations,
	})

	x, report, value, err := s.optimize(state, jobLogger)

	s.mu.Lock()
	defer s.mu.Unlock()

	if state.Status == StatusCancelled {
		// Cancelled while running: the result is discarded.
		s.metrics.JobFinished(StatusCancelled)
		jobLogger.Info("Cancelled optimization finished, result discarded")
		return
	}
	if err != nil {
		werr := apperrors.Wrapf(err, "optimization %s failed", state.ID).
			WithComponent("server").
			WithOperation("run")
		state.Error = werr.Error()
		state.finish(StatusFailed)
		s.metrics.JobFinished(StatusFailed)
		jobLogger.Error("Optimization failed", map[string]interface{}{
			"error": werr.Error(),
		})
		return
	}

	state.BestSolution = &optimization.Solution{Parameters: x, Value: value}
	state.Report = &report
	state.finish(StatusCompleted)
	s.metrics.ObserveReport(report)
	s.metrics.JobFinished(StatusCompleted)
	jobLogger.Info("Optimization completed", map[string]interface{}{
		"status":            report.Status.String(),
		"iterations":        report.Iterations,
		"relative_gradient": report.RelativeGradient,
		"value":             value,
	})
}

// optimize runs the Newton driver for state and returns the minimizer, the
// report and the objective value at the minimizer.
func (s *Server) optimize(state *OptimizationState, jobLogger *logging.Logger) ([]float64, optimization.Report, float64, error) {
	ev, err := state.entry.New()
	if err != nil {
		return nil, optimization.Report{}, 0, err
	}

	var last *optimization.Iteration
	driver := newton.Driver{
		LineSearch: s.cfg.LineSearchParams(),
		Logger:     logging.NewZapLogger(jobLogger),
		Recorder: func(it optimization.Iteration) {
			last = &it
			s.metrics.ObserveIteration(it)

			s.mu.Lock()
			defer s.mu.Unlock()
			if state.Status == StatusCancelled {
				return
			}
			state.Iterations = it.Iteration
			state.History = append(state.History, it)
			state.BestSolution = &optimization.Solution{
				Parameters: append([]float64(nil), it.X...),
				Value:      it.Value,
			}
			state.LastUpdated = time.Now()
		},
	}

	x, report, err := driver.Optimize(ev, state.Start, state.Epsilon, state.MaxIterations)
	if err != nil {
		return nil, optimization.Report{}, 0, err
	}
	if last != nil {
		return x, report, last.Value, nil
	}

	// No step was taken, so x is the starting point.
	value, err := objective.Value(ev, x)
	if err != nil {
		return nil, optimization.Report{}, 0, err
	}
	return x, report, value, nil
}
