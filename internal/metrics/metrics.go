// Package metrics defines the Prometheus collectors of the optimization
// server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/newtonls/internal/optimization"
)

const namespace = "newtonls"

// Collectors groups the server metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	Jobs                  *prometheus.CounterVec
	Evaluations           *prometheus.CounterVec
	Iterations            prometheus.Histogram
	LineSearchEvaluations prometheus.Histogram
	Running               prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Optimization jobs by final status.",
		}, []string{"status"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Objective evaluations by kind (function, gradient, hessian).",
		}, []string{"kind"}),
		Iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "newton_iterations",
			Help:      "Outer Newton iterations per finished job.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		LineSearchEvaluations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "line_search_evaluations",
			Help:      "Evaluations spent by each line search.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 32, 64},
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Optimization jobs currently running.",
		}),
	}

	if reg != nil {
		for _, col := range []prometheus.Collector{c.Jobs, c.Evaluations, c.Iterations, c.LineSearchEvaluations, c.Running} {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// JobStarted marks a job as running.
func (c *Collectors) JobStarted() {
	if c == nil {
		return
	}
	c.Running.Inc()
}

// JobFinished records a job leaving the running state with the given final
// status.
func (c *Collectors) JobFinished(status string) {
	if c == nil {
		return
	}
	c.Running.Dec()
	c.Jobs.WithLabelValues(status).Inc()
}

// JobDiscarded records a job that reached a final status without running.
func (c *Collectors) JobDiscarded(status string) {
	if c == nil {
		return
	}
	c.Jobs.WithLabelValues(status).Inc()
}

// ObserveIteration records one outer Newton step.
func (c *Collectors) ObserveIteration(it optimization.Iteration) {
	if c == nil {
		return
	}
	c.LineSearchEvaluations.Observe(float64(it.LineSearchEvaluations))
}

// ObserveReport records the totals of a finished optimization.
func (c *Collectors) ObserveReport(r optimization.Report) {
	if c == nil {
		return
	}
	c.Iterations.Observe(float64(r.Iterations))
	c.Evaluations.WithLabelValues("function").Add(float64(r.FunctionEvaluations))
	c.Evaluations.WithLabelValues("gradient").Add(float64(r.GradientEvaluations))
	c.Evaluations.WithLabelValues("hessian").Add(float64(r.HessianEvaluations))
}
