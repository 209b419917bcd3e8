package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/newtonls/internal/optimization"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.JobStarted()
	c.JobStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Running))

	c.ObserveIteration(optimization.Iteration{LineSearchEvaluations: 3})
	c.ObserveIteration(optimization.Iteration{LineSearchEvaluations: 2})
	c.ObserveReport(optimization.Report{
		Iterations:          2,
		FunctionEvaluations: 8,
		GradientEvaluations: 8,
		HessianEvaluations:  3,
	})
	c.JobFinished("completed")
	c.JobFinished("failed")
	c.JobDiscarded("cancelled")

	assert.Equal(t, 0.0, testutil.ToFloat64(c.Running))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Jobs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Jobs.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Jobs.WithLabelValues("cancelled")))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.Evaluations.WithLabelValues("function")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Evaluations.WithLabelValues("hessian")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "newtonls_line_search_evaluations")
	assert.Contains(t, names, "newtonls_newton_iterations")
	assert.Equal(t, 6, testutil.CollectAndCount(c.Jobs)+testutil.CollectAndCount(c.Evaluations))
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilCollectors(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.JobStarted()
		c.ObserveIteration(optimization.Iteration{})
		c.ObserveReport(optimization.Report{})
		c.JobFinished("cancelled")
		c.JobDiscarded("cancelled")
	})

	unregistered, err := New(nil)
	require.NoError(t, err)
	unregistered.JobStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(unregistered.Running))
}
