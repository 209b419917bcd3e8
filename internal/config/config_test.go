package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/newtonls/internal/optimization/linesearch"
	"github.com/copyleftdev/newtonls/internal/optimization/newton"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.HTTP.IdleTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 10, cfg.Optimization.WorkerCount)
	assert.Equal(t, newton.DefaultTolerance, cfg.Optimization.Epsilon)
	assert.Equal(t, newton.DefaultMaxIterations, cfg.Optimization.MaxIterations)
	assert.Equal(t, linesearch.DefaultParams(), cfg.LineSearchParams())

	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("HTTP_WRITE_TIMEOUT", "5s")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("OPT_WORKER_COUNT", "2")
	t.Setenv("OPT_EPSILON", "1e-8")
	t.Setenv("OPT_MAX_ITERATIONS", "50")
	t.Setenv("OPT_LS_BETA2", "0.9")
	t.Setenv("OPT_LS_LAMBDA", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 2, cfg.Optimization.WorkerCount)
	assert.Equal(t, 1e-8, cfg.Optimization.Epsilon)
	assert.Equal(t, 50, cfg.Optimization.MaxIterations)
	assert.Equal(t, linesearch.Params{InitialStep: 1, Beta1: 1e-4, Beta2: 0.9, Expansion: 3}, cfg.LineSearchParams())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"OPT_WORKER_COUNT", "0"},
		{"OPT_EPSILON", "-1"},
		{"OPT_MAX_ITERATIONS", "-5"},
		{"OPT_LS_LAMBDA", "1"},
		{"OPT_LS_ALPHA0", "0"},
		{"OPT_LS_BETA1", "0.999"},
		{"LOG_FORMAT", "xml"},
		{"HTTP_PORT", "70000"},
		{"OPT_WORKER_COUNT", "many"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
