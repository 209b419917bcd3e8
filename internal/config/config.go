package config

import (
	"fmt"
	"math"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/newtonls/internal/optimization/linesearch"
	"github.com/copyleftdev/newtonls/internal/optimization/newton"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		WorkerCount   int     `env:"OPT_WORKER_COUNT" envDefault:"10"`
		Epsilon       float64 `env:"OPT_EPSILON" envDefault:"6.0554544523933395e-06"`
		MaxIterations int     `env:"OPT_MAX_ITERATIONS" envDefault:"100"`
		LineSearch    struct {
			InitialStep float64 `env:"OPT_LS_ALPHA0" envDefault:"1.0"`
			Beta1       float64 `env:"OPT_LS_BETA1" envDefault:"1e-4"`
			Beta2       float64 `env:"OPT_LS_BETA2" envDefault:"0.99"`
			Expansion   float64 `env:"OPT_LS_LAMBDA" envDefault:"2.0"`
		}
	}
}

// Default returns the configuration obtained with an empty environment.
func Default() *Config {
	cfg := &Config{Environment: "development"}
	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"
	cfg.Optimization.WorkerCount = 10
	cfg.Optimization.Epsilon = newton.DefaultTolerance
	cfg.Optimization.MaxIterations = newton.DefaultMaxIterations
	p := linesearch.DefaultParams()
	cfg.Optimization.LineSearch.InitialStep = p.InitialStep
	cfg.Optimization.LineSearch.Beta1 = p.Beta1
	cfg.Optimization.LineSearch.Beta2 = p.Beta2
	cfg.Optimization.LineSearch.Expansion = p.Expansion
	return cfg
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LineSearchParams returns the configured line search parameters.
func (c *Config) LineSearchParams() linesearch.Params {
	ls := c.Optimization.LineSearch
	return linesearch.Params{
		InitialStep: ls.InitialStep,
		Beta1:       ls.Beta1,
		Beta2:       ls.Beta2,
		Expansion:   ls.Expansion,
	}
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT %d out of range", c.HTTP.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT %q must be json or console", c.Logging.Format)
	}

	opt := c.Optimization
	if opt.WorkerCount < 1 {
		return fmt.Errorf("OPT_WORKER_COUNT is %d and must be >= 1", opt.WorkerCount)
	}
	if math.IsNaN(opt.Epsilon) || opt.Epsilon < 0 {
		return fmt.Errorf("OPT_EPSILON is %v and must be >= 0", opt.Epsilon)
	}
	if opt.MaxIterations < 0 {
		return fmt.Errorf("OPT_MAX_ITERATIONS is %d and must be >= 0", opt.MaxIterations)
	}
	if err := c.LineSearchParams().Validate(); err != nil {
		return fmt.Errorf("line search settings: %w", err)
	}
	return nil
}
