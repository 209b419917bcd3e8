package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/newtonls/internal/logging"
	"github.com/copyleftdev/newtonls/internal/optimization"
	"github.com/copyleftdev/newtonls/internal/optimization/linesearch"
	"github.com/copyleftdev/newtonls/internal/optimization/newton"
	"github.com/copyleftdev/newtonls/internal/optimization/objective"
)

var (
	problemName string
	startPoint  string
	epsilon     float64
	maxIter     int
	trace       bool
	lsParams    = linesearch.DefaultParams()
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Minimize a registered problem",
	Long: `Runs Newton's method on a registered problem and prints the solution
and the termination report as JSON.`,
	Args: cobra.NoArgs,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&problemName, "problem", "", "Problem name, see 'newtonctl problems' (required)")
	runCmd.Flags().StringVar(&startPoint, "start", "", "Comma separated starting point (default: the problem's standard start)")
	runCmd.Flags().Float64Var(&epsilon, "epsilon", newton.DefaultTolerance, "Relative gradient tolerance")
	runCmd.Flags().IntVar(&maxIter, "max-iter", newton.DefaultMaxIterations, "Maximum number of Newton iterations")
	runCmd.Flags().BoolVar(&trace, "trace", false, "Include the iteration history in the output")
	runCmd.Flags().Float64Var(&lsParams.InitialStep, "alpha0", lsParams.InitialStep, "Initial line search step")
	runCmd.Flags().Float64Var(&lsParams.Beta1, "beta1", lsParams.Beta1, "Sufficient decrease parameter")
	runCmd.Flags().Float64Var(&lsParams.Beta2, "beta2", lsParams.Beta2, "Curvature parameter")
	runCmd.Flags().Float64Var(&lsParams.Expansion, "lambda", lsParams.Expansion, "Step expansion factor")

	_ = runCmd.MarkFlagRequired("problem")
	rootCmd.AddCommand(runCmd)
}

type runOutput struct {
	Problem  string                   `json:"problem"`
	Start    []float64                `json:"start"`
	Solution optimization.Solution    `json:"solution"`
	Report   optimization.Report      `json:"report"`
	History  []optimization.Iteration `json:"history,omitempty"`
}

func runOptimization(cmd *cobra.Command, args []string) error {
	entry, err := objective.Lookup(problemName)
	if err != nil {
		return err
	}

	start := entry.DefaultStart()
	if startPoint != "" {
		if start, err = parseVector(startPoint); err != nil {
			return err
		}
		if err := entry.CheckStart(start); err != nil {
			return err
		}
	}

	ev, err := entry.New()
	if err != nil {
		return fmt.Errorf("failed to create evaluator: %w", err)
	}

	log := logger.WithField("problem", entry.Name)
	log.Info("Starting optimization", map[string]interface{}{
		"epsilon":        epsilon,
		"max_iterations": maxIter,
	})

	out := runOutput{Problem: entry.Name, Start: start}
	driver := newton.Driver{
		LineSearch: lsParams,
		Logger:     logging.NewZapLogger(log),
	}
	if trace {
		driver.Recorder = func(it optimization.Iteration) {
			out.History = append(out.History, it)
		}
	}

	x, report, err := driver.Optimize(ev, start, epsilon, maxIter)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	value, err := objective.Value(ev, x)
	if err != nil {
		return fmt.Errorf("failed to evaluate solution: %w", err)
	}
	out.Solution = optimization.Solution{Parameters: x, Value: value}
	out.Report = report

	log.Info("Optimization finished", map[string]interface{}{
		"status":     report.Status.String(),
		"iterations": report.Iterations,
	})

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// parseVector parses a comma separated list of floats.
func parseVector(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	v := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start component %d %q: %w", i, p, err)
		}
		v[i] = f
	}
	return v, nil
}
