package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/newtonls/internal/logging"
)

var (
	logLevel  string
	logFormat string
	logger    *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "newtonctl",
	Short: "Newton's method with a Wolfe line search",
	Long: `newtonctl minimizes the registered test problems with Newton's method,
using a line search that satisfies both Wolfe conditions, and queries a
running optimization server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch logFormat {
		case "console", "json":
		default:
			return fmt.Errorf("unknown log format %q", logFormat)
		}

		logger = logging.NewConsole(logging.ParseLevel(logLevel), cmd.ErrOrStderr())
		if logFormat == "json" {
			logger = logging.New(logging.ParseLevel(logLevel), cmd.ErrOrStderr())
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
}
