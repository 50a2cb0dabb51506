package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceVmin/internal/logger"
)

var (
	// Global flags
	verbose   bool
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "vmin",
	Short: "Per-target minimum voltage search",
	Long: `A voltage search tool that finds, independently for every supply target,
the lowest voltage at which a functional pattern list still passes, sharing one
pattern list execution across all targets.

Examples:
  vmin search --config core.yaml                   # Run a search on the simulated bench
  vmin search --config core.yaml --store runs.db   # ...and keep the result history
  vmin parse "0.650_-9999|0.500_0.500|0.900_0.900|9"
  vmin instruments                                 # List USBTMC supplies
  vmin history --store runs.db`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logLevel
		if verbose && level == "" {
			level = "debug"
		}
		if level != "" || logFormat != "" {
			logger.Setup(level, logFormat, os.Stderr)
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
}
