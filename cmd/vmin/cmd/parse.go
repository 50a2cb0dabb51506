package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/datalog"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

var (
	// Flags for parse command
	parsePatterns   string
	parseIncrements string
	parseNames      []string
	parseDecimals   int
)

var parseCmd = &cobra.Command{
	Use:   "parse <payload>",
	Short: "Decode a datalog record",
	Long: `Decode a main datalog record (V1_.._Vn|S1_.._Sn|E1_.._En|Executions) and,
optionally, its limiting pattern and increment records, then print one row per
target. -8888 marks a target that was not driven, -9999 one that never passed.

Examples:
  vmin parse "0.650_-9999|0.500_0.500|0.900_0.900|9"
  vmin parse "0.650_0.720|0.500_0.500|0.900_0.900|9" --patterns "core_scan^gt_scan" --increments "3_5"`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parsePatterns, "patterns", "",
		"limiting pattern record (caret joined)")
	parseCmd.Flags().StringVar(&parseIncrements, "increments", "",
		"increment record (underscore joined)")
	parseCmd.Flags().StringSliceVar(&parseNames, "names", nil,
		"target names (comma-separated)")
	parseCmd.Flags().IntVar(&parseDecimals, "decimals", voltage.DefaultDecimals,
		"decimal places when printing voltages")
}

func runParse(cmd *cobra.Command, args []string) error {
	rec, err := datalog.ParsePayload(args[0])
	if err != nil {
		return err
	}
	n := rec.Targets()

	var patterns []string
	if parsePatterns != "" {
		if patterns, err = datalog.ParsePatterns(parsePatterns); err != nil {
			return err
		}
		if len(patterns) != n {
			return fmt.Errorf("pattern record has %d entries for %d targets", len(patterns), n)
		}
	}
	var increments []int
	if parseIncrements != "" {
		if increments, err = datalog.ParseIncrements(parseIncrements); err != nil {
			return err
		}
		if len(increments) != n {
			return fmt.Errorf("increment record has %d entries for %d targets", len(increments), n)
		}
	}
	if len(parseNames) > 0 && len(parseNames) != n {
		return fmt.Errorf("%d names supplied for %d targets", len(parseNames), n)
	}

	fmt.Printf("Targets:    %d\n", n)
	fmt.Printf("Executions: %d\n", rec.ExecutionCount)
	fmt.Printf("Voltages:   %s\n", formatVector(rec.Voltages, parseDecimals))
	fmt.Println()
	fmt.Printf("  %-12s %10s %10s %10s %6s  %s\n", "TARGET", "VOLTAGE", "START", "LIMIT", "STEPS", "PATTERN")
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("target%d", i)
		if len(parseNames) > 0 {
			name = parseNames[i]
		}
		steps := "-"
		if increments != nil {
			steps = fmt.Sprintf("%d", increments[i])
		}
		pattern := "-"
		if patterns != nil {
			pattern = patterns[i]
		}
		fmt.Printf("  %-12s %10s %10s %10s %6s  %s\n", name,
			describe(rec.Voltages[i], parseDecimals),
			rec.Starts[i].Format(parseDecimals),
			rec.Limits[i].Format(parseDecimals),
			steps, pattern)
	}
	return nil
}

func describe(v voltage.Voltage, decimals int) string {
	switch {
	case v.IsNotDriven():
		return "not-driven"
	case v.IsNotFound():
		return "not-found"
	}
	return v.Format(decimals)
}
