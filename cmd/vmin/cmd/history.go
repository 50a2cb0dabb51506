package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceVmin/internal/store"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

var (
	// Flags for history command
	historyStorePath string
	historyLimit     int
	historyRunID     string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded search runs",
	Long: `List the runs recorded with "vmin search --store", newest first. With --run,
print every repetition record of one run.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyStorePath, "store", "",
		"SQLite history database")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20,
		"maximum number of runs to list (0 = all)")
	historyCmd.Flags().StringVar(&historyRunID, "run", "",
		"show the records of this run ID")

	historyCmd.MarkFlagRequired("store")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	db, err := store.Open(historyStorePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if historyRunID != "" {
		return printRun(ctx, db, historyRunID)
	}

	runs, err := db.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	for _, r := range runs {
		result := red("FAIL")
		if r.Passed {
			result = green("PASS")
		}
		fmt.Printf("%s  %s  %-16s %s  %d record(s)  [%s]\n", r.ID, r.StartedAt.Local().Format(time.DateTime),
			r.Name, result, r.Results, strings.Join(r.Targets, ","))
	}
	return nil
}

func printRun(ctx context.Context, db *store.Store, id string) error {
	results, err := db.Results(ctx, id)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no records for run %s", id)
	}

	for _, r := range results {
		rec, err := r.Record()
		if err != nil {
			return fmt.Errorf("run %s repetition %d: %w", id, r.RepetitionIndex, err)
		}
		fmt.Printf("Repetition %d%s: %s executions=%d passed=%t\n", r.RepetitionIndex, r.Suffix,
			formatVector(rec.Voltages, voltage.DefaultDecimals), rec.ExecutionCount, r.Passed)
		fmt.Printf("  patterns:   %s\n", r.Patterns)
		fmt.Printf("  increments: %s\n", r.Increments)
	}
	return nil
}
