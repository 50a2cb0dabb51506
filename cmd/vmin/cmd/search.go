package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceVmin/internal/config"
	"github.com/OpenTraceLab/OpenTraceVmin/internal/logger"
	"github.com/OpenTraceLab/OpenTraceVmin/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceVmin/internal/store"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/datalog"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/forcer"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/multipass"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/repetition"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/scoreboard"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/sim"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

var (
	// Flags for search command
	searchConfigPath  string
	searchDatalogPath string
	searchStorePath   string
	searchLockPath    string
	searchLockWait    time.Duration
	searchMultiPass   string
	searchRepetitions int
	searchMetrics     bool
)

// errSearchFailed is returned when the pass criterion was not met, so the
// process exits non-zero.
var errSearchFailed = errors.New("search failed")

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a voltage search against the simulated bench",
	Long: `Run the configured voltage search.

Every target starts at its start voltage and steps towards its end limit until
its patterns pass. Targets conclude independently; one pattern list execution
serves all targets that are still searching.

The search runs once per multi-pass mask and is repeated according to the
repetition policy. Results are written as datalog records:

  <name>      V1_.._Vn|S1_.._Sn|E1_.._En|Executions
  <name>_lp   limiting pattern per target (caret joined)
  <name>_inc  voltage steps per target

Examples:
  vmin search --config core.yaml
  vmin search --config core.yaml --multipass 01,10 --repetitions 3
  vmin search --config core.yaml --datalog run.txt --store runs.db --metrics`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchConfigPath, "config", "c", "",
		"search definition (YAML)")
	searchCmd.Flags().StringVarP(&searchDatalogPath, "datalog", "d", "",
		"write datalog records to this file instead of stdout")
	searchCmd.Flags().StringVar(&searchStorePath, "store", "",
		"record the run in this SQLite history database")
	searchCmd.Flags().StringVar(&searchLockPath, "lock", "",
		"lock file guarding the supply against concurrent searches")
	searchCmd.Flags().DurationVar(&searchLockWait, "lock-wait", 0,
		"how long to wait for the supply lock (0 = fail immediately)")
	searchCmd.Flags().StringVar(&searchMultiPass, "multipass", "",
		"override the multi-pass mask list (e.g. 01,10)")
	searchCmd.Flags().IntVar(&searchRepetitions, "repetitions", 0,
		"override the maximum repetition count")
	searchCmd.Flags().BoolVar(&searchMetrics, "metrics", false,
		"print search metrics after the run")

	searchCmd.MarkFlagRequired("config")
}

func runSearch(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	cfg, err := config.Load(searchConfigPath)
	if err != nil {
		return err
	}
	if searchMultiPass != "" {
		cfg.MultiPass = searchMultiPass
	}
	if searchRepetitions != 0 {
		cfg.Repetition.Max = searchRepetitions
	}
	if searchStorePath != "" {
		cfg.Store.Path = searchStorePath
	}
	if searchLockPath != "" {
		cfg.Lock.Path = searchLockPath
	}
	if searchLockWait != 0 {
		cfg.Lock.Wait = searchLockWait
	}
	if logLevel == "" && !verbose {
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration %s: %w", searchConfigPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	run, err := buildRun(cfg)
	if err != nil {
		return err
	}
	defer run.close()

	if verbose {
		fmt.Printf("Searching %d target(s): %s\n", len(cfg.Targets), strings.Join(cfg.Names(), ", "))
	}

	outcome, err := run.coordinator.Run(ctx)
	if err != nil {
		return fmt.Errorf("search %s: %w", cfg.Name, err)
	}

	printSummary(cfg, outcome, time.Since(startTime))

	if cfg.Store.Path != "" {
		if err := recordRun(ctx, cfg, outcome, run.datalog.Formatter); err != nil {
			return err
		}
	}
	if run.metrics != nil {
		if err := printMetrics(run.metrics); err != nil {
			return err
		}
	}

	if !outcome.Passed {
		return errSearchFailed
	}
	return nil
}

// searchRun wires the configured components together.
type searchRun struct {
	coordinator *repetition.Coordinator
	datalog     *datalog.Logger
	metrics     *metrics.Metrics
	output      io.Closer
}

func (r *searchRun) close() {
	if r.output != nil {
		r.output.Close()
	}
}

// buildRun closes and removes a datalog file it created if a later step
// fails.
func buildRun(cfg *config.Config) (_ *searchRun, err error) {
	run := &searchRun{}
	defer func() {
		if err != nil && run.output != nil {
			run.close()
			os.Remove(searchDatalogPath)
		}
	}()

	targets, err := cfg.SearchTargets()
	if err != nil {
		return nil, err
	}
	bench, err := sim.NewBench(len(targets), cfg.Bench.Patterns)
	if err != nil {
		return nil, err
	}

	var supply forcer.VoltageForcer = bench.Forcer()
	if cfg.Lock.Path != "" {
		locked := forcer.NewLocked(supply, cfg.Lock.Path)
		locked.Wait = cfg.Lock.Wait
		supply = locked
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	engineCfg.Logger = logger.WithComponent("search")
	if searchMetrics {
		run.metrics = metrics.New()
		engineCfg.Observers = append(engineCfg.Observers, run.metrics)
	}

	engine, err := search.NewEngine(targets, bench, supply, engineCfg)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if searchDatalogPath != "" {
		f, err := os.Create(searchDatalogPath)
		if err != nil {
			return nil, fmt.Errorf("create datalog %s: %w", searchDatalogPath, err)
		}
		run.output = f
		out = f
	}
	writer := datalog.NewTextWriter(out, cfg.Name)
	run.datalog = datalog.NewLogger(writer)
	run.datalog.Formatter.Decimals = cfg.Datalog.Decimals
	run.datalog.Patterns = cfg.Datalog.Patterns
	run.datalog.Increments = cfg.Datalog.Increments

	opts := []multipass.Option{multipass.WithLogger(logger.WithComponent("multipass"))}
	if cfg.Datalog.PerPass {
		opts = append(opts, multipass.WithPassLogging(run.datalog))
	}
	if cfg.Scoreboard.Enabled() {
		trigger, err := scoreboard.NewTrigger(cfg.Scoreboard, targets, bench, supply,
			scoreboard.NewCounterLogger(writer), logger.WithComponent("scoreboard"))
		if err != nil {
			return nil, err
		}
		if run.metrics != nil {
			trigger.OnError = run.metrics.ScoreboardError
		}
		opts = append(opts, multipass.WithPassHook(trigger.Hook()))
	}

	masks, err := cfg.Masks()
	if err != nil {
		return nil, err
	}
	passes, err := multipass.New(engine, masks, opts...)
	if err != nil {
		return nil, err
	}

	repCfg, err := cfg.RepetitionConfig()
	if err != nil {
		return nil, err
	}
	repCfg.Datalog = run.datalog
	repCfg.Logger = logger.WithComponent("repetition")

	run.coordinator, err = repetition.New(passes, repCfg)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func printSummary(cfg *config.Config, outcome *repetition.Outcome, elapsed time.Duration) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	last := outcome.Last()
	fmt.Println()
	fmt.Println(bold("=== Vmin Search Results ==="))
	fmt.Printf("Search:      %s\n", cfg.Name)
	fmt.Printf("Repetitions: %d\n", len(outcome.Results))
	fmt.Printf("Executions:  %d\n", last.ExecutionCount)
	fmt.Println()

	fmt.Printf("  %-12s %10s %10s %6s  %s\n", "TARGET", "VMIN", "START", "STEPS", "LIMITING PATTERN")
	for i, name := range cfg.Names() {
		v := last.Voltages[i]
		value := fmt.Sprintf("%10s", v.Format(cfg.Datalog.Decimals))
		switch {
		case v.IsNotFound():
			value = red(value)
		case v.IsNotDriven():
			value = yellow(value)
		default:
			value = green(value)
		}
		fmt.Printf("  %-12s %s %10s %6d  %s\n", name, value,
			last.Starts[i].Format(cfg.Datalog.Decimals), last.Increments[i], last.LimitingPatterns[i])
	}
	fmt.Println()

	var notes []string
	if last.Overshoot {
		notes = append(notes, "restarted from retry start")
	}
	if last.Exhausted {
		notes = append(notes, "iteration cap reached")
	}
	if len(notes) > 0 {
		fmt.Printf("Notes:       %s\n", yellow(strings.Join(notes, ", ")))
	}

	if outcome.Passed {
		fmt.Printf("Result:      %s (%v)\n", green("PASS"), elapsed.Round(time.Millisecond))
	} else {
		fmt.Printf("Result:      %s (%v)\n", red("FAIL"), elapsed.Round(time.Millisecond))
	}
}

func recordRun(ctx context.Context, cfg *config.Config, outcome *repetition.Outcome, f datalog.Formatter) error {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.RecordRun(ctx, cfg.Name, cfg.Names(), outcome.Passed, outcome.Results, f)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	fmt.Printf("Run ID:      %s\n", id)
	return nil
}

func printMetrics(m *metrics.Metrics) error {
	samples, err := m.Snapshot()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Println()
	fmt.Println("Metrics:")
	for _, s := range samples {
		labels := make([]string, 0, len(s.Labels))
		for k, v := range s.Labels {
			labels = append(labels, k+"="+v)
		}
		name := s.Name
		if len(labels) > 0 {
			name += "{" + strings.Join(labels, ",") + "}"
		}
		fmt.Printf("  %-45s %g\n", name, s.Value)
	}
	return nil
}

// formatVector is shared by the parse and history commands.
func formatVector(vs []voltage.Voltage, decimals int) string {
	return voltage.FormatVector(vs, decimals, " ")
}
