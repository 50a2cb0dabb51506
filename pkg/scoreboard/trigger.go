// Package scoreboard runs an optional secondary pattern list after a search
// pass to collect per-pattern fail counters. It never changes the outcome of
// the search that triggered it.
package scoreboard

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceVmin/internal/logger"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/forcer"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/multipass"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// Config selects when the scoreboard runs and how it counts.
type Config struct {
	BaseNumbers    []int             `yaml:"base_numbers"`
	EdgeTicks      int               `yaml:"edge_ticks"`
	MaxFails       int               `yaml:"max_fails"`
	PatternNameMap map[string]string `yaml:"pattern_names"`
}

// Enabled reports whether any base number is configured.
func (c Config) Enabled() bool {
	return len(c.BaseNumbers) > 0
}

// Validate checks the counts are non-negative.
func (c Config) Validate() error {
	if c.EdgeTicks < 0 {
		return search.ConfigErrorf("scoreboard edge ticks", "must not be negative, got %d", c.EdgeTicks)
	}
	if c.MaxFails < 0 {
		return search.ConfigErrorf("scoreboard max fails", "must not be negative, got %d", c.MaxFails)
	}
	return nil
}

// Trigger decides whether to run the scoreboard after a pass and runs it.
type Trigger struct {
	cfg     Config
	steps   []float64
	exec    search.Executor
	forcer  forcer.VoltageForcer
	counter Logger
	log     logrus.FieldLogger

	// OnError is called for every swallowed failure, e.g. to count it.
	OnError func(err error)

	runs int
}

// NewTrigger builds a trigger for targets, running exec through f and
// reporting to l.
func NewTrigger(cfg Config, targets []search.Target, exec search.Executor, f forcer.VoltageForcer, l Logger, log logrus.FieldLogger) (*Trigger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Enabled() && (exec == nil || f == nil || l == nil) {
		return nil, fmt.Errorf("scoreboard: enabled without executor, forcer and logger")
	}
	if log == nil {
		log = logger.Discard()
	}

	steps := make([]float64, len(targets))
	for i, t := range targets {
		steps[i] = t.Step
	}
	return &Trigger{
		cfg:     cfg,
		steps:   steps,
		exec:    exec,
		forcer:  f,
		counter: l,
		log:     log,
	}, nil
}

// Runs returns how many times the scoreboard executed.
func (t *Trigger) Runs() int {
	return t.runs
}

// ShouldRun applies the gating rule: enabled and either an edge was reached
// with edge ticks configured, or the pass failed with no edge ticks.
func (t *Trigger) ShouldRun(pass *search.Pass) bool {
	if !t.cfg.Enabled() || pass == nil || pass.Result == nil {
		return false
	}
	if t.cfg.EdgeTicks > 0 {
		return pass.EdgeReached()
	}
	return !pass.Result.Passed
}

// Vector returns the voltages the scoreboard applies for pass. In edge mode
// every edge target is moved EdgeTicks steps back into its failing region
// and other found targets keep their voltage. In fail mode the last point is
// re-applied.
func (t *Trigger) Vector(pass *search.Pass) []voltage.Voltage {
	if t.cfg.EdgeTicks == 0 {
		last := pass.LastPoint()
		if last == nil {
			return nil
		}
		return append([]voltage.Voltage(nil), last.Voltages...)
	}

	out := make([]voltage.Voltage, len(pass.States))
	for i, st := range pass.States {
		v, ok := st.Voltage.Value()
		switch {
		case !ok:
			out[i] = voltage.NotDriven()
		case st.Edge():
			out[i] = voltage.Of(v - float64(t.cfg.EdgeTicks)*t.steps[i])
		default:
			out[i] = st.Voltage
		}
	}
	return out
}

// Run executes the scoreboard for pass if the gating rule allows it and
// reports whether it ran. Failures are logged and passed to OnError.
func (t *Trigger) Run(ctx context.Context, pass *search.Pass, suffix string) bool {
	if !t.ShouldRun(pass) {
		return false
	}
	if err := t.run(ctx, pass, suffix); err != nil {
		t.log.WithError(err).WithField("suffix", suffix).Warn("scoreboard run failed")
		if t.OnError != nil {
			t.OnError(err)
		}
		return false
	}
	t.runs++
	return true
}

func (t *Trigger) run(ctx context.Context, pass *search.Pass, suffix string) error {
	vector := t.Vector(pass)
	if vector == nil {
		return fmt.Errorf("scoreboard: pass has no points to re-apply")
	}

	handle, err := t.counter.Create(t.cfg.BaseNumbers, t.cfg.PatternNameMap, t.cfg.MaxFails)
	if err != nil {
		return err
	}
	if err := t.forcer.Apply(ctx, vector); err != nil {
		return fmt.Errorf("scoreboard: apply %s: %w", voltage.FormatVector(vector, voltage.DefaultDecimals, "_"), err)
	}
	if _, err := t.exec.Execute(ctx); err != nil {
		return fmt.Errorf("scoreboard: execute: %w", err)
	}
	failures, err := t.exec.PerCycleFailures(ctx)
	if err != nil {
		return fmt.Errorf("scoreboard: per-cycle failures: %w", err)
	}
	if err := handle.ProcessFailData(failures); err != nil {
		return err
	}

	t.log.WithFields(logrus.Fields{
		"voltages": voltage.FormatVector(vector, voltage.DefaultDecimals, "_"),
		"failures": len(failures),
	}).Debug("scoreboard executed")
	return handle.PrintCounters(suffix)
}

// Hook adapts the trigger to run after every multi-pass pass, using the
// pass suffix. Under a repetition coordinator that suffix carries the
// repetition suffix, so records stay unique across repetitions.
func (t *Trigger) Hook() multipass.PassHook {
	return func(ctx context.Context, index int, pass *search.Pass) {
		t.Run(ctx, pass, pass.Result.Suffix)
	}
}
