// Package repetition re-runs a multi-pass search to re-verify the operating
// point it found, and composes several searches back to back.
package repetition

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceVmin/internal/logger"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/datalog"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/forcer"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/multipass"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// Config controls a Coordinator.
type Config struct {
	Name           string // Prefix for result suffixes, may be empty
	MaxRepetitions int
	Policy         Policy

	// ContinueFromFound restarts every target found by the previous
	// repetition from its found voltage.
	ContinueFromFound bool

	PostProcess PostProcess
	Datalog     *datalog.Logger // Logs every repetition's merged result
	Logger      logrus.FieldLogger
}

// DefaultConfig runs once with the repeat-until-pass policy.
func DefaultConfig() *Config {
	return &Config{
		MaxRepetitions: 1,
		Policy:         RepeatUntilPass{},
		PostProcess:    DefaultPostProcess,
	}
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.MaxRepetitions < 1 {
		return search.ConfigErrorf("max repetitions", "must be at least 1, got %d", c.MaxRepetitions)
	}
	if c.Policy == nil {
		c.Policy = RepeatUntilPass{}
	}
	if c.PostProcess == nil {
		c.PostProcess = DefaultPostProcess
	}
	if c.Logger == nil {
		c.Logger = logger.Discard()
	}
	return nil
}

// Coordinator repeats a multi-pass search inside one forcer scope.
type Coordinator struct {
	passes *multipass.Coordinator
	cfg    *Config
}

// New validates cfg and returns a coordinator. A nil cfg uses DefaultConfig.
func New(passes *multipass.Coordinator, cfg *Config) (*Coordinator, error) {
	if passes == nil {
		return nil, fmt.Errorf("repetition: multi-pass coordinator is nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Coordinator{passes: passes, cfg: cfg}, nil
}

// Outcome is the result of every repetition of one search.
type Outcome struct {
	Name     string
	Results  []*search.Result
	Passes   [][]*search.Pass // Individual passes per repetition
	Continue bool             // Whether a composed sequence proceeds
	Passed   bool             // Exit signal from PostProcess
}

// Last returns the final repetition's result.
func (o *Outcome) Last() *search.Result {
	if len(o.Results) == 0 {
		return nil
	}
	return o.Results[len(o.Results)-1]
}

// Run performs the repetitions. The forcer is reset before the first pass
// and restored on every exit path.
func (c *Coordinator) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{Name: c.cfg.Name}
	log := c.cfg.Logger.WithFields(logrus.Fields{
		"search": c.cfg.Name,
		"policy": policyName(c.cfg.Policy),
	})

	engine := c.passes.Engine()
	err := forcer.Scope(ctx, engine.Forcer(), func(ctx context.Context) error {
		passes := c.passes
		for rep := 0; rep < c.cfg.MaxRepetitions; rep++ {
			if rep > 0 && c.cfg.ContinueFromFound {
				next, err := engine.WithTargets(restartTargets(engine.Targets(), out.Last()))
				if err != nil {
					return err
				}
				passes = c.passes.WithEngine(next)
			}

			mo, err := passes.WithSuffix(c.suffix(rep)).Run(ctx)
			if err != nil {
				return fmt.Errorf("repetition %d: %w", rep, err)
			}

			r := mo.Result
			r.RepetitionIndex = rep
			r.Suffix = c.suffix(rep)
			out.Results = append(out.Results, r)
			out.Passes = append(out.Passes, mo.Passes)

			if c.cfg.Datalog != nil {
				used, err := c.cfg.Datalog.Log(r, r.Suffix)
				if err != nil {
					return fmt.Errorf("repetition %d: %w", rep, err)
				}
				r.Suffix = used
			}

			log.WithFields(logrus.Fields{
				"repetition": rep,
				"voltages":   voltage.FormatVector(r.Voltages, voltage.DefaultDecimals, "_"),
				"executions": r.ExecutionCount,
				"passed":     r.Passed,
			}).Info("repetition complete")

			if !c.cfg.Policy.HasToRepeatSearch(rep, r) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repetition: %w", err)
	}

	out.Continue = c.cfg.Policy.HasToContinueToNextSearch(out.Results)
	out.Passed = c.cfg.PostProcess(out.Results)
	return out, nil
}

func (c *Coordinator) suffix(rep int) string {
	if c.cfg.MaxRepetitions == 1 {
		return c.cfg.Name
	}
	return fmt.Sprintf("%s_R%d", c.cfg.Name, rep)
}

// restartTargets moves the start of every target found in prev onto its
// found voltage.
func restartTargets(targets []search.Target, prev *search.Result) []search.Target {
	if prev == nil {
		return targets
	}
	for i := range targets {
		if v, ok := prev.Voltages[i].Value(); ok {
			targets[i].Start = v
		}
	}
	return targets
}

// Sequence runs several searches back to back.
type Sequence []*Coordinator

// Run executes each search in order and stops after the first whose outcome
// says not to continue. The returned bool is true when every search run
// passed.
func (s Sequence) Run(ctx context.Context) ([]*Outcome, bool, error) {
	var outcomes []*Outcome
	passed := true
	for i, c := range s {
		o, err := c.Run(ctx)
		if err != nil {
			return outcomes, false, fmt.Errorf("search %d: %w", i, err)
		}
		outcomes = append(outcomes, o)
		passed = passed && o.Passed
		if !o.Continue {
			break
		}
	}
	return outcomes, passed, nil
}
