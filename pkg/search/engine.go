package search

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/forcer"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// Executor runs the functional pattern list and maps its failures onto
// targets.
type Executor interface {
	// Execute runs the pattern list once and reports the overall result.
	Execute(ctx context.Context) (bool, error)
	// DecodeTargetResults returns one bit per target, true when the target
	// failed. Targets set in current must be reported as not failing.
	DecodeTargetResults(ctx context.Context, current mask.Mask) ([]bool, error)
	// PerCycleFailures returns the failing captures of the last execution.
	PerCycleFailures(ctx context.Context) ([]Failure, error)
}

// Engine runs single search passes. It owns no state between passes, so one
// Engine may run many passes sequentially.
type Engine struct {
	targets  []Target
	executor Executor
	forcer   forcer.VoltageForcer
	cfg      *Config
	log      logrus.FieldLogger
}

// NewEngine validates targets and configuration. A nil cfg uses
// DefaultConfig. No collaborator is touched here.
func NewEngine(targets []Target, exec Executor, f forcer.VoltageForcer, cfg *Config) (*Engine, error) {
	if exec == nil {
		return nil, fmt.Errorf("search: executor is nil")
	}
	if f == nil {
		return nil, fmt.Errorf("search: forcer is nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateTargets(targets); err != nil {
		return nil, err
	}

	return &Engine{
		targets:  append([]Target(nil), targets...),
		executor: exec,
		forcer:   f,
		cfg:      cfg,
		log:      cfg.Logger.WithField("targets", len(targets)),
	}, nil
}

// WithTargets returns an engine sharing collaborators and configuration but
// searching a different target list of the same length.
func (e *Engine) WithTargets(targets []Target) (*Engine, error) {
	if len(targets) != len(e.targets) {
		return nil, configErrorf(-1, "targets", "%d targets supplied, engine drives %d", len(targets), len(e.targets))
	}
	return NewEngine(targets, e.executor, e.forcer, e.cfg)
}

// Targets returns a copy of the engine's targets.
func (e *Engine) Targets() []Target {
	return append([]Target(nil), e.targets...)
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Forcer returns the forcer the engine applies voltages through.
func (e *Engine) Forcer() forcer.VoltageForcer {
	return e.forcer
}

// Run performs one pass. Targets set in initial are never driven. The forcer
// must already be reset; Run does not restore it.
func (e *Engine) Run(ctx context.Context, initial mask.Mask) (*Pass, error) {
	n := len(e.targets)
	if initial.Len() == 0 {
		initial = mask.New(n)
	}
	if initial.Len() != n {
		return nil, configErrorf(-1, "mask", "mask %q has %d bits for %d targets", initial.String(), initial.Len(), n)
	}

	p := newPassRun(e.targets, initial)
	log := e.log.WithField("mask", initial.String())

	for !p.current.All() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if e.cfg.MaxIterations > 0 && len(p.points) >= e.cfg.MaxIterations {
			log.WithField("iterations", len(p.points)).Warn("search exhausted iteration cap")
			p.exhaust()
			break
		}

		applied := p.vector()
		if err := e.forcer.Apply(ctx, applied); err != nil {
			return nil, fmt.Errorf("search: apply at iteration %d: %w", len(p.points), err)
		}

		passed, err := e.executor.Execute(ctx)
		if err != nil {
			return nil, fmt.Errorf("search: execute at iteration %d: %w", len(p.points), err)
		}
		p.executions++

		fails, failures, err := e.decode(ctx, p.current, passed, len(p.points))
		if err != nil {
			return nil, err
		}

		if p.shouldOvershoot(fails) {
			log.WithField("voltages", voltage.FormatVector(applied, voltage.DefaultDecimals, "_")).
				Info("all targets failed at start, retrying from retry start voltages")
			p.overshoot()
			continue
		}

		point := p.advance(applied, passed, fails, failures, e.cfg.Policy)
		log.WithFields(logrus.Fields{
			"iteration": point.Index,
			"voltages":  voltage.FormatVector(applied, voltage.DefaultDecimals, "_"),
			"passed":    passed,
			"failing":   len(point.Failures),
		}).Debug("search point")

		for _, o := range e.cfg.Observers {
			o.ObservePoint(point)
		}
	}

	result := p.result(e.cfg.Criterion)
	for _, o := range e.cfg.Observers {
		o.ObservePass(result)
	}
	log.WithFields(logrus.Fields{
		"executions": result.ExecutionCount,
		"passed":     result.Passed,
	}).Debug("search pass complete")

	return &Pass{
		Result: result,
		Points: p.points,
		States: append([]TargetState(nil), p.states...),
	}, nil
}

// decode turns one execution into per-target fail bits and the failure data
// used for pattern attribution.
func (e *Engine) decode(ctx context.Context, current mask.Mask, passed bool, iteration int) ([]bool, []Failure, error) {
	n := len(e.targets)
	if passed {
		return make([]bool, n), nil, nil
	}

	fails, err := e.executor.DecodeTargetResults(ctx, current)
	if err != nil {
		return nil, nil, fmt.Errorf("search: decode at iteration %d: %w", iteration, err)
	}
	if len(fails) != n {
		return nil, nil, &ProtocolError{
			Iteration: iteration,
			Msg:       fmt.Sprintf("executor decoded %d result bits for %d targets", len(fails), n),
		}
	}
	for i, failed := range fails {
		if failed && current.IsSet(i) {
			return nil, nil, &ProtocolError{
				Iteration: iteration,
				Msg:       fmt.Sprintf("fail reported for masked target %d (mask %s)", i, current.String()),
			}
		}
	}

	failures, err := e.executor.PerCycleFailures(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("search: per-cycle failures at iteration %d: %w", iteration, err)
	}
	return fails, failures, nil
}
