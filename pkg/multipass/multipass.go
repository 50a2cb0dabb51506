// Package multipass runs a search once per partition mask and assembles the
// per-target results of all passes into one record.
package multipass

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceVmin/internal/logger"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/datalog"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// MergedIndex is the MultiPassIndex of a merged result.
const MergedIndex = -1

// PassHook is called after every completed pass, before the next starts.
type PassHook func(ctx context.Context, index int, pass *search.Pass)

// Coordinator runs an engine once per applicable mask.
type Coordinator struct {
	engine  *search.Engine
	masks   []mask.Mask
	log     logrus.FieldLogger
	datalog *datalog.Logger
	hooks   []PassHook
	suffix  string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for pass progress and skipped masks.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithPassLogging logs every individual pass under a "<suffix>_P<i>" suffix
// when more than one mask runs.
func WithPassLogging(l *datalog.Logger) Option {
	return func(c *Coordinator) { c.datalog = l }
}

// WithPassHook registers a hook run after every pass.
func WithPassHook(h PassHook) Option {
	return func(c *Coordinator) { c.hooks = append(c.hooks, h) }
}

// New creates a coordinator over masks. Masks whose length differs from the
// engine's target count are dropped with a warning; if that leaves none of a
// non-empty list, New fails. An empty list runs a single pass with every
// target driven.
func New(engine *search.Engine, masks []mask.Mask, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		engine: engine,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	n := len(engine.Targets())
	skipped := make([]string, 0, len(masks))
	for i, m := range masks {
		if m.Len() != n {
			c.log.WithFields(logrus.Fields{
				"index":   i,
				"mask":    m.String(),
				"bits":    m.Len(),
				"targets": n,
			}).Warn("skipping multi-pass mask with wrong length")
			skipped = append(skipped, m.String())
			continue
		}
		c.masks = append(c.masks, m)
	}
	if len(masks) > 0 && len(c.masks) == 0 {
		return nil, search.ConfigErrorf("multi-pass masks", "none of %s has %d bits",
			strings.Join(skipped, ","), n)
	}
	return c, nil
}

// NewFromList parses a comma separated mask list such as "00,01,10".
func NewFromList(engine *search.Engine, list string, opts ...Option) (*Coordinator, error) {
	masks, err := mask.ParseList(list)
	if err != nil {
		return nil, search.ConfigErrorf("multi-pass masks", "%v", err)
	}
	return New(engine, masks, opts...)
}

// Engine returns the engine driven by the coordinator.
func (c *Coordinator) Engine() *search.Engine {
	return c.engine
}

// WithEngine returns a copy of c driving engine instead. The mask list is
// kept as already filtered.
func (c *Coordinator) WithEngine(engine *search.Engine) *Coordinator {
	cp := *c
	cp.engine = engine
	return &cp
}

// WithSuffix returns a copy of c whose pass suffixes start with suffix.
func (c *Coordinator) WithSuffix(suffix string) *Coordinator {
	cp := *c
	cp.suffix = suffix
	return &cp
}

// Masks returns the masks that will be run.
func (c *Coordinator) Masks() []mask.Mask {
	if len(c.masks) == 0 {
		return []mask.Mask{mask.New(len(c.engine.Targets()))}
	}
	return append([]mask.Mask(nil), c.masks...)
}

// Outcome is the merged result plus every individual pass.
type Outcome struct {
	Result *search.Result
	Passes []*search.Pass
}

// Run executes every pass sequentially and merges them.
func (c *Coordinator) Run(ctx context.Context) (*Outcome, error) {
	masks := c.Masks()
	out := &Outcome{Passes: make([]*search.Pass, 0, len(masks))}

	for i, m := range masks {
		log := c.log.WithFields(logrus.Fields{"pass": i, "mask": m.String()})
		log.Info("starting search pass")

		pass, err := c.engine.Run(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("multipass: pass %d (mask %s): %w", i, m.String(), err)
		}
		pass.Result.MultiPassIndex = i
		pass.Result.Suffix = c.suffix
		if len(masks) > 1 {
			pass.Result.Suffix += fmt.Sprintf("_P%d", i)
		}

		if c.datalog != nil && len(masks) > 1 {
			if _, err := c.datalog.Log(pass.Result, pass.Result.Suffix); err != nil {
				return nil, fmt.Errorf("multipass: logging pass %d: %w", i, err)
			}
		}

		log.WithFields(logrus.Fields{
			"voltages":   voltage.FormatVector(pass.Result.Voltages, voltage.DefaultDecimals, "_"),
			"executions": pass.Result.ExecutionCount,
			"passed":     pass.Result.Passed,
		}).Info("search pass complete")

		for _, h := range c.hooks {
			h(ctx, i, pass)
		}
		out.Passes = append(out.Passes, pass)
	}

	out.Result = Merge(out.Passes, c.engine.Config().Criterion)
	return out, nil
}

// Merge assembles one result from passes. Each target takes its values from
// the pass that drove it; if several passes drove it the later one wins.
// Execution counts are summed and the merged mask holds only the targets no
// pass drove.
func Merge(passes []*search.Pass, criterion search.Criterion) *search.Result {
	if len(passes) == 0 {
		return nil
	}
	if len(passes) == 1 {
		r := passes[0].Result.Clone()
		r.MultiPassIndex = MergedIndex
		r.Suffix = ""
		return r
	}

	first := passes[0].Result
	n := first.Targets()
	merged := &search.Result{
		Voltages:         make([]voltage.Voltage, n),
		Starts:           append([]voltage.Voltage(nil), first.Starts...),
		Limits:           append([]voltage.Voltage(nil), first.Limits...),
		Mask:             first.Mask,
		Increments:       make([]int, n),
		LimitingPatterns: make([]string, n),
		MultiPassIndex:   MergedIndex,
	}
	for i := range merged.Voltages {
		merged.Voltages[i] = voltage.NotDriven()
		merged.LimitingPatterns[i] = search.NotApplicable
	}

	for _, p := range passes {
		r := p.Result
		merged.ExecutionCount += r.ExecutionCount
		merged.Exhausted = merged.Exhausted || r.Exhausted
		merged.Overshoot = merged.Overshoot || r.Overshoot
		merged.Mask = merged.Mask.Intersect(r.Mask)

		for i := 0; i < n; i++ {
			if r.Mask.IsSet(i) {
				continue
			}
			merged.Voltages[i] = r.Voltages[i]
			merged.Starts[i] = r.Starts[i]
			merged.Limits[i] = r.Limits[i]
			merged.Increments[i] = r.Increments[i]
			merged.LimitingPatterns[i] = r.LimitingPatterns[i]
		}
	}

	merged.Passed = criterion.Evaluate(merged.Voltages, merged.Mask)
	return merged
}
