// Package sim provides in-memory stand-ins for the hardware a voltage search
// drives: a device model whose patterns pass above a per-pattern Vmin, and a
// scripted executor for deterministic tests. Both observe the voltages applied
// through a forcer.SimForcer.
package sim

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/forcer"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// Pattern is one simulated functional pattern. It passes when its target is
// driven at or above Vmin. Target -1 makes the pattern global: it checks
// every driven target and its failures are reported unattributed.
type Pattern struct {
	Name   string  `yaml:"name"`
	Target int     `yaml:"target"`
	Vmin   float64 `yaml:"vmin"`
}

// Bench simulates a device under test wired to a forcer.
type Bench struct {
	Patterns []Pattern

	forcer  *forcer.SimForcer
	applied []voltage.Voltage

	calls    int
	fails    []bool
	failures []search.Failure
}

// NewBench builds a bench for targets voltage domains.
func NewBench(targets int, patterns []Pattern) (*Bench, error) {
	for _, p := range patterns {
		if p.Target < search.Unattributed || p.Target >= targets {
			return nil, fmt.Errorf("sim: pattern %s targets %d, bench has %d targets", p.Name, p.Target, targets)
		}
	}

	b := &Bench{
		Patterns: append([]Pattern(nil), patterns...),
		forcer:   forcer.NewSimForcer(targets),
	}
	b.forcer.OnApply = func(vs []voltage.Voltage) error {
		b.applied = append([]voltage.Voltage(nil), vs...)
		return nil
	}
	return b, nil
}

// Forcer returns the forcer that feeds the bench.
func (b *Bench) Forcer() *forcer.SimForcer {
	return b.forcer
}

// Calls returns how many times the pattern list has been executed.
func (b *Bench) Calls() int {
	return b.calls
}

func (b *Bench) Execute(ctx context.Context) (bool, error) {
	if b.applied == nil {
		return false, fmt.Errorf("sim: execute before any voltage was applied")
	}
	b.calls++
	b.fails = make([]bool, len(b.applied))
	b.failures = nil

	for burst, p := range b.Patterns {
		for _, target := range b.patternTargets(p) {
			v, ok := b.applied[target].Value()
			if !ok || v >= p.Vmin-1e-9 {
				continue
			}
			b.fails[target] = true
			attributed := target
			if p.Target == search.Unattributed {
				attributed = search.Unattributed
			}
			b.failures = append(b.failures, search.Failure{
				Pattern:    p.Name,
				Burst:      burst,
				InstanceID: b.calls,
				Target:     attributed,
			})
		}
	}

	for _, failed := range b.fails {
		if failed {
			return false, nil
		}
	}
	return true, nil
}

func (b *Bench) patternTargets(p Pattern) []int {
	if p.Target != search.Unattributed {
		return []int{p.Target}
	}
	all := make([]int, len(b.applied))
	for i := range all {
		all[i] = i
	}
	return all
}

func (b *Bench) DecodeTargetResults(ctx context.Context, current mask.Mask) ([]bool, error) {
	out := make([]bool, len(b.fails))
	for i, failed := range b.fails {
		out[i] = failed && !current.IsSet(i)
	}
	return out, nil
}

func (b *Bench) PerCycleFailures(ctx context.Context) ([]search.Failure, error) {
	return append([]search.Failure(nil), b.failures...), nil
}

// Vmin returns the voltage at which target first passes every pattern, the
// value an upward search with a fine enough step converges on.
func (b *Bench) Vmin(target int) float64 {
	vmin := 0.0
	for _, p := range b.Patterns {
		if (p.Target == target || p.Target == search.Unattributed) && p.Vmin > vmin {
			vmin = p.Vmin
		}
	}
	return vmin
}
