package sim

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/forcer"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// DecideFunc returns the fail bit of every target for one execution. call is
// zero based; applied is the vector forced before the execution.
type DecideFunc func(call int, applied []voltage.Voltage) []bool

// FailuresFunc returns the per-cycle failures for one execution.
type FailuresFunc func(call int, fails []bool) []search.Failure

// Scripted is an executor whose results come from callbacks. Fail bits on
// targets that were not driven are dropped, so scripts can be written for the
// full target vector.
type Scripted struct {
	Decide   DecideFunc
	Failures FailuresFunc

	forcer *forcer.SimForcer
	calls  int
	fails  []bool
}

// NewScripted builds a scripted executor fed by f.
func NewScripted(f *forcer.SimForcer, decide DecideFunc) *Scripted {
	return &Scripted{Decide: decide, forcer: f}
}

// Calls returns the number of executions so far.
func (s *Scripted) Calls() int {
	return s.calls
}

func (s *Scripted) Execute(ctx context.Context) (bool, error) {
	applied := s.forcer.LastApplied()
	if applied == nil {
		return false, fmt.Errorf("sim: execute before any voltage was applied")
	}

	raw := s.Decide(s.calls, applied)
	s.calls++
	if len(raw) != len(applied) {
		return false, fmt.Errorf("sim: script returned %d bits for %d targets", len(raw), len(applied))
	}

	s.fails = make([]bool, len(raw))
	passed := true
	for i, failed := range raw {
		if failed && !applied[i].IsNotDriven() {
			s.fails[i] = true
			passed = false
		}
	}
	return passed, nil
}

func (s *Scripted) DecodeTargetResults(ctx context.Context, current mask.Mask) ([]bool, error) {
	return append([]bool(nil), s.fails...), nil
}

func (s *Scripted) PerCycleFailures(ctx context.Context) ([]search.Failure, error) {
	if s.Failures != nil {
		return s.Failures(s.calls-1, s.fails), nil
	}
	var out []search.Failure
	for i, failed := range s.fails {
		if failed {
			out = append(out, search.Failure{Pattern: fmt.Sprintf("pat%d", i), Target: i, InstanceID: s.calls})
		}
	}
	return out, nil
}

// AlwaysFail fails every target on every call.
func AlwaysFail(call int, applied []voltage.Voltage) []bool {
	out := make([]bool, len(applied))
	for i := range out {
		out[i] = true
	}
	return out
}

// PassFromCall fails every target until the given zero-based call.
func PassFromCall(n int) DecideFunc {
	return func(call int, applied []voltage.Voltage) []bool {
		out := make([]bool, len(applied))
		for i := range out {
			out[i] = call < n
		}
		return out
	}
}

// Threshold fails each target while its applied voltage is below vmin[i].
func Threshold(vmin ...float64) DecideFunc {
	return func(call int, applied []voltage.Voltage) []bool {
		out := make([]bool, len(applied))
		for i, v := range applied {
			val, ok := v.Value()
			out[i] = ok && i < len(vmin) && val < vmin[i]-1e-9
		}
		return out
	}
}
