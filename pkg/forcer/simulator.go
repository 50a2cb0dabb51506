package forcer

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// ApplyHook allows a simulator to observe or reject applied vectors.
type ApplyHook func(voltages []voltage.Voltage) error

// SimForcer is an in-memory forcer useful for unit tests and the simulated
// bench. It records every applied vector and counts resets and restores.
type SimForcer struct {
	Targets int

	OnApply ApplyHook

	applied  [][]voltage.Voltage
	resets   int
	restores int
	active   bool
}

// NewSimForcer constructs a simulator for the given number of targets.
func NewSimForcer(targets int) *SimForcer {
	return &SimForcer{Targets: targets}
}

func (s *SimForcer) Reset(ctx context.Context) error {
	s.resets++
	s.active = true
	return nil
}

func (s *SimForcer) Apply(ctx context.Context, voltages []voltage.Voltage) error {
	if !s.active {
		return fmt.Errorf("forcer: apply before reset")
	}
	if err := ValidateVector(voltages, s.Targets); err != nil {
		return err
	}

	s.applied = append(s.applied, append([]voltage.Voltage(nil), voltages...))

	if s.OnApply != nil {
		return s.OnApply(voltages)
	}
	return nil
}

func (s *SimForcer) Restore(ctx context.Context) error {
	s.restores++
	s.active = false
	return nil
}

// Applied returns a copy of every vector applied so far.
func (s *SimForcer) Applied() [][]voltage.Voltage {
	out := make([][]voltage.Voltage, len(s.applied))
	for i, v := range s.applied {
		out[i] = append([]voltage.Voltage(nil), v...)
	}
	return out
}

// LastApplied returns the most recent vector, or nil.
func (s *SimForcer) LastApplied() []voltage.Voltage {
	if len(s.applied) == 0 {
		return nil
	}
	return append([]voltage.Voltage(nil), s.applied[len(s.applied)-1]...)
}

// Counts reports how many resets and restores have been requested.
func (s *SimForcer) Counts() (resets, restores int) {
	return s.resets, s.restores
}

// Active reports whether the forcer is between Reset and Restore.
func (s *SimForcer) Active() bool {
	return s.active
}
