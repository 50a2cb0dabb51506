package search

import (
	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceVmin/internal/logger"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// PatternPolicy chooses which failure becomes a target's limiting pattern
// when several patterns fail the target on the same iteration.
type PatternPolicy uint8

const (
	LastFailure PatternPolicy = iota // Last failure in capture order
	FirstFailure
)

// ParsePatternPolicy maps "last"/"first" to a policy.
func ParsePatternPolicy(s string) (PatternPolicy, error) {
	switch s {
	case "", "last":
		return LastFailure, nil
	case "first":
		return FirstFailure, nil
	}
	return LastFailure, configErrorf(-1, "limiting pattern policy", "unknown policy %q (want first or last)", s)
}

func (p PatternPolicy) String() string {
	if p == FirstFailure {
		return "first"
	}
	return "last"
}

// Select picks the failure for target from one iteration's per-cycle data.
// Failures mapped to the target are preferred over unattributed ones.
func (p PatternPolicy) Select(failures []Failure, target int) (Failure, bool) {
	pick := func(match func(Failure) bool) (Failure, bool) {
		var chosen Failure
		found := false
		for _, f := range failures {
			if !match(f) {
				continue
			}
			if p == FirstFailure && found {
				continue
			}
			chosen = f
			found = true
		}
		return chosen, found
	}

	if f, ok := pick(func(f Failure) bool { return f.Target == target }); ok {
		return f, true
	}
	return pick(func(f Failure) bool { return f.Target == Unattributed })
}

// Criterion decides whether a finished search counts as passing.
type Criterion uint8

const (
	AllTargets Criterion = iota // Every driven target found a passing voltage
	AnyTarget
)

// ParseCriterion maps "all"/"any" to a criterion.
func ParseCriterion(s string) (Criterion, error) {
	switch s {
	case "", "all":
		return AllTargets, nil
	case "any":
		return AnyTarget, nil
	}
	return AllTargets, configErrorf(-1, "pass criterion", "unknown criterion %q (want all or any)", s)
}

// Observer receives engine progress. Implementations must not block.
type Observer interface {
	ObservePoint(p Point)
	ObservePass(r *Result)
}

// Config controls engine behavior that is not tied to individual targets.
type Config struct {
	MaxIterations int // Recorded points per pass, 0 for no cap
	Policy        PatternPolicy
	Criterion     Criterion

	Logger    logrus.FieldLogger
	Observers []Observer
}

// DefaultConfig returns a Config with no iteration cap, last-failure pattern
// attribution and the all-targets pass criterion.
func DefaultConfig() *Config {
	return &Config{
		MaxIterations: 0,
		Policy:        LastFailure,
		Criterion:     AllTargets,
	}
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.MaxIterations < 0 {
		return configErrorf(-1, "max iterations", "must not be negative, got %d", c.MaxIterations)
	}
	if c.Policy > FirstFailure {
		return configErrorf(-1, "limiting pattern policy", "unknown value %d", c.Policy)
	}
	if c.Criterion > AnyTarget {
		return configErrorf(-1, "pass criterion", "unknown value %d", c.Criterion)
	}
	if c.Logger == nil {
		c.Logger = logger.Discard()
	}
	return nil
}

// Evaluate applies the criterion to final voltages, ignoring targets set in
// held.
func (c Criterion) Evaluate(voltages []voltage.Voltage, held mask.Mask) bool {
	driven, found := 0, 0
	for i, v := range voltages {
		if held.IsSet(i) {
			continue
		}
		driven++
		if v.IsValue() {
			found++
		}
	}
	switch c {
	case AnyTarget:
		return found > 0
	default:
		return found == driven
	}
}

func (c Criterion) String() string {
	if c == AnyTarget {
		return "any"
	}
	return "all"
}
