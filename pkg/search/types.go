package search

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// NotApplicable is the limiting pattern of a target that never failed.
const NotApplicable = "na"

// Unattributed marks a per-cycle failure the executor could not map to a
// target.
const Unattributed = -1

// Target describes one independently searched voltage domain.
type Target struct {
	Name       string
	Start      float64
	End        float64
	Step       float64  // Sign gives the search direction
	RetryStart *float64 // Start used after an overshoot, nil disables it
}

// Failure identifies the pattern behind a failing capture.
type Failure struct {
	Pattern    string
	Burst      int
	InstanceID int
	Target     int // Bit position the failure maps to, or Unattributed
}

func (f Failure) String() string {
	return fmt.Sprintf("%s[burst=%d,id=%d]", f.Pattern, f.Burst, f.InstanceID)
}

// Outcome records how a target concluded within a pass.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomePassed
	OutcomeExhausted
	OutcomeHeld // Masked by the initial mask, never driven
)

var outcomeNames = map[Outcome]string{
	OutcomePending:   "pending",
	OutcomePassed:    "passed",
	OutcomeExhausted: "exhausted",
	OutcomeHeld:      "held",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", o)
}

// TargetState is the mutable per-target record of a running pass.
type TargetState struct {
	Voltage         voltage.Voltage
	Increments      int
	LimitingPattern string
	Masked          bool
	Outcome         Outcome

	steps int // Number of steps taken from the working start
}

// Edge reports whether the target failed at least once and then passed.
func (s TargetState) Edge() bool {
	return s.Outcome == OutcomePassed && s.Increments > 0
}

// Point is one recorded plist execution.
type Point struct {
	Index    int
	Voltages []voltage.Voltage
	Passed   bool
	Failures map[int]Failure // Keyed by failing target index
}

// Result aggregates one pass, or the merge of several passes.
type Result struct {
	Voltages         []voltage.Voltage
	Starts           []voltage.Voltage
	Limits           []voltage.Voltage
	Mask             mask.Mask
	ExecutionCount   int
	Increments       []int
	LimitingPatterns []string
	Passed           bool
	Exhausted        bool
	Overshoot        bool

	MultiPassIndex  int
	RepetitionIndex int
	Suffix          string
}

// Targets returns the number of targets covered by r.
func (r *Result) Targets() int {
	return len(r.Voltages)
}

// Validate checks that every per-target vector has the same length.
func (r *Result) Validate() error {
	n := len(r.Voltages)
	lengths := map[string]int{
		"starts":            len(r.Starts),
		"limits":            len(r.Limits),
		"increments":        len(r.Increments),
		"limiting patterns": len(r.LimitingPatterns),
		"mask":              r.Mask.Len(),
	}
	for name, l := range lengths {
		if l != n {
			return fmt.Errorf("search: result has %d %s for %d voltages", l, name, n)
		}
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	c := *r
	c.Voltages = append([]voltage.Voltage(nil), r.Voltages...)
	c.Starts = append([]voltage.Voltage(nil), r.Starts...)
	c.Limits = append([]voltage.Voltage(nil), r.Limits...)
	c.Increments = append([]int(nil), r.Increments...)
	c.LimitingPatterns = append([]string(nil), r.LimitingPatterns...)
	c.Mask = mask.FromBools(r.Mask.Bools())
	return &c
}

// Pass is the complete output of one engine run.
type Pass struct {
	Result *Result
	Points []Point
	States []TargetState
}

// EdgeReached reports whether any target found a fail-to-pass transition.
func (p *Pass) EdgeReached() bool {
	for _, s := range p.States {
		if s.Edge() {
			return true
		}
	}
	return false
}

// LastPoint returns the final recorded point, or nil.
func (p *Pass) LastPoint() *Point {
	if len(p.Points) == 0 {
		return nil
	}
	return &p.Points[len(p.Points)-1]
}
