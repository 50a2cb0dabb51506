package search

import (
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// passRun holds the state of one pass. It is created by Engine.Run and never
// shared.
type passRun struct {
	targets []Target
	initial mask.Mask
	current mask.Mask
	starts  []float64 // Working start per target, changed by an overshoot
	states  []TargetState
	points  []Point

	executions int
	overshot   bool
	exhausted  bool
}

func newPassRun(targets []Target, initial mask.Mask) *passRun {
	p := &passRun{
		targets: targets,
		initial: initial,
		current: initial,
		starts:  make([]float64, len(targets)),
		states:  make([]TargetState, len(targets)),
	}

	for i, t := range targets {
		p.starts[i] = t.Start
		if initial.IsSet(i) {
			p.states[i] = TargetState{
				Voltage:         voltage.NotDriven(),
				LimitingPattern: NotApplicable,
				Masked:          true,
				Outcome:         OutcomeHeld,
			}
			continue
		}
		p.states[i] = TargetState{
			Voltage:         voltage.Of(t.Start),
			LimitingPattern: NotApplicable,
		}
	}
	return p
}

// vector builds the voltages to apply. Masked targets are not driven; a
// target that passed keeps its final voltage in its state only.
func (p *passRun) vector() []voltage.Voltage {
	out := make([]voltage.Voltage, len(p.targets))
	for i := range out {
		if p.current.IsSet(i) {
			out[i] = voltage.NotDriven()
			continue
		}
		out[i] = p.states[i].Voltage
	}
	return out
}

// shouldOvershoot reports whether the first execution failed every unmasked
// target and a retry start exists. It fires at most once per pass.
func (p *passRun) shouldOvershoot(fails []bool) bool {
	if p.overshot || len(p.points) > 0 {
		return false
	}
	retry := false
	for i, t := range p.targets {
		if p.current.IsSet(i) {
			continue
		}
		if !fails[i] {
			return false
		}
		if t.RetryStart != nil {
			retry = true
		}
	}
	return retry
}

// overshoot moves every unmasked target with a retry start onto it.
func (p *passRun) overshoot() {
	p.overshot = true
	for i, t := range p.targets {
		if p.current.IsSet(i) || t.RetryStart == nil {
			continue
		}
		p.starts[i] = *t.RetryStart
		p.states[i].Voltage = voltage.Of(*t.RetryStart)
		p.states[i].steps = 0
	}
}

// advance records the point for one execution and moves every unmasked
// target: passing targets conclude, failing targets step or exhaust.
func (p *passRun) advance(applied []voltage.Voltage, passed bool, fails []bool, failures []Failure, policy PatternPolicy) Point {
	point := Point{
		Index:    len(p.points),
		Voltages: applied,
		Passed:   passed,
		Failures: make(map[int]Failure),
	}

	next := p.current
	for i, t := range p.targets {
		if p.current.IsSet(i) {
			continue
		}
		st := &p.states[i]

		if !fails[i] {
			st.Masked = true
			st.Outcome = OutcomePassed
			next = next.With(i)
			continue
		}

		if f, ok := policy.Select(failures, i); ok {
			st.LimitingPattern = f.Pattern
			point.Failures[i] = f
		} else {
			point.Failures[i] = Failure{Pattern: st.LimitingPattern, Target: i}
		}

		stepped := voltage.Round(p.starts[i] + float64(st.steps+1)*t.Step)
		if beyond(stepped, t.End, t.Step) {
			st.Voltage = voltage.NotFound()
			st.Masked = true
			st.Outcome = OutcomeExhausted
			next = next.With(i)
			continue
		}
		st.steps++
		st.Increments++
		st.Voltage = voltage.Of(stepped)
	}

	p.current = next
	p.points = append(p.points, point)
	return point
}

// exhaust concludes every unmasked target as not found. The step taken after
// the last point was never applied, so it is not counted.
func (p *passRun) exhaust() {
	p.exhausted = true
	for i := range p.targets {
		if p.current.IsSet(i) {
			continue
		}
		if p.states[i].steps > 0 {
			p.states[i].steps--
			p.states[i].Increments--
		}
		p.states[i].Voltage = voltage.NotFound()
		p.states[i].Masked = true
		p.states[i].Outcome = OutcomeExhausted
		p.current = p.current.With(i)
	}
}

func (p *passRun) result(criterion Criterion) *Result {
	n := len(p.targets)
	r := &Result{
		Voltages:         make([]voltage.Voltage, n),
		Starts:           make([]voltage.Voltage, n),
		Limits:           make([]voltage.Voltage, n),
		Mask:             p.initial,
		ExecutionCount:   p.executions,
		Increments:       make([]int, n),
		LimitingPatterns: make([]string, n),
		Exhausted:        p.exhausted,
		Overshoot:        p.overshot,
	}
	for i, t := range p.targets {
		st := p.states[i]
		r.Voltages[i] = st.Voltage
		r.Starts[i] = voltage.Of(p.starts[i])
		r.Limits[i] = voltage.Of(t.End)
		r.Increments[i] = st.Increments
		r.LimitingPatterns[i] = st.LimitingPattern
	}
	r.Passed = criterion.Evaluate(r.Voltages, p.initial)
	return r
}
