package search

import (
	"math"

	"github.com/hashicorp/go-multierror"
)

// beyond reports whether v lies past end in the direction given by step.
func beyond(v, end, step float64) bool {
	const eps = 1e-9
	if step > 0 {
		return v > end+eps
	}
	return v < end-eps
}

// ValidateTargets checks every target and returns all problems at once.
func ValidateTargets(targets []Target) error {
	var merr *multierror.Error

	if len(targets) == 0 {
		merr = multierror.Append(merr, configErrorf(-1, "targets", "no voltage targets configured"))
	}

	for i, t := range targets {
		if math.IsNaN(t.Start) || math.IsNaN(t.End) || math.IsNaN(t.Step) {
			merr = multierror.Append(merr, configErrorf(i, "voltage", "NaN in start=%v end=%v step=%v", t.Start, t.End, t.Step))
			continue
		}
		if t.Step == 0 {
			merr = multierror.Append(merr, configErrorf(i, "step", "step size must be non-zero"))
			continue
		}
		if beyond(t.Start, t.End, t.Step) {
			merr = multierror.Append(merr, configErrorf(i, "start",
				"start %.4f is beyond end limit %.4f for step %.4f", t.Start, t.End, t.Step))
		}
		if t.RetryStart != nil {
			if math.IsNaN(*t.RetryStart) {
				merr = multierror.Append(merr, configErrorf(i, "retry start", "NaN"))
			} else if beyond(*t.RetryStart, t.End, t.Step) {
				merr = multierror.Append(merr, configErrorf(i, "retry start",
					"retry start %.4f is beyond end limit %.4f for step %.4f", *t.RetryStart, t.End, t.Step))
			}
		}
	}

	return merr.ErrorOrNil()
}

// BuildTargets assembles targets from per-field vectors. Each of starts, ends
// and steps holds either one shared value or one value per name. retry may be
// empty, shared or per-target.
func BuildTargets(names []string, starts, ends, steps, retry []float64) ([]Target, error) {
	n := len(names)
	var merr *multierror.Error

	if n == 0 {
		return nil, configErrorf(-1, "targets", "no voltage targets configured")
	}

	expand := func(field string, vals []float64, optional bool) []float64 {
		switch {
		case len(vals) == 0 && optional:
			return nil
		case len(vals) == 1:
			out := make([]float64, n)
			for i := range out {
				out[i] = vals[0]
			}
			return out
		case len(vals) == n:
			return vals
		}
		merr = multierror.Append(merr, configErrorf(-1, field,
			"%d values supplied for %d targets", len(vals), n))
		return nil
	}

	s := expand("start voltages", starts, false)
	e := expand("end limits", ends, false)
	st := expand("step sizes", steps, false)
	r := expand("retry start voltages", retry, true)
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}

	targets := make([]Target, n)
	for i := range targets {
		targets[i] = Target{Name: names[i], Start: s[i], End: e[i], Step: st[i]}
		if r != nil {
			v := r[i]
			targets[i].RetryStart = &v
		}
	}

	if err := ValidateTargets(targets); err != nil {
		return nil, err
	}
	return targets, nil
}
