package repetition

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
)

// Policy decides whether a search repeats and whether a composed sequence
// moves on to its next search.
type Policy interface {
	// HasToRepeatSearch is called after repetition rep (zero based) with
	// its merged result.
	HasToRepeatSearch(rep int, result *search.Result) bool
	// HasToContinueToNextSearch is called once with every repetition's
	// result.
	HasToContinueToNextSearch(results []*search.Result) bool
}

// RepeatUntilPass repeats while the last repetition failed and continues
// only when the last repetition passed.
type RepeatUntilPass struct{}

func (RepeatUntilPass) HasToRepeatSearch(rep int, result *search.Result) bool {
	return !result.Passed
}

func (RepeatUntilPass) HasToContinueToNextSearch(results []*search.Result) bool {
	return len(results) > 0 && results[len(results)-1].Passed
}

// RepeatAlways runs every allowed repetition and continues only when all of
// them passed.
type RepeatAlways struct{}

func (RepeatAlways) HasToRepeatSearch(rep int, result *search.Result) bool {
	return true
}

func (RepeatAlways) HasToContinueToNextSearch(results []*search.Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return len(results) > 0
}

// NoRepeat runs once and always continues.
type NoRepeat struct{}

func (NoRepeat) HasToRepeatSearch(rep int, result *search.Result) bool {
	return false
}

func (NoRepeat) HasToContinueToNextSearch(results []*search.Result) bool {
	return true
}

// ParsePolicy maps a configuration name onto a built-in policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "until-pass":
		return RepeatUntilPass{}, nil
	case "always":
		return RepeatAlways{}, nil
	case "none", "once":
		return NoRepeat{}, nil
	}
	return nil, search.ConfigErrorf("repetition policy", "unknown policy %q (want until-pass, always or none)", s)
}

// PostProcess turns every repetition's result into the exit signal.
type PostProcess func(results []*search.Result) bool

// DefaultPostProcess passes when the last repetition passed.
func DefaultPostProcess(results []*search.Result) bool {
	if len(results) == 0 {
		return false
	}
	return results[len(results)-1].Passed
}

func policyName(p Policy) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", p), "repetition.")
}
