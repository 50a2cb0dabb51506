package datalog

import (
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// Wire separators.
const (
	VectorSep    = "|"
	ValueSep     = "_"
	PatternSep   = "^"
	PatternTag   = "_lp"
	IncrementTag = "_inc"
)

// Formatter renders search results into datalog payloads.
type Formatter struct {
	Decimals int
}

// DefaultFormatter returns a formatter using voltage.DefaultDecimals.
func DefaultFormatter() Formatter {
	return Formatter{Decimals: voltage.DefaultDecimals}
}

// Payload renders V1_.._Vn|S1_.._Sn|E1_.._En|Count.
func (f Formatter) Payload(r *search.Result) string {
	parts := []string{
		voltage.FormatVector(r.Voltages, f.Decimals, ValueSep),
		voltage.FormatVector(r.Starts, f.Decimals, ValueSep),
		voltage.FormatVector(r.Limits, f.Decimals, ValueSep),
		strconv.Itoa(r.ExecutionCount),
	}
	return strings.Join(parts, VectorSep)
}

// PatternPayload renders P1^..^Pn, substituting "na" for empty names.
func (f Formatter) PatternPayload(r *search.Result) string {
	names := make([]string, len(r.LimitingPatterns))
	for i, p := range r.LimitingPatterns {
		if p == "" {
			p = search.NotApplicable
		}
		names[i] = p
	}
	return strings.Join(names, PatternSep)
}

// IncrementPayload renders I1_.._In.
func (f Formatter) IncrementPayload(r *search.Result) string {
	counts := make([]string, len(r.Increments))
	for i, n := range r.Increments {
		counts[i] = strconv.Itoa(n)
	}
	return strings.Join(counts, ValueSep)
}
