package datalog

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
)

// Logger writes search results to a Writer, keeping every suffix unique.
// Use NewLogger; a zero Logger has no writer and Log fails.
type Logger struct {
	Formatter  Formatter
	Patterns   bool // Emit the limiting pattern record
	Increments bool // Emit the increment record

	w    Writer
	used map[string]bool
}

// NewLogger returns a logger emitting all three records.
func NewLogger(w Writer) *Logger {
	return &Logger{
		Formatter:  DefaultFormatter(),
		Patterns:   true,
		Increments: true,
		w:          w,
		used:       make(map[string]bool),
	}
}

// Writer returns the underlying sink.
func (l *Logger) Writer() Writer {
	return l.w
}

// Log writes r under suffix and returns the suffix actually used. A suffix
// already written by this logger gets "_<n>" appended.
func (l *Logger) Log(r *search.Result, suffix string) (string, error) {
	if l.w == nil {
		return "", fmt.Errorf("datalog: logger has no writer")
	}
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("datalog: %w", err)
	}

	suffix = l.unique(suffix)

	var errs *multierror.Error
	errs = multierror.Append(errs, l.emit(suffix, l.Formatter.Payload(r)))
	if l.Patterns {
		errs = multierror.Append(errs, l.emit(suffix+PatternTag, l.Formatter.PatternPayload(r)))
	}
	if l.Increments {
		errs = multierror.Append(errs, l.emit(suffix+IncrementTag, l.Formatter.IncrementPayload(r)))
	}
	return suffix, errs.ErrorOrNil()
}

func (l *Logger) unique(suffix string) string {
	if l.used == nil {
		l.used = make(map[string]bool)
	}
	candidate := suffix
	for n := 2; l.used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", suffix, n)
	}
	l.used[candidate] = true
	return candidate
}

func (l *Logger) emit(suffix, payload string) error {
	l.w.SetNameSuffix(suffix)
	l.w.SetPayload(payload)
	return l.w.Flush()
}
