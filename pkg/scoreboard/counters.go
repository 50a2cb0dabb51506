package scoreboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/datalog"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
)

// Logger creates a counter handle for one scoreboard run.
type Logger interface {
	Create(baseNumbers []int, patternNames map[string]string, maxFails int) (Handle, error)
}

// Handle accumulates fail data and prints the resulting counters.
type Handle interface {
	ProcessFailData(failures []search.Failure) error
	PrintCounters(suffix string) error
}

// CounterLogger counts failures per pattern and prints one record per base
// number through a datalog writer.
type CounterLogger struct {
	w datalog.Writer
}

// NewCounterLogger returns a logger writing to w.
func NewCounterLogger(w datalog.Writer) *CounterLogger {
	return &CounterLogger{w: w}
}

func (l *CounterLogger) Create(baseNumbers []int, patternNames map[string]string, maxFails int) (Handle, error) {
	if len(baseNumbers) == 0 {
		return nil, fmt.Errorf("scoreboard: no base numbers")
	}
	if maxFails < 0 {
		return nil, fmt.Errorf("scoreboard: max fails must not be negative, got %d", maxFails)
	}
	return &Counters{
		w:        l.w,
		base:     append([]int(nil), baseNumbers...),
		names:    patternNames,
		maxFails: maxFails,
		counts:   make(map[string]int),
	}, nil
}

// Counters is the Handle produced by CounterLogger.
type Counters struct {
	w        datalog.Writer
	base     []int
	names    map[string]string
	maxFails int

	counts  map[string]int
	total   int
	dropped int
}

// ProcessFailData counts each failure under its mapped pattern name. Once
// maxFails failures are counted (0 means no cap) the rest are dropped.
func (c *Counters) ProcessFailData(failures []search.Failure) error {
	for _, f := range failures {
		if f.Pattern == "" {
			return fmt.Errorf("scoreboard: failure without pattern name (burst %d, id %d)", f.Burst, f.InstanceID)
		}
		if c.maxFails > 0 && c.total >= c.maxFails {
			c.dropped++
			continue
		}
		c.counts[c.label(f.Pattern)]++
		c.total++
	}
	return nil
}

func (c *Counters) label(pattern string) string {
	if name, ok := c.names[pattern]; ok && name != "" {
		return name
	}
	return pattern
}

// Counts returns the counter for every label seen.
func (c *Counters) Counts() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Dropped returns the number of failures ignored after the cap.
func (c *Counters) Dropped() int {
	return c.dropped
}

// Payload renders the counters as caret-joined label:count pairs sorted by
// label, or "na" when nothing failed.
func (c *Counters) Payload() string {
	if len(c.counts) == 0 {
		return search.NotApplicable
	}
	labels := make([]string, 0, len(c.counts))
	for k := range c.counts {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	parts := make([]string, len(labels))
	for i, k := range labels {
		parts[i] = fmt.Sprintf("%s:%d", k, c.counts[k])
	}
	return strings.Join(parts, datalog.PatternSep)
}

// PrintCounters writes one record per base number, named
// "<suffix>_SB<base>".
func (c *Counters) PrintCounters(suffix string) error {
	payload := c.Payload()
	var errs *multierror.Error
	for _, b := range c.base {
		c.w.SetNameSuffix(fmt.Sprintf("%s_SB%d", suffix, b))
		c.w.SetPayload(payload)
		errs = multierror.Append(errs, c.w.Flush())
	}
	return errs.ErrorOrNil()
}
