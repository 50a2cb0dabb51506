package datalog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

func sampleResult() *search.Result {
	return &search.Result{
		Voltages:         []voltage.Voltage{voltage.Of(0.4), voltage.Of(0.5), voltage.NotDriven(), voltage.Of(0.6)},
		Starts:           []voltage.Voltage{voltage.Of(0.3), voltage.Of(0.3), voltage.Of(0.5), voltage.Of(0.5)},
		Limits:           []voltage.Voltage{voltage.Of(0.8), voltage.Of(0.8), voltage.Of(0.8), voltage.Of(0.8)},
		Mask:             mask.New(4),
		ExecutionCount:   8,
		Increments:       []int{1, 2, 3, 1},
		LimitingPatterns: []string{"pat1", "na", "", "pat6"},
	}
}

func TestFormatterPayloads(t *testing.T) {
	f := DefaultFormatter()
	r := sampleResult()

	assert.Equal(t, "0.400_0.500_-8888_0.600|0.300_0.300_0.500_0.500|0.800_0.800_0.800_0.800|8", f.Payload(r))
	assert.Equal(t, "pat1^na^na^pat6", f.PatternPayload(r))
	assert.Equal(t, "1_2_3_1", f.IncrementPayload(r))
}

func TestFormatterNotFound(t *testing.T) {
	r := &search.Result{
		Voltages:       []voltage.Voltage{voltage.NotFound(), voltage.NotFound()},
		Starts:         []voltage.Voltage{voltage.Of(0.4), voltage.Of(0.4)},
		Limits:         []voltage.Voltage{voltage.Of(0.6), voltage.Of(0.6)},
		ExecutionCount: 3,
	}
	assert.Equal(t, "-9999_-9999|0.400_0.400|0.600_0.600|3", Formatter{Decimals: 3}.Payload(r))
	assert.Equal(t, "-9999_-9999|0.4_0.4|0.6_0.6|3", Formatter{Decimals: 1}.Payload(r))
}

func TestPayloadRoundTrip(t *testing.T) {
	r := sampleResult()
	rec, err := ParsePayload(DefaultFormatter().Payload(r))
	require.NoError(t, err)

	assert.Equal(t, 4, rec.Targets())
	assert.Equal(t, r.ExecutionCount, rec.ExecutionCount)
	for i := range r.Voltages {
		assert.True(t, r.Voltages[i].Equal(rec.Voltages[i]), "voltage %d", i)
		assert.True(t, r.Starts[i].Equal(rec.Starts[i]), "start %d", i)
		assert.True(t, r.Limits[i].Equal(rec.Limits[i]), "limit %d", i)
	}
	assert.True(t, rec.Voltages[2].IsNotDriven())
}

func TestParsePayloadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing count", "0.4_0.5|0.3_0.3|0.8_0.8"},
		{"letters", "0.4_x|0.3_0.3|0.8_0.8|2"},
		{"length mismatch", "0.4_0.5|0.3|0.8_0.8|2"},
		{"fractional count", "0.4|0.3|0.8|2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestParsePatternsAndIncrements(t *testing.T) {
	names, err := ParsePatterns("pat1^na^na^pat6")
	require.NoError(t, err)
	assert.Equal(t, []string{"pat1", "na", "na", "pat6"}, names)

	counts, err := ParseIncrements("1_2_3_1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 1}, counts)

	_, err = ParseIncrements("1__2")
	assert.Error(t, err)
	_, err = ParsePatterns("")
	assert.Error(t, err)
}

func TestLoggerWritesAllRecords(t *testing.T) {
	w := NewMemoryWriter("vmin")
	l := NewLogger(w)

	used, err := l.Log(sampleResult(), "_core")
	require.NoError(t, err)
	assert.Equal(t, "_core", used)

	entries := w.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "vmin_core", entries[0].Name)
	assert.Equal(t, "vmin_core_lp", entries[1].Name)
	assert.Equal(t, "pat1^na^na^pat6", entries[1].Payload)
	assert.Equal(t, "vmin_core_inc", entries[2].Name)
}

func TestLoggerUniqueSuffixes(t *testing.T) {
	w := NewMemoryWriter("t")
	l := NewLogger(w)
	l.Patterns = false
	l.Increments = false

	for _, want := range []string{"_x", "_x_2", "_x_3"} {
		got, err := l.Log(sampleResult(), "_x")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Len(t, w.Entries(), 3)
	_, ok := w.Lookup("t_x_3")
	assert.True(t, ok)
}

func TestZeroLogger(t *testing.T) {
	var empty Logger
	assert.NotPanics(t, func() {
		_, err := empty.Log(sampleResult(), "_x")
		assert.Error(t, err)
	})

	w := NewMemoryWriter("t")
	l := &Logger{w: w}
	for _, want := range []string{"_x", "_x_2"} {
		got, err := l.Log(sampleResult(), "_x")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Len(t, w.Entries(), 2)
}

func TestLoggerRejectsInconsistentResult(t *testing.T) {
	r := sampleResult()
	r.Increments = r.Increments[:2]
	_, err := NewLogger(NewMemoryWriter("t")).Log(r, "")
	assert.Error(t, err)
}

type failingWriter struct{ MemoryWriter }

func (w *failingWriter) Flush() error { return errors.New("disk full") }

func TestLoggerSurfacesFlushErrors(t *testing.T) {
	_, err := NewLogger(&failingWriter{}).Log(sampleResult(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf, "vmin")
	w.SetNameSuffix("_P0")
	w.SetPayload("0.500|0.400|0.800|2")
	require.NoError(t, w.Flush())

	assert.Equal(t, "2_tname_vmin_P0\n2_strgval_0.500|0.400|0.800|2\n", buf.String())
}
