package repetition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/datalog"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/forcer"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/multipass"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/sim"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

type fixture struct {
	forcer *forcer.SimForcer
	exec   *sim.Scripted
	passes *multipass.Coordinator
}

func newFixture(t *testing.T, start, end float64, masks string, decide sim.DecideFunc) *fixture {
	t.Helper()
	targets, err := search.BuildTargets([]string{"a", "b"}, []float64{start}, []float64{end}, []float64{0.1}, nil)
	require.NoError(t, err)

	f := forcer.NewSimForcer(2)
	exec := sim.NewScripted(f, decide)
	eng, err := search.NewEngine(targets, exec, f, nil)
	require.NoError(t, err)
	passes, err := multipass.NewFromList(eng, masks)
	require.NoError(t, err)
	return &fixture{forcer: f, exec: exec, passes: passes}
}

func format(vs []voltage.Voltage) string {
	return voltage.FormatVector(vs, 3, "_")
}

func TestSingleRepetitionScopesForcer(t *testing.T) {
	fx := newFixture(t, 0.4, 0.8, "", sim.Threshold(0.5, 0.7))
	c, err := New(fx.passes, nil)
	require.NoError(t, err)

	out, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out.Results, 1)
	assert.Equal(t, "0.500_0.700", format(out.Last().Voltages))
	assert.Equal(t, "", out.Last().Suffix)
	assert.True(t, out.Passed)
	assert.True(t, out.Continue)

	resets, restores := fx.forcer.Counts()
	assert.Equal(t, 1, resets)
	assert.Equal(t, 1, restores)
	assert.False(t, fx.forcer.Active())
}

func TestRepeatUntilPass(t *testing.T) {
	// Both targets exhaust 0.4..0.5 on the first repetition, then pass.
	fx := newFixture(t, 0.4, 0.5, "", sim.PassFromCall(2))
	cfg := DefaultConfig()
	cfg.MaxRepetitions = 3
	c, err := New(fx.passes, cfg)
	require.NoError(t, err)

	out, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, "-9999_-9999", format(out.Results[0].Voltages))
	assert.False(t, out.Results[0].Passed)
	assert.Equal(t, "0.400_0.400", format(out.Results[1].Voltages))
	assert.Equal(t, 1, out.Results[1].RepetitionIndex)
	assert.Equal(t, "_R0", out.Results[0].Suffix)
	assert.Equal(t, "_R1", out.Results[1].Suffix)
	assert.True(t, out.Passed)
	assert.True(t, out.Continue)
	assert.Equal(t, 3, fx.exec.Calls())
}

func TestRepeatAlwaysRunsEveryRepetition(t *testing.T) {
	fx := newFixture(t, 0.4, 0.8, "01,10", sim.Threshold(0.5, 0.7))
	w := datalog.NewMemoryWriter("vmin")
	cfg := &Config{Name: "_core", MaxRepetitions: 3, Policy: RepeatAlways{}, Datalog: datalog.NewLogger(w)}
	c, err := New(fx.passes, cfg)
	require.NoError(t, err)

	out, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out.Results, 3)
	require.Len(t, out.Passes, 3)
	for i, r := range out.Results {
		assert.Equal(t, i, r.RepetitionIndex)
		assert.Equal(t, "0.500_0.700", format(r.Voltages))
		assert.Equal(t, 6, r.ExecutionCount)
		assert.Len(t, out.Passes[i], 2)
	}
	assert.True(t, out.Continue)

	payload, ok := w.Lookup("vmin_core_R2")
	require.True(t, ok)
	assert.Equal(t, "0.500_0.700|0.400_0.400|0.800_0.800|6", payload)
}

func TestNoRepeatContinuesAfterFailure(t *testing.T) {
	fx := newFixture(t, 0.4, 0.5, "", sim.AlwaysFail)
	cfg := &Config{MaxRepetitions: 5, Policy: NoRepeat{}}
	c, err := New(fx.passes, cfg)
	require.NoError(t, err)

	out, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, out.Results, 1)
	assert.False(t, out.Passed)
	assert.True(t, out.Continue)
}

func TestContinueFromFound(t *testing.T) {
	fx := newFixture(t, 0.4, 0.8, "", sim.Threshold(0.5, 0.7))
	cfg := &Config{MaxRepetitions: 2, Policy: RepeatAlways{}, ContinueFromFound: true}
	c, err := New(fx.passes, cfg)
	require.NoError(t, err)

	out, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	second := out.Results[1]
	assert.Equal(t, "0.500_0.700", format(second.Starts))
	assert.Equal(t, "0.500_0.700", format(second.Voltages))
	assert.Equal(t, 1, second.ExecutionCount)
	assert.Equal(t, []int{0, 0}, second.Increments)

	// Original engine is untouched.
	assert.Equal(t, 0.4, fx.passes.Engine().Targets()[1].Start)
}

func TestCustomPostProcess(t *testing.T) {
	fx := newFixture(t, 0.4, 0.5, "", sim.PassFromCall(2))
	var got int
	cfg := &Config{
		MaxRepetitions: 2,
		Policy:         RepeatAlways{},
		PostProcess: func(results []*search.Result) bool {
			got = len(results)
			return results[0].Passed
		},
	}
	c, err := New(fx.passes, cfg)
	require.NoError(t, err)

	out, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.False(t, out.Passed)
	assert.False(t, out.Continue)
}

func TestRestoreOnError(t *testing.T) {
	fx := newFixture(t, 0.4, 0.8, "", sim.AlwaysFail)
	c, err := New(fx.passes, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, restores := fx.forcer.Counts()
	assert.Equal(t, 1, restores)
}

func TestRestoreOnPanic(t *testing.T) {
	fx := newFixture(t, 0.4, 0.8, "", func(call int, applied []voltage.Voltage) []bool {
		panic("instrument fault")
	})
	c, err := New(fx.passes, nil)
	require.NoError(t, err)

	assert.PanicsWithValue(t, "instrument fault", func() {
		_, _ = c.Run(context.Background())
	})
	_, restores := fx.forcer.Counts()
	assert.Equal(t, 1, restores)
	assert.False(t, fx.forcer.Active())
}

func TestConfigValidation(t *testing.T) {
	fx := newFixture(t, 0.4, 0.8, "", sim.AlwaysFail)
	_, err := New(fx.passes, &Config{MaxRepetitions: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrConfig)
	assert.Contains(t, err.Error(), "got 0")

	_, err = New(nil, nil)
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	tests := map[string]Policy{
		"":           RepeatUntilPass{},
		"until-pass": RepeatUntilPass{},
		"Always":     RepeatAlways{},
		"none":       NoRepeat{},
	}
	for in, want := range tests {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("sometimes")
	assert.ErrorIs(t, err, search.ErrConfig)
}

func TestSequenceStopsWhenNotContinuing(t *testing.T) {
	failing := newFixture(t, 0.4, 0.5, "", sim.AlwaysFail)
	passing := newFixture(t, 0.4, 0.8, "", sim.Threshold(0.5, 0.7))

	first, err := New(failing.passes, &Config{Name: "_s0", MaxRepetitions: 1})
	require.NoError(t, err)
	second, err := New(passing.passes, &Config{Name: "_s1", MaxRepetitions: 1})
	require.NoError(t, err)

	outcomes, passed, err := Sequence{first, second}.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.False(t, passed)
	assert.Equal(t, 0, passing.exec.Calls())

	outcomes, passed, err = Sequence{second}.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.True(t, passed)
	assert.Equal(t, "_s1", outcomes[0].Last().Suffix)
}
