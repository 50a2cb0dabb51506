package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

func TestBenchFailsBelowVmin(t *testing.T) {
	ctx := context.Background()
	b, err := NewBench(2, []Pattern{
		{Name: "scan_a", Target: 0, Vmin: 0.55},
		{Name: "scan_b", Target: 1, Vmin: 0.65},
		{Name: "array", Target: search.Unattributed, Vmin: 0.5},
	})
	require.NoError(t, err)
	require.NoError(t, b.Forcer().Reset(ctx))

	require.NoError(t, b.Forcer().Apply(ctx, []voltage.Voltage{voltage.Of(0.45), voltage.Of(0.6)}))
	passed, err := b.Execute(ctx)
	require.NoError(t, err)
	assert.False(t, passed)

	fails, err := b.DecodeTargetResults(ctx, mask.New(2))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, fails)

	failures, err := b.PerCycleFailures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 3)
	assert.Equal(t, "scan_a", failures[0].Pattern)
	assert.Equal(t, 0, failures[0].Target)
	assert.Equal(t, "array", failures[2].Pattern)
	assert.Equal(t, search.Unattributed, failures[2].Target)

	held, _ := mask.Parse("01")
	fails, err = b.DecodeTargetResults(ctx, held)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, fails)

	assert.Equal(t, 0.55, b.Vmin(0))
	assert.Equal(t, 0.65, b.Vmin(1))
	assert.Equal(t, 1, b.Calls())
}

func TestBenchIgnoresUndrivenTargets(t *testing.T) {
	ctx := context.Background()
	b, err := NewBench(2, []Pattern{{Name: "p", Target: search.Unattributed, Vmin: 0.7}})
	require.NoError(t, err)
	require.NoError(t, b.Forcer().Reset(ctx))
	require.NoError(t, b.Forcer().Apply(ctx, []voltage.Voltage{voltage.NotDriven(), voltage.Of(0.8)}))

	passed, err := b.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, passed)
}

func TestBenchRejectsUnknownTarget(t *testing.T) {
	_, err := NewBench(2, []Pattern{{Name: "p", Target: 2}})
	assert.Error(t, err)

	b, err := NewBench(1, nil)
	require.NoError(t, err)
	_, err = b.Execute(context.Background())
	assert.Error(t, err)
}

func TestBenchDrivesEngine(t *testing.T) {
	ctx := context.Background()
	b, err := NewBench(2, []Pattern{
		{Name: "core_scan", Target: 0, Vmin: 0.62},
		{Name: "gt_scan", Target: 1, Vmin: 0.71},
	})
	require.NoError(t, err)

	targets, err := search.BuildTargets([]string{"core", "gt"}, []float64{0.5}, []float64{0.9}, []float64{0.05}, nil)
	require.NoError(t, err)
	eng, err := search.NewEngine(targets, b, b.Forcer(), nil)
	require.NoError(t, err)

	require.NoError(t, b.Forcer().Reset(ctx))
	pass, err := eng.Run(ctx, mask.Mask{})
	require.NoError(t, err)

	assert.Equal(t, "0.650_0.750", voltage.FormatVector(pass.Result.Voltages, 3, "_"))
	assert.Equal(t, []string{"core_scan", "gt_scan"}, pass.Result.LimitingPatterns)
	assert.True(t, pass.Result.Passed)
}

func TestScriptedHelpers(t *testing.T) {
	vs := []voltage.Voltage{voltage.Of(0.4), voltage.Of(0.6)}
	assert.Equal(t, []bool{true, true}, AlwaysFail(0, vs))
	assert.Equal(t, []bool{true, true}, PassFromCall(1)(0, vs))
	assert.Equal(t, []bool{false, false}, PassFromCall(1)(1, vs))
	assert.Equal(t, []bool{true, false}, Threshold(0.5, 0.5)(0, vs))
}
