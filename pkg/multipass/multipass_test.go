package multipass

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/datalog"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/forcer"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/sim"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// newEngine builds two targets searched from 0.4 to 0.8 in 0.1 steps against
// a device passing at 0.5 and 0.7 respectively.
func newEngine(t *testing.T) (*search.Engine, *forcer.SimForcer) {
	t.Helper()
	targets, err := search.BuildTargets([]string{"core", "ring"}, []float64{0.4}, []float64{0.8}, []float64{0.1}, nil)
	require.NoError(t, err)

	f := forcer.NewSimForcer(2)
	require.NoError(t, f.Reset(context.Background()))
	eng, err := search.NewEngine(targets, sim.NewScripted(f, sim.Threshold(0.5, 0.7)), f, nil)
	require.NoError(t, err)
	return eng, f
}

func format(vs []voltage.Voltage) string {
	return voltage.FormatVector(vs, 3, "_")
}

func TestPartitionedPassesMerge(t *testing.T) {
	eng, _ := newEngine(t)
	c, err := NewFromList(eng, "00,01,10")
	require.NoError(t, err)

	out, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Passes, 3)

	assert.Equal(t, "0.500_0.700", format(out.Passes[0].Result.Voltages))
	assert.Equal(t, "0.500_-8888", format(out.Passes[1].Result.Voltages))
	assert.Equal(t, "-8888_0.700", format(out.Passes[2].Result.Voltages))

	r := out.Result
	require.NoError(t, r.Validate())
	assert.Equal(t, "0.500_0.700", format(r.Voltages))
	assert.Equal(t, 4+2+4, r.ExecutionCount)
	assert.Equal(t, []int{1, 3}, r.Increments)
	assert.Equal(t, []string{"pat0", "pat1"}, r.LimitingPatterns)
	assert.Equal(t, "00", r.Mask.String())
	assert.Equal(t, MergedIndex, r.MultiPassIndex)
	assert.True(t, r.Passed)
}

func TestMergeTakesDrivingPass(t *testing.T) {
	eng, _ := newEngine(t)
	c, err := NewFromList(eng, "01,10")
	require.NoError(t, err)

	out, err := c.Run(context.Background())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		var driver *search.Result
		for _, p := range out.Passes {
			if !p.Result.Mask.IsSet(i) {
				driver = p.Result
			}
		}
		require.NotNil(t, driver)
		assert.True(t, driver.Voltages[i].Equal(out.Result.Voltages[i]), "target %d", i)
		assert.Equal(t, driver.Increments[i], out.Result.Increments[i])
	}
	assert.Equal(t, 6, out.Result.ExecutionCount)
}

func TestUndrivenTargetStaysNotDriven(t *testing.T) {
	eng, _ := newEngine(t)
	c, err := NewFromList(eng, "01")
	require.NoError(t, err)

	out, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "0.500_-8888", format(out.Result.Voltages))
	assert.Equal(t, "01", out.Result.Mask.String())
	assert.Equal(t, search.NotApplicable, out.Result.LimitingPatterns[1])
	assert.True(t, out.Result.Passed)
}

func TestEmptyListRunsOnePass(t *testing.T) {
	eng, _ := newEngine(t)
	c, err := NewFromList(eng, "")
	require.NoError(t, err)
	require.Len(t, c.Masks(), 1)
	assert.Equal(t, "00", c.Masks()[0].String())

	out, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, out.Passes, 1)
	assert.Equal(t, 4, out.Result.ExecutionCount)
	assert.Equal(t, "", out.Result.Suffix)
}

func TestWrongLengthMasksAreSkipped(t *testing.T) {
	eng, _ := newEngine(t)
	c, err := NewFromList(eng, "00,011,1,10")
	require.NoError(t, err)

	masks := c.Masks()
	require.Len(t, masks, 2)
	assert.Equal(t, "00", masks[0].String())
	assert.Equal(t, "10", masks[1].String())
}

func TestEveryMaskWrongLength(t *testing.T) {
	eng, f := newEngine(t)
	_, err := NewFromList(eng, "011,1")
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrConfig)
	assert.Contains(t, err.Error(), "011,1")
	assert.Contains(t, err.Error(), "2 bits")
	assert.Empty(t, f.Applied())
}

func TestInvalidMaskCharacters(t *testing.T) {
	eng, _ := newEngine(t)
	_, err := NewFromList(eng, "00,0x")
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrConfig)
	assert.Contains(t, err.Error(), "0x")
}

func TestPerPassLoggingAndHooks(t *testing.T) {
	eng, _ := newEngine(t)
	w := datalog.NewMemoryWriter("vmin")

	var seen []int
	hook := func(ctx context.Context, index int, pass *search.Pass) {
		seen = append(seen, index)
		assert.Equal(t, index, pass.Result.MultiPassIndex)
	}

	c, err := NewFromList(eng, "01,10", WithPassLogging(datalog.NewLogger(w)), WithPassHook(hook))
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, seen)
	payload, ok := w.Lookup("vmin_P0")
	require.True(t, ok)
	assert.Equal(t, "0.500_-8888|0.400_0.400|0.800_0.800|2", payload)
	inc, ok := w.Lookup("vmin_P1_inc")
	require.True(t, ok)
	assert.Equal(t, "0_3", inc)
}

func TestPassSuffixes(t *testing.T) {
	eng, _ := newEngine(t)
	single, err := NewFromList(eng, "01")
	require.NoError(t, err)
	out, err := single.WithSuffix("_R1").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "_R1", out.Passes[0].Result.Suffix)

	multi, err := NewFromList(eng, "01,10")
	require.NoError(t, err)
	out, err = multi.WithSuffix("_R1").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "_R1_P0", out.Passes[0].Result.Suffix)
	assert.Equal(t, "_R1_P1", out.Passes[1].Result.Suffix)

	out, err = multi.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "_P0", out.Passes[0].Result.Suffix)
}

func TestPassErrorIncludesMask(t *testing.T) {
	eng, _ := newEngine(t)
	c, err := NewFromList(eng, "10")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "mask 10")
}

func TestMergeSinglePass(t *testing.T) {
	assert.Nil(t, Merge(nil, search.AllTargets))

	r := &search.Result{Voltages: []voltage.Voltage{voltage.Of(0.5)}, Suffix: "_P0"}
	merged := Merge([]*search.Pass{{Result: r}}, search.AllTargets)
	assert.Equal(t, MergedIndex, merged.MultiPassIndex)
	assert.Empty(t, merged.Suffix)
	assert.Equal(t, "_P0", r.Suffix)
}
