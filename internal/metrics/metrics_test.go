package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/forcer"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/mask"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
	"github.com/OpenTraceLab/OpenTraceVmin/pkg/sim"
)

func TestObserverCountsSearch(t *testing.T) {
	m := New()
	cfg := search.DefaultConfig()
	cfg.Observers = []search.Observer{m}

	targets, err := search.BuildTargets([]string{"a", "b", "c"}, []float64{0.4}, []float64{0.6}, []float64{0.1}, nil)
	require.NoError(t, err)
	f := forcer.NewSimForcer(3)
	require.NoError(t, f.Reset(context.Background()))
	eng, err := search.NewEngine(targets, sim.NewScripted(f, sim.Threshold(0.5, 0.9, 0)), f, cfg)
	require.NoError(t, err)

	held, err := mask.Parse("001")
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), held)
	require.NoError(t, err)

	assert.Equal(t, 3.0, m.Value("vmin_executions_total"))
	assert.Equal(t, 3.0, m.Value("vmin_points_total"))
	assert.Equal(t, 1.0, m.Value("vmin_passes_total"))
	assert.Equal(t, 3.0, m.Value("vmin_targets_total"))
	assert.Equal(t, 2.0, m.Value("vmin_target_increments"))

	samples, err := m.Snapshot()
	require.NoError(t, err)
	outcomes := map[string]float64{}
	for _, s := range samples {
		if s.Name == "vmin_targets_total" {
			outcomes[s.Labels["outcome"]] = s.Value
		}
		if s.Name == "vmin_passes_total" {
			assert.Equal(t, "fail", s.Labels["result"])
		}
	}
	assert.Equal(t, map[string]float64{"found": 1, "not_found": 1, "not_driven": 1}, outcomes)
}

func TestPassFlags(t *testing.T) {
	m := New()
	m.ObservePass(&search.Result{Overshoot: true, Exhausted: true, Passed: true})
	m.ScoreboardError(errors.New("offline"))

	assert.Equal(t, 1.0, m.Value("vmin_overshoots_total"))
	assert.Equal(t, 1.0, m.Value("vmin_iteration_cap_total"))
	assert.Equal(t, 1.0, m.Value("vmin_scoreboard_errors_total"))
	assert.Equal(t, 0.0, m.Value("vmin_unknown"))
}
