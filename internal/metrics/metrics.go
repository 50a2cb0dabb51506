// Package metrics defines the Prometheus collectors fed by search runs.
package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/search"
)

// Metrics holds every collector on a private registry. It implements
// search.Observer.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal  prometheus.Counter
	PointsTotal      *prometheus.CounterVec
	PassesTotal      *prometheus.CounterVec
	TargetsTotal     *prometheus.CounterVec
	TargetIncrements prometheus.Histogram
	OvershootsTotal  prometheus.Counter
	ExhaustedTotal   prometheus.Counter
	ScoreboardErrors prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ExecutionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vmin_executions_total",
				Help: "Pattern list executions, including discarded overshoot points.",
			},
		),
		PointsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmin_points_total",
				Help: "Recorded search points by overall plist result.",
			},
			[]string{"result"},
		),
		PassesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmin_passes_total",
				Help: "Completed search passes by pass criterion result.",
			},
			[]string{"result"},
		),
		TargetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmin_targets_total",
				Help: "Per-target outcomes (found, not_found, not_driven).",
			},
			[]string{"outcome"},
		),
		TargetIncrements: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vmin_target_increments",
				Help:    "Voltage steps taken per driven target in a pass.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),
		OvershootsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vmin_overshoots_total",
				Help: "Passes that restarted from retry start voltages.",
			},
		),
		ExhaustedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vmin_iteration_cap_total",
				Help: "Passes stopped by the iteration cap.",
			},
		),
		ScoreboardErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vmin_scoreboard_errors_total",
				Help: "Scoreboard runs that failed.",
			},
		),
	}

	m.Registry.MustRegister(
		m.ExecutionsTotal,
		m.PointsTotal,
		m.PassesTotal,
		m.TargetsTotal,
		m.TargetIncrements,
		m.OvershootsTotal,
		m.ExhaustedTotal,
		m.ScoreboardErrors,
	)
	return m
}

func resultLabel(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}

func (m *Metrics) ObservePoint(p search.Point) {
	m.PointsTotal.WithLabelValues(resultLabel(p.Passed)).Inc()
}

func (m *Metrics) ObservePass(r *search.Result) {
	m.ExecutionsTotal.Add(float64(r.ExecutionCount))
	m.PassesTotal.WithLabelValues(resultLabel(r.Passed)).Inc()
	if r.Overshoot {
		m.OvershootsTotal.Inc()
	}
	if r.Exhausted {
		m.ExhaustedTotal.Inc()
	}

	for i, v := range r.Voltages {
		switch {
		case r.Mask.IsSet(i):
			m.TargetsTotal.WithLabelValues("not_driven").Inc()
			continue
		case v.IsValue():
			m.TargetsTotal.WithLabelValues("found").Inc()
		default:
			m.TargetsTotal.WithLabelValues("not_found").Inc()
		}
		m.TargetIncrements.Observe(float64(r.Increments[i]))
	}
}

// ScoreboardError counts a swallowed scoreboard failure. It matches the
// scoreboard.Trigger OnError hook.
func (m *Metrics) ScoreboardError(err error) {
	m.ScoreboardErrors.Inc()
}

// Sample is one gathered series.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64 // Counter value, or observation count for histograms
}

// Snapshot gathers every series sorted by name.
func (m *Metrics) Snapshot() ([]Sample, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			s := Sample{Name: mf.GetName(), Labels: map[string]string{}}
			for _, lp := range metric.GetLabel() {
				s.Labels[lp.GetName()] = lp.GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				s.Value = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				s.Value = float64(metric.GetHistogram().GetSampleCount())
			case metric.GetGauge() != nil:
				s.Value = metric.GetGauge().GetValue()
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Value returns the sum of every series named name.
func (m *Metrics) Value(name string) float64 {
	samples, err := m.Snapshot()
	if err != nil {
		return 0
	}
	total := 0.0
	for _, s := range samples {
		if s.Name == name {
			total += s.Value
		}
	}
	return total
}
