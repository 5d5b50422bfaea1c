package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}

func TestEngineMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newEngineMetrics(registry, Config{ServiceName: "fixtrack", Environment: "test"})

	m.IncTimerTransition("timer.start", "ok")
	m.IncTimerTransition("timer.start", "ok")
	m.IncTimerTransition("timer.start", "conflict")
	m.IncSweepRun("auto_pause")
	m.AddSweepTransitions("auto_pause", 3)
	m.AddSweepTransitions("auto_pause", 0)
	m.IncSweepError("stale_clear")
	m.ObserveSweepDuration("auto_pause", 50*time.Millisecond)

	transitions := gatherFamily(t, registry, "fixtrack_timer_transitions_total")
	require.NotNil(t, transitions)
	for _, metric := range transitions.GetMetric() {
		switch labelValue(metric, "result") {
		case "ok":
			assert.EqualValues(t, 2, metric.GetCounter().GetValue())
		case "conflict":
			assert.EqualValues(t, 1, metric.GetCounter().GetValue())
		}
		assert.Equal(t, "test", labelValue(metric, "env"))
	}

	sweepTransitions := gatherFamily(t, registry, "fixtrack_sweep_transitions_total")
	require.NotNil(t, sweepTransitions)
	require.Len(t, sweepTransitions.GetMetric(), 1)
	assert.EqualValues(t, 3, sweepTransitions.GetMetric()[0].GetCounter().GetValue())

	duration := gatherFamily(t, registry, "fixtrack_sweep_duration_seconds")
	require.NotNil(t, duration)
	require.Len(t, duration.GetMetric(), 1)
	assert.EqualValues(t, 1, duration.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *EngineMetrics
	m.IncTimerTransition("timer.start", "ok")
	m.IncSweepRun("auto_pause")
	m.AddSweepTransitions("auto_pause", 1)
	m.IncSweepError("auto_pause")
	m.ObserveSweepDuration("auto_pause", time.Second)
}
