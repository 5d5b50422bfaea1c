package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every metric.
type Config struct {
	ServiceName string
	Environment string
}

// EngineMetrics captures timer coordinator and sweep health signals.
type EngineMetrics struct {
	timerTransitions *prometheus.CounterVec
	sweepRuns        *prometheus.CounterVec
	sweepTransitions *prometheus.CounterVec
	sweepErrors      *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// Engine returns the singleton engine metrics registry.
func Engine() *EngineMetrics {
	return EngineWithConfig(Config{})
}

// EngineWithConfig returns the singleton engine metrics registry using config labels.
func EngineWithConfig(cfg Config) *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return engineMetrics
}

// ResetEngineMetricsForTest resets the engine metrics singleton for tests.
func ResetEngineMetricsForTest() {
	engineMetricsOnce = sync.Once{}
	engineMetrics = nil
}

func newEngineMetrics(registerer prometheus.Registerer, cfg Config) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fixtrack"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	timerTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fixtrack_timer_transitions_total",
		Help:        "Timer state transitions by action and result.",
		ConstLabels: constLabels,
	}, []string{"action", "result"})
	sweepRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fixtrack_sweep_runs_total",
		Help:        "Sweep passes by policy.",
		ConstLabels: constLabels,
	}, []string{"policy"})
	sweepTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fixtrack_sweep_transitions_total",
		Help:        "Timers transitioned by sweep policy.",
		ConstLabels: constLabels,
	}, []string{"policy"})
	sweepErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fixtrack_sweep_errors_total",
		Help:        "Per-row sweep failures by policy.",
		ConstLabels: constLabels,
	}, []string{"policy"})
	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fixtrack_sweep_duration_seconds",
		Help:        "Sweep pass latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"policy"})

	for _, collector := range []prometheus.Collector{
		timerTransitions, sweepRuns, sweepTransitions, sweepErrors, sweepDuration,
	} {
		registerer.MustRegister(collector)
	}

	return &EngineMetrics{
		timerTransitions: timerTransitions,
		sweepRuns:        sweepRuns,
		sweepTransitions: sweepTransitions,
		sweepErrors:      sweepErrors,
		sweepDuration:    sweepDuration,
	}
}

func (m *EngineMetrics) IncTimerTransition(action, result string) {
	if m == nil {
		return
	}
	m.timerTransitions.WithLabelValues(action, result).Inc()
}

func (m *EngineMetrics) IncSweepRun(policy string) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(policy).Inc()
}

func (m *EngineMetrics) AddSweepTransitions(policy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepTransitions.WithLabelValues(policy).Add(float64(n))
}

func (m *EngineMetrics) IncSweepError(policy string) {
	if m == nil {
		return
	}
	m.sweepErrors.WithLabelValues(policy).Inc()
}

func (m *EngineMetrics) ObserveSweepDuration(policy string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(policy).Observe(d.Seconds())
}
