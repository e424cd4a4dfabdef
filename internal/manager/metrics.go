package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	handlesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "replyd",
			Subsystem: "pool",
			Name:      "handles",
			Help:      "Pooled model handles by state",
		},
		[]string{"state"},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replyd",
			Subsystem: "pool",
			Name:      "loads_total",
			Help:      "Model loads by outcome",
		},
		[]string{"outcome"},
	)

	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "replyd",
			Subsystem: "pool",
			Name:      "load_duration_seconds",
			Help:      "Duration of model loads in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replyd",
			Subsystem: "pool",
			Name:      "evictions_total",
			Help:      "Handle evictions by reason",
		},
		[]string{"reason"},
	)

	exhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "replyd",
			Subsystem: "pool",
			Name:      "exhausted_total",
			Help:      "Acquires that ended in pool exhaustion",
		},
	)

	acquireWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "replyd",
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent in Acquire",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(handlesByState, loadsTotal, loadDuration, evictionsTotal, exhaustedTotal, acquireWait)
}

var gaugeStates = []State{StateLoading, StateReady, StateBusy}

// updateGaugesLocked recomputes the per-state gauge. Caller holds m.mu.
func (m *Manager) updateGaugesLocked() {
	counts := make(map[State]int, len(gaugeStates))
	for _, h := range m.handles {
		counts[h.state]++
	}
	for _, s := range gaugeStates {
		handlesByState.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
