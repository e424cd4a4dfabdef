package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replyd",
			Subsystem: "dispatch",
			Name:      "cycles_total",
			Help:      "Completed generate-or-fallback cycles by response source.",
		},
		[]string{"source"},
	)
	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replyd",
			Subsystem: "dispatch",
			Name:      "fallbacks_total",
			Help:      "Responses routed to fallback by reason.",
		},
		[]string{"reason"},
	)
	streamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replyd",
			Subsystem: "dispatch",
			Name:      "streams_total",
			Help:      "Chat streams by outcome.",
		},
		[]string{"outcome"},
	)
	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "replyd",
			Subsystem: "dispatch",
			Name:      "active_streams",
			Help:      "Chat streams in progress.",
		},
	)
	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replyd",
			Subsystem: "dispatch",
			Name:      "cycle_duration_seconds",
			Help:      "Time from request to chosen response.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal, fallbacksTotal, streamsTotal, activeStreams, cycleDuration)
}
