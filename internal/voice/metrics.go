package voice

import "github.com/prometheus/client_golang/prometheus"

var (
	voiceJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replyd",
			Subsystem: "voice",
			Name:      "jobs_total",
			Help:      "Voice synthesis jobs by outcome.",
		},
		[]string{"outcome"},
	)
	voiceQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "replyd",
			Subsystem: "voice",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a voice worker.",
		},
	)
	voiceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "replyd",
			Subsystem: "voice",
			Name:      "synthesis_seconds",
			Help:      "Voice synthesis duration.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(voiceJobs, voiceQueueDepth, voiceDuration)
}
