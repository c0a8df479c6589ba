package unfuscate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tracesTotal counts Unfuscate calls.
	// Labels: result (ok, parse_error, error)
	tracesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unfuscator",
		Name:      "traces_total",
		Help:      "Stack traces processed, by result",
	}, []string{"result"})

	// framesTotal counts frames of successfully processed traces.
	// Labels: outcome (resolved, unresolved)
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unfuscator",
		Name:      "frames_total",
		Help:      "Stack frames looked up, by outcome",
	}, []string{"outcome"})

	traceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "unfuscator",
		Name:      "trace_duration_seconds",
		Help:      "Time to resolve one stack trace",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)
