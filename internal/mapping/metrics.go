package mapping

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheLookups counts CachedStore lookups.
	// Labels: result (hit, miss)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unfuscator",
		Subsystem: "mapping",
		Name:      "cache_lookups_total",
		Help:      "Signature lookups served by the LRU cache, by result",
	}, []string{"result"})
)
