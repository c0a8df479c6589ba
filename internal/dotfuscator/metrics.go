package dotfuscator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	reasonIncomplete  = "incomplete"
	reasonFiltered    = "filtered"
	reasonUnsupported = "unsupported"
	reasonFailed      = "failed"
)

var (
	typesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "unfuscator",
		Subsystem: "dotfuscator",
		Name:      "types_read_total",
		Help:      "Type elements read from map files",
	})

	methodsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unfuscator",
		Subsystem: "dotfuscator",
		Name:      "methods_skipped_total",
		Help:      "Methods in map files that produced no record, by reason",
	}, []string{"reason"})

	filesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unfuscator",
		Subsystem: "dotfuscator",
		Name:      "files_loaded_total",
		Help:      "Map files loaded into a store, by result",
	}, []string{"result"})
)
