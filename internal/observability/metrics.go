package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildreg",
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "Processed card scans by mode and result.",
		},
		[]string{"mode", "result"},
	)
	parseMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildreg",
			Subsystem: "ndef",
			Name:      "parse_misses_total",
			Help:      "Tag reads whose data area held no building record.",
		},
	)
	readFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildreg",
			Subsystem: "scanner",
			Name:      "read_fallbacks_total",
			Help:      "Scans that fell back to deriving the type from the UID.",
		},
	)
	registrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "buildreg",
			Subsystem: "registry",
			Name:      "cards",
			Help:      "Cards currently registered.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(scansTotal, parseMisses, readFallbacks, registrySize)
	})
}

func RecordScan(mode, result string) {
	scansTotal.WithLabelValues(mode, result).Inc()
}

func RecordParseMiss() {
	parseMisses.Inc()
}

func RecordReadFallback() {
	readFallbacks.Inc()
}

func SetRegistrySize(n int) {
	registrySize.Set(float64(n))
}
