package cleaner

import "github.com/prometheus/client_golang/prometheus"

var (
	// OrphansCleanedTotal counts sessions removed by the periodic sweep.
	OrphansCleanedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mergetrain_orphans_cleaned_total",
		Help: "Total number of orphaned sessions removed by the periodic cleaner",
	})

	// QueueDepth reports the non-terminal queue length observed at each sweep.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mergetrain_queue_depth",
		Help: "Number of non-terminal merge-queue entries at last sweep",
	})

	// LockContentionTotal is the lock-contention counter. It is registered
	// in init, but nothing in this module increments it, so it stays at 0.
	LockContentionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mergetrain_lock_contention_total",
		Help: "Total number of lock-contention errors observed",
	})
)

func init() {
	prometheus.MustRegister(OrphansCleanedTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(LockContentionTotal)
}
