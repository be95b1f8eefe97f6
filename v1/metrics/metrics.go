package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks successful lock acquisitions.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redilock_acquire_total",
		Help: "Total number of successful lock acquisitions",
	})
	// ContentionCounter tracks acquisition attempts that found the lock held.
	ContentionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redilock_contention_total",
		Help: "Total number of acquisition attempts denied by a current holder",
	})
	// ReleaseCounter tracks successful lock releases.
	ReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redilock_release_total",
		Help: "Total number of successful lock releases",
	})
	// MismatchCounter tracks releases rejected because the token no longer
	// matched the stored record.
	MismatchCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redilock_unlock_mismatch_total",
		Help: "Total number of releases attempted with a stale or foreign token",
	})
	// StoreErrorCounter tracks failed store round trips.
	StoreErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redilock_store_error_total",
		Help: "Total number of backing store failures",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterLockMetrics registers redilock metrics on the provided registry.
func RegisterLockMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, ContentionCounter, ReleaseCounter, MismatchCounter, StoreErrorCounter)
}
