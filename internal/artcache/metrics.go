package artcache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HitsTotal counts successful artwork lookups.
	HitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "artwork_cache_hits_total",
			Help: "Total number of artwork cache hits.",
		},
	)

	// MissesTotal counts failed artwork lookups.
	MissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "artwork_cache_misses_total",
			Help: "Total number of artwork cache misses.",
		},
	)

	// EvictionsTotal counts evicted images.
	EvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "artwork_cache_evictions_total",
			Help: "Total number of images evicted from the artwork cache.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HitsTotal,
		MissesTotal,
		EvictionsTotal,
	)
}

// entriesCollector lazily reports the current image count by calling lenFunc
// at scrape time. This avoids stale counts caused by TTL expiry in external
// backends.
type entriesCollector struct {
	desc    *prometheus.Desc
	lenFunc func() int
}

func (c *entriesCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *entriesCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(c.lenFunc()))
}

var (
	collectorMu     sync.Mutex
	activeCollector *entriesCollector
	// entriesReg is the Prometheus registerer used for the entries
	// collector. Exposed as a variable so tests can substitute an isolated
	// registry.
	entriesReg prometheus.Registerer = prometheus.DefaultRegisterer
)

// registerEntriesCollector registers the entries collector. A previously
// registered one is replaced, so creating a fresh cache instance (as tests
// do) stays safe.
func registerEntriesCollector(lenFunc func() int) *entriesCollector {
	c := &entriesCollector{
		desc: prometheus.NewDesc(
			"artwork_cache_entries",
			"Current number of images in the artwork cache.",
			nil, nil,
		),
		lenFunc: lenFunc,
	}

	collectorMu.Lock()
	defer collectorMu.Unlock()

	if activeCollector != nil {
		entriesReg.Unregister(activeCollector)
	}
	activeCollector = c
	_ = entriesReg.Register(c)
	return c
}

// unregisterEntriesCollector removes the given collector; a collector that
// was already replaced by a newer registration is left alone.
func unregisterEntriesCollector(c *entriesCollector) {
	collectorMu.Lock()
	defer collectorMu.Unlock()

	if activeCollector == c {
		entriesReg.Unregister(c)
		activeCollector = nil
	}
}
