package artcache

// instrumentedCache wraps a Cache and records Prometheus metrics for hits,
// misses, evictions and the current image count. Metric tracking lives in
// the cache layer so callers do not need to manage it.
type instrumentedCache struct {
	inner     Cache
	collector *entriesCollector
}

// newInstrumentedCache wraps inner with metric instrumentation. The entries
// collector queries inner.Len() at scrape time, which stays correct for
// backends where TTL expiry removes images outside the application's
// control.
func newInstrumentedCache(inner Cache) *instrumentedCache {
	return &instrumentedCache{
		inner:     inner,
		collector: registerEntriesCollector(inner.Len),
	}
}

func (c *instrumentedCache) Get(sourceURL string) ([]byte, bool) {
	image, ok := c.inner.Get(sourceURL)
	if ok {
		HitsTotal.Inc()
	} else {
		MissesTotal.Inc()
	}
	return image, ok
}

func (c *instrumentedCache) Set(sourceURL string, image []byte) {
	c.inner.Set(sourceURL, image)
}

func (c *instrumentedCache) Contains(sourceURL string) bool {
	return c.inner.Contains(sourceURL)
}

func (c *instrumentedCache) Len() int {
	return c.inner.Len()
}

// Close unregisters the entries collector and closes the underlying cache.
func (c *instrumentedCache) Close() error {
	unregisterEntriesCollector(c.collector)
	return c.inner.Close()
}
