package artcache

import (
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

func init() {
	Register("memory", newMemoryCache)
}

// memoryCache holds artwork in an in-process expirable LRU.
type memoryCache struct {
	inner *lru.LRU[string, []byte]
}

func newMemoryCache(cfg ProviderConfig) (Cache, error) {
	var onEvict func(string, []byte)
	if cfg.OnEvict != nil {
		onEvict = func(sourceURL string, image []byte) {
			cfg.OnEvict(sourceURL, image)
		}
	}
	return &memoryCache{
		inner: lru.NewLRU[string, []byte](cfg.Size, onEvict, cfg.TTL),
	}, nil
}

func (m *memoryCache) Get(sourceURL string) ([]byte, bool) {
	return m.inner.Get(sourceURL)
}

func (m *memoryCache) Set(sourceURL string, image []byte) {
	m.inner.Add(sourceURL, image)
}

func (m *memoryCache) Contains(sourceURL string) bool {
	return m.inner.Contains(sourceURL)
}

func (m *memoryCache) Len() int {
	return m.inner.Len()
}

func (m *memoryCache) Close() error {
	return nil
}
