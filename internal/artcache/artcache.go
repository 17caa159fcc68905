// Package artcache caches fetched artwork images so repeated tag-embedding
// runs do not pull the same cover from a CDN twice.
package artcache

import "github.com/rs/zerolog"

// EvictCallback is called when an image is evicted from the cache.
// Not all providers support eviction callbacks (Redis relies on server-side
// expiry).
type EvictCallback func(sourceURL string, image []byte)

// Logger receives error reports from cache operations. If nil, errors are
// silently ignored.
type Logger interface {
	Error(msg string, err error)
}

// Cache stores artwork images keyed by their source URL.
type Cache interface {
	// Get returns the cached image for a source URL, or nil and false on a
	// miss.
	Get(sourceURL string) ([]byte, bool)

	// Set stores an image, overwriting any previous one for the same URL.
	Set(sourceURL string, image []byte)

	// Contains reports whether a URL is cached without touching recency.
	Contains(sourceURL string) bool

	// Len returns the number of cached images.
	Len() int

	// Close releases any resources held by the cache backend.
	Close() error
}

// zerologAdapter satisfies Logger on top of the process logger.
type zerologAdapter struct {
	logger zerolog.Logger
}

// NewLogger adapts a zerolog logger to the cache's Logger interface.
func NewLogger(logger zerolog.Logger) Logger {
	return &zerologAdapter{logger: logger}
}

func (a *zerologAdapter) Error(msg string, err error) {
	a.logger.Error().Err(err).Msg(msg)
}
