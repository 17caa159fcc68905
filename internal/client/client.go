package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/magicianjarden/audiio-official-sub003/internal/config"
)

// maxRedirects bounds how many 301/302 hops a single fetch will follow.
const maxRedirects = 5

// Client is the protocol-level HTTP client for CDN fetches. It speaks GET and
// HEAD with optional Range, follows 301/302 by re-issuing the identical
// request at the new location, and decorates every request with browser-like
// User-Agent, Referer and Origin headers. Statuses other than 200, 206, 301
// and 302 are errors.
type Client interface {
	// ProbeLength issues a HEAD request and returns the declared content
	// length. Any failure, including a missing or non-positive length, yields
	// an error; callers fall back to whole-body streaming.
	ProbeLength(ctx context.Context, sourceURL string) (int64, error)

	// Get issues a single GET attempt. start and end describe an inclusive
	// byte range; a negative start requests the whole entity. The returned
	// response has status 200 or 206 and its body is wrapped with the
	// idle-timeout watchdog that aborts the connection when no data arrives
	// within the configured window.
	Get(ctx context.Context, sourceURL string, start, end int64) (*http.Response, error)

	// FetchBytes retrieves a small auxiliary payload (artwork images) in full,
	// with transparent decompression.
	FetchBytes(ctx context.Context, sourceURL string) ([]byte, error)

	// Close releases any resources held by the client.
	Close() error
}

// client implements the Client interface
type client struct {
	// api is bounded by the configured overall timeout and serves probes and
	// auxiliary fetches. transfer has no overall timeout: a media transfer
	// runs for as long as data keeps flowing, bounded per-read by the idle
	// watchdog and, while waiting for headers, by ResponseHeaderTimeout.
	api         *http.Client
	transfer    *http.Client
	userAgent   string
	idleTimeout time.Duration
}

// NewClient creates a new client instance with proxy configuration if provided
func NewClient(cfg *config.Config) Client {
	logger := config.GetLogger()

	// Parse timeout duration
	timeout := 30 * time.Second // default
	if cfg.ClientTimeout != "" {
		if parsedTimeout, err := time.ParseDuration(cfg.ClientTimeout); err != nil {
			logger.Warn().Err(err).Str("timeout", cfg.ClientTimeout).Msg("Invalid timeout duration, using default 30s")
		} else {
			timeout = parsedTimeout
		}
	}

	idleTimeout := 30 * time.Second // default
	if cfg.Downloads.IdleTimeout != "" {
		if parsedIdle, err := time.ParseDuration(cfg.Downloads.IdleTimeout); err != nil {
			logger.Warn().Err(err).Str("idle_timeout", cfg.Downloads.IdleTimeout).Msg("Invalid idle timeout, using default 30s")
		} else {
			idleTimeout = parsedIdle
		}
	}

	// Set up base transport with optional proxy
	// Clone DefaultTransport to preserve all its settings (timeouts, connection pooling, HTTP/2, etc.)
	baseTransport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.ProxyConnectionString != "" {
		proxyURL, err := url.Parse(cfg.ProxyConnectionString)
		if err != nil {
			// Log error but continue without proxy
			logger.Warn().Err(err).Str("proxy", cfg.ProxyConnectionString).Msg("Invalid proxy URL, continuing without proxy")
		} else {
			// Override only the Proxy field
			baseTransport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	// The transfer transport waits at most one idle window for response
	// headers; the watchdog takes over once the body starts.
	transferTransport := baseTransport.Clone()
	transferTransport.ResponseHeaderTimeout = idleTimeout

	// Redirects are followed manually so ranged requests can be re-issued
	// verbatim at the new location.
	return &client{
		api: &http.Client{
			Timeout:       timeout,
			Transport:     newCompressionTransport(baseTransport),
			CheckRedirect: useLastResponse,
		},
		transfer: &http.Client{
			Transport:     newCompressionTransport(transferTransport),
			CheckRedirect: useLastResponse,
		},
		userAgent:   cfg.UserAgent,
		idleTimeout: idleTimeout,
	}
}

func useLastResponse(req *http.Request, via []*http.Request) error {
	return http.ErrUseLastResponse
}

// Close releases idle connections held by both underlying clients.
func (c *client) Close() error {
	c.api.CloseIdleConnections()
	c.transfer.CloseIdleConnections()
	return nil
}
