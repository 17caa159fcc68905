package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/magicianjarden/audiio-official-sub003/internal/apperrors"
	"github.com/magicianjarden/audiio-official-sub003/internal/config"
)

// ProbeLength asks the origin for the payload size without pulling any bytes.
// The probe addresses the identity representation: a length negotiated for a
// compressed one would not line up with the byte ranges fetched later.
func (c *client) ProbeLength(ctx context.Context, sourceURL string) (int64, error) {
	resp, err := c.do(ctx, c.api, http.MethodHead, sourceURL, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.ContentLength <= 0 {
		return 0, fmt.Errorf("origin did not declare a content length for %s", sourceURL)
	}

	return resp.ContentLength, nil
}

// Get issues a single GET attempt against sourceURL. A non-negative start
// requests the inclusive range [start, end]; the response body is wrapped
// with the idle-timeout watchdog before being handed back.
func (c *client) Get(ctx context.Context, sourceURL string, start, end int64) (*http.Response, error) {
	rangeHeader := ""
	if start >= 0 {
		rangeHeader = fmt.Sprintf("bytes=%d-%d", start, end)
	}

	// The watchdog cancels this derived context when the body stalls, tearing
	// down the connection without touching the caller's context.
	reqCtx, cancel := context.WithCancel(ctx)
	resp, err := c.do(reqCtx, c.transfer, http.MethodGet, sourceURL, rangeHeader)
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = newIdleTimeoutBody(resp.Body, c.idleTimeout, cancel, sourceURL)
	return resp, nil
}

// FetchBytes retrieves a small auxiliary payload, such as artwork, in full.
func (c *client) FetchBytes(ctx context.Context, sourceURL string) ([]byte, error) {
	resp, err := c.do(ctx, c.api, http.MethodGet, sourceURL, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(sourceURL, err)
	}

	return data, nil
}

// do executes one logical fetch: it decorates the request, sends it, and
// re-issues it verbatim at the Location target on 301/302 up to maxRedirects
// hops. Only 200 and 206 come back as responses; every other status is
// classified as a transient or protocol error.
func (c *client) do(ctx context.Context, httpClient *http.Client, method, sourceURL, rangeHeader string) (*http.Response, error) {
	logger := config.GetLogger()

	current := sourceURL
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, method, current, nil)
		if err != nil {
			return nil, apperrors.NewValidationError("sourceUrl", err.Error())
		}
		c.decorate(req)
		if rangeHeader != "" {
			req.Header.Set("Range", rangeHeader)
		}
		if method == http.MethodHead {
			req.Header.Set("Accept-Encoding", "identity")
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, classifyTransportError(current, err)
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusPartialContent:
			return resp, nil

		case http.StatusMovedPermanently, http.StatusFound:
			location, locErr := resp.Location()
			resp.Body.Close()
			if locErr != nil {
				return nil, apperrors.NewProtocolError(current, resp.StatusCode)
			}
			if hop >= maxRedirects {
				logger.Warn().Str("url", sourceURL).Int("hops", hop).Msg("Redirect limit exceeded")
				return nil, apperrors.NewProtocolError(current, resp.StatusCode)
			}
			logger.Debug().Str("from", current).Str("to", location.String()).Msg("Following redirect")
			current = location.String()

		default:
			resp.Body.Close()
			if resp.StatusCode >= 500 {
				return nil, apperrors.NewTransientStatusError(current, resp.StatusCode)
			}
			return nil, apperrors.NewProtocolError(current, resp.StatusCode)
		}
	}
}

// decorate applies the browser-like headers some CDNs insist on. Referer and
// Origin are derived from the request target itself, as a browser player
// hosted by the same origin would send them.
func (c *client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	if o := originOf(req.URL); o != "" {
		req.Header.Set("Referer", o+"/")
		req.Header.Set("Origin", o)
	}
}

// originOf reduces a URL to its scheme://host[:port] origin form.
func originOf(u *url.URL) string {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
