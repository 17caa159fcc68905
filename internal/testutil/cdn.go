package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FakeCDN is a scriptable origin for transfer tests. It answers HEAD probes
// and ranged GETs over a fixed payload, records every request it sees, and
// can be told to misbehave: ignore Range, fail a number of GETs with 503,
// stall mid-body on chosen requests, or hide the payload length.
// This is a test helper and should not be used in production code.
type FakeCDN struct {
	server  *httptest.Server
	payload []byte

	mu            sync.Mutex
	rangeHeaders  []string
	headCount     int
	getCount      int
	failGets      int
	stalledGets   map[int]bool
	ignoreRange   bool
	omitGetLength bool
	failHead      bool
	holdCh        chan struct{}

	// StallFor is how long a stalled GET stays silent after its first byte.
	StallFor time.Duration
}

// NewFakeCDN starts a fake origin serving payload.
func NewFakeCDN(payload []byte) *FakeCDN {
	c := &FakeCDN{
		payload:     payload,
		stalledGets: make(map[int]bool),
		StallFor:    300 * time.Millisecond,
	}
	c.server = httptest.NewServer(http.HandlerFunc(c.handle))
	return c
}

// URL returns the origin's base URL.
func (c *FakeCDN) URL() string {
	return c.server.URL
}

// Close releases any held GETs and shuts the origin down.
func (c *FakeCDN) Close() {
	c.ReleaseGets()
	c.server.Close()
}

// HoldGets makes every subsequent GET block before answering until
// ReleaseGets is called, keeping transfers in flight while a test inspects
// queue state.
func (c *FakeCDN) HoldGets() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holdCh == nil {
		c.holdCh = make(chan struct{})
	}
}

// ReleaseGets unblocks every GET held by HoldGets.
func (c *FakeCDN) ReleaseGets() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holdCh != nil {
		close(c.holdCh)
		c.holdCh = nil
	}
}

// FailNextGets makes the next n GET requests answer 503.
func (c *FakeCDN) FailNextGets(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failGets = n
}

// StallGet makes the nth GET request (1-based, counted across the origin's
// lifetime) send a single byte and then go silent for StallFor.
func (c *FakeCDN) StallGet(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalledGets[n] = true
}

// IgnoreRange makes every GET answer 200 with the full payload from byte
// zero, as CDNs without range support do.
func (c *FakeCDN) IgnoreRange() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignoreRange = true
}

// HideLength makes HEAD probes fail and GET answers omit Content-Length, so
// only whole-body streaming without a known size can succeed.
func (c *FakeCDN) HideLength() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failHead = true
	c.omitGetLength = true
}

// FailHead makes HEAD probes answer 405 while GETs stay intact.
func (c *FakeCDN) FailHead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failHead = true
}

// RangeHeaders returns the Range header of every GET seen so far, in
// arrival order; unranged GETs contribute an empty string.
func (c *FakeCDN) RangeHeaders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.rangeHeaders...)
}

// HeadCount returns how many HEAD probes the origin has answered.
func (c *FakeCDN) HeadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headCount
}

// GetCount returns how many GET requests the origin has answered.
func (c *FakeCDN) GetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getCount
}

func (c *FakeCDN) handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		c.mu.Lock()
		c.headCount++
		failHead := c.failHead
		c.mu.Unlock()

		if failHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.Itoa(len(c.payload)))
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		c.mu.Lock()
		c.getCount++
		seq := c.getCount
		c.rangeHeaders = append(c.rangeHeaders, r.Header.Get("Range"))
		fail := c.failGets > 0
		if fail {
			c.failGets--
		}
		stall := c.stalledGets[seq]
		delete(c.stalledGets, seq)
		ignoreRange := c.ignoreRange
		omitLength := c.omitGetLength
		hold := c.holdCh
		c.mu.Unlock()

		if hold != nil {
			<-hold
		}

		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		start, end, ok := parseRangeHeader(r.Header.Get("Range"), int64(len(c.payload)))
		if ignoreRange || !ok {
			c.serveBody(w, c.payload, http.StatusOK, omitLength, stall)
			return
		}

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(c.payload)))
		c.serveBody(w, c.payload[start:end+1], http.StatusPartialContent, omitLength, stall)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// serveBody writes one response body. A stalled response sends a single
// byte, goes silent for StallFor, and never sends the rest.
func (c *FakeCDN) serveBody(w http.ResponseWriter, body []byte, status int, omitLength, stall bool) {
	if !omitLength {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(status)
	if omitLength {
		w.(http.Flusher).Flush()
	}

	if stall {
		if len(body) > 0 {
			_, _ = w.Write(body[:1])
			w.(http.Flusher).Flush()
		}
		time.Sleep(c.StallFor)
		return
	}

	_, _ = w.Write(body)
}

// parseRangeHeader understands the single form "bytes=start-end" the
// transfer engine emits. The end bound is clamped to the payload size.
func parseRangeHeader(header string, size int64) (start, end int64, ok bool) {
	if header == "" || size == 0 {
		return 0, 0, false
	}
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	if end > size-1 {
		end = size - 1
	}
	return start, end, true
}
