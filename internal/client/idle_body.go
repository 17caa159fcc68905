package client

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/magicianjarden/audiio-official-sub003/internal/apperrors"
)

// idleTimeoutBody aborts a response mid-stream when no bytes arrive for the
// configured window. Every successful read re-arms the timer; when it fires,
// the request context is cancelled, which tears the connection down and
// unblocks any in-flight read.
type idleTimeoutBody struct {
	body      io.ReadCloser
	timer     *time.Timer
	timeout   time.Duration
	cancel    context.CancelFunc
	stalled   atomic.Bool
	sourceURL string
}

func newIdleTimeoutBody(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc, sourceURL string) io.ReadCloser {
	b := &idleTimeoutBody{
		body:      body,
		timeout:   timeout,
		cancel:    cancel,
		sourceURL: sourceURL,
	}
	b.timer = time.AfterFunc(timeout, func() {
		// The flag must be set before the context fires so the read that gets
		// unblocked observes a stall, not a plain cancellation.
		b.stalled.Store(true)
		cancel()
	})
	return b
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	if err != nil && err != io.EOF && b.stalled.Load() {
		return n, apperrors.NewTransientError(b.sourceURL, ErrStalled)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	b.timer.Stop()
	b.cancel()
	return b.body.Close()
}
