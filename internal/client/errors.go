package client

import (
	"context"
	"errors"

	"github.com/magicianjarden/audiio-official-sub003/internal/apperrors"
)

// ErrStalled marks a fetch aborted because no data arrived within the idle
// window. It always travels inside an *apperrors.ErrTransient, so a stalled
// attempt is retried like any other transient failure.
var ErrStalled = errors.New("no data received within the idle timeout")

// classifyTransportError turns low-level transport failures into the error
// taxonomy. Cancellation is surfaced untouched: it is the caller's decision,
// not a CDN failure, and must never be retried.
func classifyTransportError(sourceURL string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, &apperrors.ErrTransient{}) || errors.Is(err, &apperrors.ErrProtocol{}) {
		return err
	}
	return apperrors.NewTransientError(sourceURL, err)
}
