package transport

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/data-douser/swamp-go/internal/errdefs"
)

// retry executes fn up to maxAttempts times with jittered exponential
// backoff. Only transport failures are retried; an HTTP status is the
// service's answer and is returned at once.
func retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var transportErr *errdefs.TransportError
		if !errors.As(lastErr, &transportErr) || attempt == maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return lastErr
		}
		var jitter time.Duration
		if delay >= 2 {
			jitter = time.Duration(rand.Int63n(int64(delay / 2)))
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return lastErr
}
