package retry

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/docbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

const (
	baseDelay = 500 * time.Millisecond
	maxDelay  = 30 * time.Second
)

// Permanence marks errors that must never be retried regardless of their
// transport classification (structural failures, expired stage deadlines).
type Permanence interface {
	Permanent() bool
}

func IsPermanent(err error) bool {
	var p Permanence
	if errors.As(err, &p) {
		return p.Permanent()
	}
	return false
}

// Do runs fn up to 1+maxRetries times, backing off exponentially between
// attempts (base 500ms, doubled each attempt, jittered ±20%). Only transient
// errors are retried; a rate-limit signal with an explicit Retry-After raises
// the wait floor for the next attempt. Cancellation of ctx aborts the wait.
func Do(ctx context.Context, log *logger.Logger, name string, maxRetries int, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt)
			var rl *httpx.RateLimitError
			if errors.As(lastErr, &rl) && rl.RetryAfter > wait {
				wait = rl.RetryAfter
			}
			if log != nil {
				log.Warn("retrying", "op", name, "attempt", attempt, "wait", wait.String(), "error", lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}
		if IsPermanent(err) || !httpx.IsRetryableError(err) {
			return lastErr
		}
	}
	return lastErr
}

func backoffDelay(attempt int) time.Duration {
	d := baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			d = maxDelay
			break
		}
	}
	return httpx.JitterSleep(d)
}
