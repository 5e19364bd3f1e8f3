package database

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// backoff retries an operation with exponentially growing, jittered delays.
type backoff struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     bool
}

// connectBackoff covers a database that is still starting next to the app.
func connectBackoff() *backoff {
	return &backoff{
		maxRetries: 5,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   5 * time.Second,
		multiplier: 2.0,
		jitter:     true,
	}
}

// Retry calls fn until it succeeds, the retries run out or ctx is done.
func (b *backoff) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == b.maxRetries {
			break
		}

		delay := b.delay(attempt)
		slog.DebugContext(ctx, "Retry attempt failed, waiting before next attempt",
			"attempt", attempt+1, "max_attempts", b.maxRetries+1,
			"delay_ms", delay.Milliseconds(), "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("operation failed after %d attempts: %w", b.maxRetries+1, lastErr)
}

func (b *backoff) delay(attempt int) time.Duration {
	d := float64(b.baseDelay) * math.Pow(b.multiplier, float64(attempt))
	if d > float64(b.maxDelay) {
		d = float64(b.maxDelay)
	}
	if b.jitter {
		// up to 25%
		d += rand.Float64() * d * 0.25
	}
	return time.Duration(d)
}
