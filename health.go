package storkit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// CheckWithRetry wraps a provider's TestConnection with exponential backoff:
// baseDelay doubling per attempt across at most attempts tries. It returns
// the last health snapshot with Latency replaced by the total elapsed time
// across all attempts. It never retries indefinitely.
//
// Retry lives here and only here; data operations are never retried inside
// this layer. Health checks are explicitly meant to tolerate transient
// blips.
func CheckWithRetry(ctx context.Context, p Provider, attempts int, baseDelay time.Duration) Health {
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.Multiplier = 2.0
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	start := time.Now()
	var last Health
	for attempt := 0; attempt < attempts; attempt++ {
		last = p.TestConnection(ctx)
		if last.Healthy {
			break
		}
		if attempt == attempts-1 {
			break
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		select {
		case <-ctx.Done():
			last.Errors = append(last.Errors, ctx.Err().Error())
			last.Latency = time.Since(start)
			last.CheckedAt = time.Now()
			return last
		case <-time.After(delay):
		}
	}

	last.Latency = time.Since(start)
	return last
}
