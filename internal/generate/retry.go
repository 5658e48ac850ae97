package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
	maxBackoff         = 30 * time.Second
)

// backoff returns an exponential schedule starting at base with up to
// base/2 of jitter, capped at 30s and bounded to maxRetries retries.
func backoff(base time.Duration, maxRetries int) retry.Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxBackoff, b)
	b = retry.WithJitter(base/2, b)
	return retry.WithMaxRetries(uint64(maxRetries), b) // #nosec G115 -- non-negative
}

// complete calls the completer under the rate limiter and per-call timeout,
// retrying transient failures.
func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	var (
		out      string
		attempts int
	)
	err := retry.Do(ctx, backoff(g.opts.BackoffBase, g.opts.MaxRetries), func(ctx context.Context) error {
		attempts++
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()

		start := time.Now()
		text, err := g.completer.Complete(callCtx, prompt)
		elapsed := time.Since(start)
		if err == nil {
			g.stats.Record(elapsed, OutcomeOK)
			out = text
			return nil
		}

		// A per-call timeout is transient; a cancelled run is not.
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !IsRetryable(err) {
			err = &RetryableError{Message: fmt.Sprintf("request timed out after %s", g.opts.Timeout)}
		}
		if IsRetryable(err) {
			g.stats.Record(elapsed, OutcomeRetryable)
			g.log.Warn("retryable generation error", "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		g.stats.Record(elapsed, OutcomeFailed)
		return err
	})
	if err != nil {
		if IsRetryable(err) {
			return "", fmt.Errorf("giving up after %d attempts: %w", attempts, err)
		}
		return "", err
	}
	return out, nil
}
