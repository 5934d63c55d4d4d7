// Package retry runs an operation until it succeeds.
//
// Tree traversals fail fast: the first error ends the walk. Callers who
// want resilience against flaky servers wrap the whole operation
// instead of expecting the walker to paper over failures:
//
//	err := retry.Do(ctx, func() error {
//	    listing, err = ftpwalk.ListDir(url)
//	    return err
//	}, retry.WithAttempts(5), retry.WithDelay(2*time.Second))
package retry

import (
	"context"
	"time"
)

// Defaults for Do.
const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// config holds the retry policy.
type config struct {
	attempts int
	delay    time.Duration
	backoff  float64
	retryIf  func(error) bool
}

// Option adjusts the retry policy used by Do.
type Option func(*config)

// WithAttempts sets the total number of tries, the first one included.
// Values below one are treated as one.
func WithAttempts(n int) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the wait before the first retry. Zero retries
// immediately; negative values are treated as zero.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		if d < 0 {
			d = 0
		}
		c.delay = d
	}
}

// WithBackoff multiplies the delay by factor after every retry, so
// successive waits grow geometrically. Factors below one are treated
// as one.
func WithBackoff(factor float64) Option {
	return func(c *config) {
		if factor < 1 {
			factor = 1
		}
		c.backoff = factor
	}
}

// WithRetryIf restricts which errors are retried. An error the
// predicate rejects is returned immediately, even when attempts remain.
func WithRetryIf(pred func(error) bool) Option {
	return func(c *config) {
		if pred != nil {
			c.retryIf = pred
		}
	}
}

// Do runs fn until it returns nil, up to the configured number of
// attempts, waiting between tries. It returns nil on the first success
// and the last error otherwise.
//
// The context is consulted while waiting between tries: once it is
// done, Do stops and returns the context's error. A running fn is not
// interrupted.
func Do(ctx context.Context, fn func() error, options ...Option) error {
	cfg := config{
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		backoff:  1,
		retryIf:  func(error) bool { return true },
	}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.attempts < 1 {
		cfg.attempts = 1
	}

	var err error
	delay := cfg.delay
	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !cfg.retryIf(err) {
			return err
		}
		if attempt == cfg.attempts {
			return err
		}

		if waitErr := wait(ctx, delay); waitErr != nil {
			return waitErr
		}
		delay = time.Duration(float64(delay) * cfg.backoff)
	}
	return err
}

// wait blocks for d or until ctx is done, whichever comes first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
