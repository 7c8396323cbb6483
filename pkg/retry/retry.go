// Package retry provides bounded retry with pluggable backoff for driver operations
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/objectfs/sharedriver/pkg/errors"
)

// BackoffFunc returns the delay to wait before the next attempt, given the
// number of failed attempts so far (1 for the first failure).
type BackoffFunc func(failures int) time.Duration

// Config defines retry behavior configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// Backoff computes the delay before each retry
	Backoff BackoffFunc `yaml:"-" json:"-"`

	// IsRetryable decides whether an error may be retried. Errors it
	// rejects are returned unchanged after a single attempt.
	IsRetryable func(err error) bool `yaml:"-" json:"-"`

	// OnRetry is called before each backoff sleep
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`

	// Clock drives the backoff sleeps
	Clock clock.Clock `yaml:"-" json:"-"`
}

// QuadraticBackoff waits failures² units: 1, 4, 9, ... units.
func QuadraticBackoff(unit time.Duration) BackoffFunc {
	return func(failures int) time.Duration {
		return time.Duration(failures*failures) * unit
	}
}

// DefaultConfig returns the shell-command retry policy: three attempts with
// quadratic backoff in seconds, retrying only errors marked retryable.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     QuadraticBackoff(time.Second),
		IsRetryable: errors.IsRetryable,
		Clock:       clock.WallClock,
	}
}

// Retryer handles retry logic with backoff
type Retryer struct {
	config Config
}

// New creates a new Retryer with the given configuration
func New(config Config) *Retryer {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Backoff == nil {
		config.Backoff = defaults.Backoff
	}
	if config.IsRetryable == nil {
		config.IsRetryable = defaults.IsRetryable
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}

	return &Retryer{config: config}
}

// MaxAttempts returns the configured attempt limit.
func (r *Retryer) MaxAttempts() int {
	return r.config.MaxAttempts
}

// DoWithContext executes fn until it succeeds, fails with a non-retryable
// error, or the attempt limit is reached. Exhaustion is reported as
// ErrCodeRetryExhausted wrapping the last error; cancellation of ctx while
// waiting is reported as ErrCodeOperationCanceled.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return canceled(attempt-1, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.IsRetryable(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.config.Backoff(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return canceled(attempt, ctx.Err())
		case <-r.config.Clock.After(delay):
		}
	}

	return errors.Wrap(lastErr, errors.ErrCodeRetryExhausted,
		fmt.Sprintf("max retry attempts (%d) exceeded", r.config.MaxAttempts)).
		WithDetail("attempts", r.config.MaxAttempts)
}

func canceled(attempts int, cause error) error {
	return errors.Wrap(cause, errors.ErrCodeOperationCanceled,
		fmt.Sprintf("operation canceled after %d attempts", attempts)).
		WithDetail("attempts", attempts)
}
