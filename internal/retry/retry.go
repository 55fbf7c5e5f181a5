// Package retry runs sink I/O under a bounded exponential back-off.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"market-candle-lab/internal/logger"
	"market-candle-lab/internal/storage"
)

// Config holds the back-off tunables. Zero values take defaults.
type Config struct {
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	Multiplier          float64       `mapstructure:"multiplier"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	MaxElapsedTime      time.Duration `mapstructure:"max_elapsed_time"` // zero: no limit
	MaxRetries          uint64        `mapstructure:"max_retries"`      // zero: no limit
	PerAttemptTimeout   time.Duration `mapstructure:"per_attempt_timeout"`
}

func (c *Config) applyDefaults() {
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.RandomizationFactor <= 0 {
		c.RandomizationFactor = 0.5
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
}

// Validate performs sanity checks after defaults.
func (c Config) Validate() error {
	c.applyDefaults()
	if c.RandomizationFactor > 1 {
		return fmt.Errorf("retry: randomization_factor must be in [0,1]")
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("retry: multiplier must be >= 1")
	}
	if c.MaxElapsedTime < 0 || c.PerAttemptTimeout < 0 {
		return fmt.Errorf("retry: durations must be >= 0")
	}
	return nil
}

// ErrMaxRetries is returned when fn still failed after the last attempt.
type ErrMaxRetries struct {
	Err      error // last error returned by fn
	Attempts int
}

func (e *ErrMaxRetries) Error() string {
	return fmt.Sprintf("retry: %d attempt(s) failed: %v", e.Attempts, e.Err)
}

func (e *ErrMaxRetries) Unwrap() error { return e.Err }

// Permanent marks an error as non-retryable.
func Permanent(err error) error { return backoff.Permanent(err) }

// Notify is called before every retry sleep.
type Notify func(attempt int, delay time.Duration, err error)

// Do runs fn until it succeeds, returns a permanent error, or the back-off
// gives up. ErrDuplicateKey and ErrInvalidInput are never retried.
func Do(ctx context.Context, cfg Config, log *logger.Logger, notify Notify, fn func(ctx context.Context) error) error {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.RandomizationFactor = cfg.RandomizationFactor
	bo.Multiplier = cfg.Multiplier
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime

	var policy backoff.BackOff = bo
	if cfg.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, cfg.MaxRetries)
	}
	policy = backoff.WithContext(policy, ctx)

	attempts := 0
	permanent := false
	operation := func() error {
		attempts++
		attemptCtx := ctx
		if cfg.PerAttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.PerAttemptTimeout)
			defer cancel()
		}
		err := fn(attemptCtx)
		if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, storage.ErrInvalidInput) {
			permanent = true
			return backoff.Permanent(err)
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = true
		}
		return err
	}
	onRetry := func(err error, delay time.Duration) {
		if notify != nil {
			notify(attempts, delay, err)
		}
		log.Warn("retrying",
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, policy, onRetry); err != nil {
		if permanent {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return err
		}
		return &ErrMaxRetries{Err: err, Attempts: attempts}
	}
	return nil
}
