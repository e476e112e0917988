package retry

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrPending is returned by a poll step that has not reached a result yet.
var ErrPending = errors.New("still pending")

// Config holds retry configuration
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

type options struct {
	retryIf func(error) bool
	onRetry func(n uint, err error)
}

type Option func(*options)

// If restricts retries to errors matching pred.
func If(pred func(error) bool) Option {
	return func(o *options) { o.retryIf = pred }
}

// OnRetry is called before each retry.
func OnRetry(fn func(n uint, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

func (c Config) opts(ctx context.Context, extra []Option) []retry.Option {
	o := options{
		retryIf: func(error) bool { return true },
		onRetry: func(uint, error) {},
	}
	for _, fn := range extra {
		fn(&o)
	}
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.MaxAttempts),
		retry.Delay(c.InitialDelay),
		retry.MaxDelay(c.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(o.retryIf),
		retry.OnRetry(o.onRetry),
	}
}

// Do executes a function with exponential backoff retry
func Do(ctx context.Context, cfg Config, fn func() error, opts ...Option) error {
	return retry.Do(fn, cfg.opts(ctx, opts)...)
}

// DoWithResult executes a function with exponential backoff retry and returns a result
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error), opts ...Option) (T, error) {
	return retry.DoWithData(fn, cfg.opts(ctx, opts)...)
}

// Poll calls step with exponential backoff until it reports done, returns an
// error rejected by the If option, or ctx ends. MaxAttempts of zero polls
// until ctx ends, in which case the context error is returned.
func Poll(ctx context.Context, cfg Config, step func() (bool, error), opts ...Option) error {
	o := options{retryIf: func(error) bool { return false }}
	for _, fn := range opts {
		fn(&o)
	}
	retryIf := o.retryIf

	return Do(ctx, cfg, func() error {
		done, err := step()
		if err != nil {
			return err
		}
		if !done {
			return ErrPending
		}
		return nil
	}, append(opts, If(func(err error) bool {
		return errors.Is(err, ErrPending) || retryIf(err)
	}))...)
}
