package drain

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds the registration health poll. The delay before each
// retry is MinDelay plus a random jitter up to MaxDelay-MinDelay; zero
// delays never sleep.
type RetryPolicy struct {
	Attempts uint
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy polls three times, waiting 1-5s between polls
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, MinDelay: time.Second, MaxDelay: 5 * time.Second}
}

// Do runs fn until it succeeds, returns an unrecoverable error or the
// attempts are used up. onRetry sees each recoverable failure.
func (p RetryPolicy) Do(ctx context.Context, fn func() error, onRetry func(attempt uint, err error)) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
	}
	if onRetry != nil {
		opts = append(opts, retry.OnRetry(onRetry))
	}

	switch {
	case p.MaxDelay <= 0 && p.MinDelay <= 0:
		opts = append(opts, retry.Delay(0), retry.DelayType(retry.FixedDelay))
	case p.MaxDelay <= p.MinDelay:
		opts = append(opts, retry.Delay(p.MinDelay), retry.DelayType(retry.FixedDelay))
	default:
		opts = append(opts,
			retry.Delay(p.MinDelay),
			retry.MaxJitter(p.MaxDelay-p.MinDelay),
			retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		)
	}

	return retry.Do(fn, opts...)
}
