package service

import (
	"context"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
)

// RetryPolicy retries transient failures a bounded number of times.
//
// Rate-limit responses carrying a positive retry-after are exempt from the
// attempt budget: the policy waits for that duration and repeats the same
// attempt. A rate limit without a wait counts as a regular transient failure.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(error) bool
	Sleep       func(ctx context.Context, d time.Duration) error
}

func FixedBackoff(delay time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return delay }
}

// ExponentialBackoff doubles base per attempt, capped at maxDelay when maxDelay > 0.
func ExponentialBackoff(base time.Duration, maxDelay time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if maxDelay > 0 && delay >= maxDelay {
				return maxDelay
			}
		}
		return delay
	}
}

func NewRetryPolicy(maxAttempts int, backoff func(int) time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Backoff: backoff}
}

func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = domain.IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := domain.RetryAfter(err); ok {
			if sleepErr := sleep(ctx, wait); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		if !retryable(err) || attempt == maxAttempts {
			return err
		}
		if p.Backoff != nil {
			if sleepErr := sleep(ctx, p.Backoff(attempt)); sleepErr != nil {
				return sleepErr
			}
		}
		attempt++
	}
	return lastErr
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
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
