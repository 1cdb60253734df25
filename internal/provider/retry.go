package provider

import (
	"context"
	"errors"
	"time"
)

type retriable interface {
	IsRetriable() bool
}

// permanent reports errors that say they will not succeed on a retry.
func permanent(err error) bool {
	var re retriable
	if errors.As(err, &re) {
		return !re.IsRetriable()
	}
	return errors.Is(err, context.Canceled)
}

// withRetry runs fn up to attempts times with a fixed delay between tries.
// onRetry, if set, is called before each wait.
func withRetry(ctx context.Context, attempts int, delay time.Duration, onRetry func(attempt int, err error), fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if delay < 0 {
		delay = 0
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts || permanent(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
