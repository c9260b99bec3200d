// Package retry runs an operation a bounded number of times, backing off
// between attempts. The classifier decides which errors are worth another
// try; everything else aborts immediately.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

type Classify func(err error) bool

type Operation[T any] func() (T, error)

func Do[T any](ctx context.Context, p Policy, transient Classify, op Operation[T]) (T, error) {
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		if !transient(err) || attempt >= p.MaxAttempts {
			var zero T
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("retry: context cancelled: %w", ctx.Err())
		}
	}
}
