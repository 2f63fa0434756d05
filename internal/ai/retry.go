package ai

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withRetry runs op until it succeeds, fails with a non-transport error, or
// maxRetries extra attempts are used up. The wait between attempts grows
// exponentially from initial.
func withRetry(ctx context.Context, maxRetries int, initial time.Duration, op func() error) error {
	if maxRetries <= 0 {
		return op()
	}

	exp := backoff.NewExponentialBackOff()
	if initial > 0 {
		exp.InitialInterval = initial
	}
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxRetries)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, ErrTransport) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
