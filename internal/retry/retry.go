// Package retry centralizes the backoff policy used for bus connects,
// store connects, and RPC calls: initial interval doubling per attempt,
// capped at 30s, five attempts in total.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultInitial is the first wait between attempts.
	DefaultInitial = 100 * time.Millisecond

	maxInterval = 30 * time.Second
	maxRetries  = 4 // five attempts including the first
)

// Policy returns a fresh backoff schedule. Policies are stateful and must
// not be shared between operations.
func Policy(initial time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.MaxInterval = maxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, maxRetries)
}

// Do runs op under the default policy, honoring ctx cancellation.
func Do(ctx context.Context, op func() error) error {
	return backoff.Retry(op, backoff.WithContext(Policy(DefaultInitial), ctx))
}
