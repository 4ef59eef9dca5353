// Package retry is the bounded exponential-backoff-with-jitter wrapper used
// for §7 category 2 (transient infrastructure) errors: Meta/Media Store
// writes, manifest publishes. Category 1/3/4 errors (protocol, data,
// coordination) are never retried and must not be passed through this
// package.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures a bounded retry run.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultPolicy matches the spec's stated store-write retry budget:
// exponential backoff from 50ms with each wait capped at 500ms, giving up
// after 6 retries or 2s in total.
var DefaultPolicy = Policy{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
	MaxElapsedTime:  2 * time.Second,
	MaxRetries:      6,
}

func (p Policy) backoffFor(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = p.MaxElapsedTime
	bo := backoff.BackOff(eb)
	if p.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, p.MaxRetries)
	}
	return backoff.WithContext(bo, ctx)
}

// Do retries fn under Policy until it succeeds, the policy's retry/elapsed
// bound is exceeded, or ctx is cancelled. The last error is returned on
// exhaustion.
func Do(ctx context.Context, p Policy, fn func() error) error {
	return backoff.Retry(fn, p.backoffFor(ctx))
}

// Constant returns a Policy-equivalent BackOff with a fixed interval and a
// retry cap, for operations (e.g. claim-lease polling) that want uniform
// spacing rather than exponential growth.
func Constant(interval time.Duration, maxRetries uint64) backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), maxRetries)
}
