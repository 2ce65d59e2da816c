// Package retry wraps cenkalti/backoff/v4 with the error taxonomy from
// errs: only errors classified as transient are retried, everything else
// stops the backoff loop immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Tangerg/weave/errs"
)

// Backoff configures an exponential backoff policy. Zero values fall back
// to cenkalti/backoff/v4's own defaults (500ms initial, 1.5 multiplier,
// 0.5 randomization, 60s max interval, 15m max elapsed).
type Backoff struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxElapsedTime      time.Duration
	MaxRetries          uint64 // 0 means unbounded (still capped by MaxElapsedTime)
}

func (b Backoff) policy() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if b.InitialInterval > 0 {
		eb.InitialInterval = b.InitialInterval
	}
	if b.MaxInterval > 0 {
		eb.MaxInterval = b.MaxInterval
	}
	if b.Multiplier > 0 {
		eb.Multiplier = b.Multiplier
	}
	if b.RandomizationFactor > 0 {
		eb.RandomizationFactor = b.RandomizationFactor
	}
	if b.MaxElapsedTime > 0 {
		eb.MaxElapsedTime = b.MaxElapsedTime
	}
	eb.Reset()

	var policy backoff.BackOff = eb
	if b.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, b.MaxRetries)
	}
	return policy
}

// Do runs op, retrying on errors errs classifies as transient according to
// b's policy. A non-transient error (or one that is not errs-classified at
// all) stops retrying immediately and is returned as-is. ctx cancellation
// also stops the loop and surfaces ctx.Err().
func (b Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	policy := backoff.WithContext(b.policy(), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !errs.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
