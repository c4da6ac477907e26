// Package poll runs a check repeatedly at a fixed interval until it succeeds,
// fails, runs out of attempts or is cancelled.
//
// The relay protocol is strictly request/response, so a peer learns about new
// data only by asking again. Poll keeps that loop in one place:
//
//	err := poll.Scheduler{Interval: time.Second}.Poll(ctx, 10, func(ctx context.Context) error {
//	    doc, err := fetch(ctx)
//	    if doc == nil {
//	        return poll.ErrNotReady
//	    }
//	    return err
//	})
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

// DefaultInterval is the delay between attempts when Scheduler.Interval is zero.
const DefaultInterval = time.Second

// Errors.
var (
	// ErrNotReady is returned by a check to ask for another attempt.
	ErrNotReady = errors.New("poll: not ready")

	// ErrExhausted is returned by Poll when every attempt reported ErrNotReady.
	ErrExhausted = errors.New("poll: attempts exhausted")
)

// CheckFunc is one polling attempt. Returning nil ends polling successfully;
// returning an error wrapping ErrNotReady schedules another attempt; any other
// error ends polling with that error.
type CheckFunc func(ctx context.Context) error

// Scheduler spaces polling attempts by a fixed interval.
type Scheduler struct {
	Interval time.Duration

	// Notify, if set, is called with the check error before each wait.
	Notify func(err error, wait time.Duration)
}

// Poll runs check immediately and then once per interval while it reports
// ErrNotReady, for at most maxTries attempts. A maxTries of zero or less means a
// single attempt.
func (s Scheduler) Poll(ctx context.Context, maxTries int, check CheckFunc) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxTries < 1 {
		maxTries = 1
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// WithMaxRetries treats zero as unlimited.
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if maxTries > 1 {
		policy = backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxTries-1))
	}

	err := backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := check(ctx)
		if err == nil || errors.Is(err, ErrNotReady) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx), backoff.Notify(s.Notify))

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		// RetryNotify returns the last check error when the context ends.
		return ctx.Err()
	case errors.Is(err, ErrNotReady):
		return ErrExhausted
	}
	return err
}
