package client

import (
	"context"
	"time"
)

const (
	DefaultVerifyAttempts = 6
	DefaultVerifyInterval = 2 * time.Second
)

// VerifyOptions tune VerifyCheckout. Zero values use the defaults.
type VerifyOptions struct {
	Attempts int
	Interval time.Duration
	// After replaces time.After in tests.
	After func(time.Duration) <-chan time.Time
	// OnAttempt is called after every attempt with its 1-based number.
	OnAttempt func(attempt int, ent Entitlement, err error)
}

// VerifyCheckout polls the refresher after a checkout return until the user
// is subscribed or the attempts run out, and returns the last entitlement
// seen. The error is non-nil only when no attempt succeeded or ctx ended.
func VerifyCheckout(ctx context.Context, refresher Refresher, opts VerifyOptions) (Entitlement, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultVerifyAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultVerifyInterval
	}
	if opts.After == nil {
		opts.After = time.After
	}

	var (
		last      Entitlement
		lastErr   error
		succeeded bool
	)
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		ent, err := refresher.Refresh(ctx)
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt, ent, err)
		}
		if err != nil {
			lastErr = err
		} else {
			last, succeeded = ent, true
			if ent.Subscribed {
				return ent, nil
			}
		}
		if attempt == opts.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-opts.After(opts.Interval):
		}
	}

	if !succeeded {
		return last, lastErr
	}
	return last, nil
}
