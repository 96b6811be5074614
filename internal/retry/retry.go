package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Default retry settings.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 1 * time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// Policy bounds how often and how slowly an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// BaseDelay is the wait before the second try. It doubles on every retry.
	BaseDelay time.Duration
	// MaxDelay caps the wait between two tries.
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  DefaultAttempts,
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
	}
}

// Backoff returns the wait before try attempt+1 (attempt is 0-indexed),
// with up to 50% jitter added.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	base := p.BaseDelay << uint(min(attempt, 20))
	if p.MaxDelay > 0 && base > p.MaxDelay {
		base = p.MaxDelay
	}
	half := int64(base) / 2
	if half <= 0 {
		return base
	}
	return base + time.Duration(rand.Int64N(half))
}

// Do calls fn until it succeeds, returns an error for which retryable is
// false, the attempts are used up or ctx is done. It returns the number of
// tries made and the last error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(attempt int) error) (int, error) {
	attempts := max(p.Attempts, 1)
	var err error
	for attempt := range attempts {
		if attempt > 0 {
			timer := time.NewTimer(p.Backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(attempt); err == nil {
			return attempt + 1, nil
		}
		if ctx.Err() != nil {
			return attempt + 1, err
		}
		if retryable != nil && !retryable(err) {
			return attempt + 1, err
		}
	}
	return attempts, err
}
