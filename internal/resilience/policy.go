// Package resilience retries mail delivery when the relay answers with a
// temporary failure or the connection drops.
package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy bounds how often and how patiently a delivery is retried.
type Policy struct {
	// Attempts is the total number of tries, the first included.
	Attempts int
	// Delay is the wait before the second try. It doubles for every
	// further try up to MaxDelay.
	Delay    time.Duration
	MaxDelay time.Duration
	// Jitter adds up to this fraction of each wait at random, so that
	// several senders greylisted together do not come back in lockstep.
	Jitter float64
	// OnRetry, when set, is told about each failure that will be retried.
	OnRetry func(attempt int, err error)
}

// MailPolicy is the delivery policy of the daily digest: three tries, two
// seconds apart at first.
func MailPolicy() Policy {
	return Policy{
		Attempts: 3,
		Delay:    2 * time.Second,
		MaxDelay: time.Minute,
		Jitter:   0.25,
	}
}

// Do runs send until it succeeds, fails permanently, or the policy runs out
// of attempts. The last error is returned. A context cancelled while waiting
// for the next try ends the loop with both the last error and the context's.
func Do(ctx context.Context, p Policy, send func(context.Context) error) error {
	attempts := max(p.Attempts, 1)
	for try := 1; ; try++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := send(ctx)
		if err == nil || try == attempts || !IsTransient(err) {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(try, err)
		}

		wait := time.NewTimer(p.wait(try))
		select {
		case <-ctx.Done():
			wait.Stop()
			return errors.Join(err, ctx.Err())
		case <-wait.C:
		}
	}
}

// wait returns the pause after the given failed try, counting from 1.
func (p Policy) wait(try int) time.Duration {
	d := p.Delay
	for i := 1; i < try && (p.MaxDelay <= 0 || d < p.MaxDelay); i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && d > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

// RetryLogger returns an OnRetry callback that logs each retried failure.
func RetryLogger(log *zap.Logger, operation string) func(int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	return func(attempt int, err error) {
		log.Warn("delivery failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
