package oaipmh

import (
	"context"
	"net"
	"time"

	"emperror.dev/errors"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how often a request is attempted when the transport
// times out, and how long to wait in between.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, at least one.
	MaxAttempts int
	// Factor is the delay before the first retry. It doubles with every
	// further retry.
	Factor time.Duration
	// MaxBackoff caps the delay.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy makes three attempts, waiting 0.5s and 1s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	Factor:      500 * time.Millisecond,
	MaxBackoff:  5 * time.Second,
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait before retry n, counting from 1:
// min(Factor * 2^(n-1), MaxBackoff).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 || p.Factor <= 0 || p.MaxBackoff <= 0 {
		return 0
	}
	d := p.Factor
	for i := 1; i < n; i++ {
		if d >= p.MaxBackoff {
			break
		}
		d *= 2
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// policyBackOff adapts a RetryPolicy to backoff.BackOff. It stops after the
// configured number of attempts.
type policyBackOff struct {
	policy  RetryPolicy
	retries int
}

func (b *policyBackOff) Reset() { b.retries = 0 }

func (b *policyBackOff) NextBackOff() time.Duration {
	b.retries++
	if b.retries >= b.policy.attempts() {
		return backoff.Stop
	}
	return b.policy.Delay(b.retries)
}

// isTimeout reports whether err is a connect, read or write timeout. Errors
// caused by the caller's context do not count.
func isTimeout(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
