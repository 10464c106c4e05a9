package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// Throttle spaces out calls to one node. Each RPC method has its own token
// bucket so frequent history polls cannot starve balance reads. A nil
// Throttle never blocks.
type Throttle struct {
	perSecond rate.Limit
	burst     int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewThrottle allows perSecond calls per method with bursts of up to burst.
func NewThrottle(perSecond float64, burst int) *Throttle {
	return &Throttle{
		perSecond: rate.Limit(perSecond),
		burst:     max(burst, 1),
		buckets:   make(map[string]*rate.Limiter),
	}
}

// Allow takes a token for method without waiting.
func (t *Throttle) Allow(method string) bool {
	if t == nil {
		return true
	}
	return t.bucket(method).Allow()
}

// Wait blocks until method may be called or ctx ends.
func (t *Throttle) Wait(ctx context.Context, method string) error {
	if t == nil {
		return ctx.Err()
	}
	return t.bucket(method).Wait(ctx)
}

func (t *Throttle) bucket(method string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[method]
	if !ok {
		b = rate.NewLimiter(t.perSecond, t.burst)
		t.buckets[method] = b
	}
	return b
}

// Backoff controls how read calls are repeated after transient failures.
// Transaction submission never goes through it.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// DefaultBackoff makes three attempts, pausing about 0.5s then 1s.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 3, Base: 500 * time.Millisecond, Cap: 4 * time.Second}
}

// pause is the wait before retry n (0-based): Base doubled n times, capped,
// then jittered into its upper half.
func (b Backoff) pause(n int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	d := b.Base << min(n, 30)
	if b.Cap > 0 && (d > b.Cap || d <= 0) {
		d = b.Cap
	}
	if d < 2 {
		return d
	}
	return d/2 + rand.N(d/2) //nolint:gosec // G404: jitter only
}

// Retry runs op until it succeeds, fails with a permanent error, or the
// attempts are used up. Waiting between attempts honors ctx.
func Retry[T any](ctx context.Context, b Backoff, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(b.Attempts, 1)

	var last error
	for n := range attempts {
		if n > 0 {
			timer := time.NewTimer(b.pause(n - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		last = err
	}

	return zero, fmt.Errorf("giving up after %d attempts: %w", attempts, last)
}

// IsRetryable reports whether err is a transient node failure. Validation
// errors such as insufficient funds are permanent.
func IsRetryable(err error) bool {
	switch {
	case err == nil, coinerr.IsValidation(err):
		return false
	default:
		return coinerr.IsTransport(err) || errors.Is(err, context.DeadlineExceeded)
	}
}
