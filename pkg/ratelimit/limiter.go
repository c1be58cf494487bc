package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter paces outbound calls to the remote provider
type Limiter interface {
	// Wait blocks until the next call is allowed or ctx is cancelled
	Wait(ctx context.Context) error
	// Reset clears the limiter state
	Reset()
}

// Interval enforces a minimum spacing between consecutive calls. The
// first call passes immediately; each later call waits until the
// configured delay since the previous one has elapsed.
type Interval struct {
	delay    time.Duration
	lastCall time.Time
	mu       sync.Mutex
}

// NewInterval creates an inter-call delay limiter
func NewInterval(delay time.Duration) *Interval {
	return &Interval{delay: delay}
}

// Wait blocks until the minimum spacing since the previous call has passed
func (i *Interval) Wait(ctx context.Context) error {
	i.mu.Lock()
	var wait time.Duration
	if !i.lastCall.IsZero() {
		wait = i.delay - time.Since(i.lastCall)
	}
	if wait <= 0 {
		i.lastCall = time.Now()
		i.mu.Unlock()
		return ctx.Err()
	}
	i.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	i.mu.Lock()
	i.lastCall = time.Now()
	i.mu.Unlock()
	return nil
}

// Reset forgets the previous call time
func (i *Interval) Reset() {
	i.mu.Lock()
	i.lastCall = time.Time{}
	i.mu.Unlock()
}

// TokenBucket caps the number of calls per refill period
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a token bucket limiter, e.g. 60 calls per minute
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow reports whether a call may proceed right now, consuming a token
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is cancelled
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		untilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()
		if untilRefill <= 0 {
			untilRefill = 10 * time.Millisecond
		}

		timer := time.NewTimer(untilRefill)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Reset refills the bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refill adds tokens when a full period has elapsed; callers hold tb.mu
func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

// Nop is a limiter that never waits, for configurations without pacing
type Nop struct{}

func (Nop) Wait(ctx context.Context) error { return ctx.Err() }
func (Nop) Reset()                         {}
