package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is the request gate shared by the crawler and the download
// workers.
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a slot opens
	Wait()
	// WaitContext blocks until a slot opens or the context ends
	WaitContext(ctx context.Context) error
	// Reset returns the limiter to its initial budget
	Reset()
}

// ForRate builds a limiter for a requests-per-minute budget. With
// bursting enabled a token bucket allows short spikes up to burstSize;
// otherwise a sliding window enforces the budget precisely.
func ForRate(requestsPerMinute, burstSize int, burstEnabled bool) Limiter {
	if burstEnabled && burstSize > 0 {
		return NewPerMinute(requestsPerMinute, burstSize)
	}
	return NewSlidingWindow(requestsPerMinute, time.Minute)
}

// TokenBucket implements a continuously refilling token bucket.
// Tokens accrue at a steady rate up to the bucket capacity, so the
// sustained request rate stays bounded while short bursts can drain
// the accumulated tokens.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a token bucket that restores a fully drained
// bucket over refillPeriod.
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(capacity) / refillPeriod.Seconds(),
		lastRefill: time.Now(),
	}
}

// NewPerMinute creates a token bucket sustaining requestsPerMinute with
// bursts up to burstSize.
func NewPerMinute(requestsPerMinute, burstSize int) *TokenBucket {
	if burstSize < 1 {
		burstSize = 1
	}
	return &TokenBucket{
		capacity:   float64(burstSize),
		tokens:     float64(burstSize),
		refillRate: float64(requestsPerMinute) / 60.0,
		lastRefill: time.Now(),
	}
}

// Allow takes one token when the bucket holds at least one.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}

	return false
}

// Wait sleeps in token-sized steps until Allow succeeds.
func (tb *TokenBucket) Wait() {
	for !tb.Allow() {
		time.Sleep(tb.timeUntilToken())
	}
}

// WaitContext is Wait bounded by ctx.
func (tb *TokenBucket) WaitContext(ctx context.Context) error {
	for !tb.Allow() {
		timer := time.NewTimer(tb.timeUntilToken())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

// Reset refills the bucket.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refill adds tokens earned since the last refill
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed.Seconds() * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// timeUntilToken estimates the wait for the next whole token
func (tb *TokenBucket) timeUntilToken() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		return time.Millisecond
	}

	missing := 1 - tb.tokens
	wait := time.Duration(missing / tb.refillRate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// SlidingWindow enforces the budget over a rolling window. It trades
// the bucket's burst headroom for a precise request count.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow builds a window allowing maxRequests per windowSize.
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Allow records the request if the window still has room.
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.evictExpired(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}

	return false
}

// Wait sleeps until the oldest entry ages out of the window.
func (sw *SlidingWindow) Wait() {
	for !sw.Allow() {
		time.Sleep(sw.timeUntilSlot())
	}
}

// WaitContext is Wait bounded by ctx.
func (sw *SlidingWindow) WaitContext(ctx context.Context) error {
	for !sw.Allow() {
		timer := time.NewTimer(sw.timeUntilSlot())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

// Reset forgets every recorded request.
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// timeUntilSlot estimates the wait until the oldest request leaves the window
func (sw *SlidingWindow) timeUntilSlot() time.Duration {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if len(sw.requests) == 0 {
		return time.Millisecond
	}

	wait := sw.windowSize - time.Since(sw.requests[0])
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// evictExpired drops entries older than the window. Callers hold the
// lock.
func (sw *SlidingWindow) evictExpired(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	expired := 0
	for expired < len(sw.requests) && sw.requests[expired].Before(cutoff) {
		expired++
	}
	if expired > 0 {
		sw.requests = sw.requests[:copy(sw.requests, sw.requests[expired:])]
	}
}
