// Package ratelimit throttles API requests per client with token buckets.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long a bucket may go unused before it is dropped.
const idleAfter = 10 * time.Minute

// Result is the outcome of a single check.
type Result struct {
	Allowed    bool
	Limit      int           // requests per minute
	Remaining  int           // whole tokens left
	ResetAt    time.Time     // when the bucket is full again
	RetryAfter time.Duration // zero when allowed
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	perMinute int
	burst     int
	every     rate.Limit

	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows perMinute requests per key with bursts up to burst.
// Close must be called to stop the background cleanup.
func NewLimiter(perMinute, burst int) *Limiter {
	l := &Limiter{
		perMinute: perMinute,
		burst:     burst,
		every:     rate.Limit(float64(perMinute) / 60),
		buckets:   make(map[string]*bucket),
		stop:      make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) Result {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	allowed := r.OK() && r.DelayFrom(now) == 0
	if !allowed && r.OK() {
		r.CancelAt(now)
	}
	return l.result(b.limiter, now, allowed)
}

// Peek reports whether key has a token left without consuming it.
func (l *Limiter) Peek(key string) Result {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	l.mu.Unlock()
	if !ok {
		return Result{Allowed: l.burst > 0, Limit: l.perMinute, Remaining: l.burst, ResetAt: now}
	}
	return l.result(b.limiter, now, b.limiter.TokensAt(now) >= 1)
}

func (l *Limiter) result(lim *rate.Limiter, now time.Time, allowed bool) Result {
	res := Result{Allowed: allowed, Limit: l.perMinute}
	tokens := lim.TokensAt(now)
	res.Remaining = max(int(tokens), 0)
	if l.every > 0 {
		refill := (float64(l.burst) - tokens) / float64(l.every)
		res.ResetAt = now.Add(time.Duration(refill * float64(time.Second)))
		if !res.Allowed {
			res.RetryAfter = max(time.Duration(float64(time.Second)/float64(l.every)), time.Second)
		}
	} else if !res.Allowed {
		res.RetryAfter = time.Minute
	}
	return res
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) cleanupLoop() {
	t := time.NewTicker(idleAfter)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			l.cleanup(now)
		case <-l.stop:
			return
		}
	}
}

// cleanup drops idle buckets that have refilled completely.
func (l *Limiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= idleAfter && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// WriteHeaders sets the X-RateLimit-* headers, and Retry-After when the
// request was refused.
func WriteHeaders(w http.ResponseWriter, res Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
	}
}
