package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter gives every key its own token bucket. Keys are scoped by the
// caller, e.g. "login:203.0.113.7" or "invite:account:<id>". Buckets idle for
// longer than ttl are dropped.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	swept   time.Time
	now     func() time.Time
}

var _ RateLimiter = (*KeyedLimiter)(nil)

// NewKeyedLimiter allows requests events per window for each key, with burst
// extra capacity up front.
func NewKeyedLimiter(requests int, window time.Duration, burst int, ttl time.Duration) *KeyedLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &KeyedLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow consumes a token for key.
func (l *KeyedLimiter) Allow(key string) bool {
	_, ok := l.Check(key)
	return ok
}

// Check consumes a token for key. A rejected key also gets the delay until
// its next token.
func (l *KeyedLimiter) Check(key string) (time.Duration, bool) {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.bucketLocked(key, now)
	l.sweepLocked(now)

	if b.limiter.AllowN(now, 1) {
		return 0, true
	}
	reservation := b.limiter.ReserveN(now, 1)
	wait := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return wait, false
}

// Len reports how many keys are currently tracked.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *KeyedLimiter) bucketLocked(key string, now time.Time) *bucket {
	if b, ok := l.buckets[key]; ok {
		b.lastSeen = now
		return b
	}
	b := &bucket{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.buckets[key] = b
	return b
}

// sweepLocked drops idle buckets at most twice per ttl.
func (l *KeyedLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.swept) < l.ttl/2 {
		return
	}
	l.swept = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
		}
	}
}
