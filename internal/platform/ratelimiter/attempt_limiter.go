// Package ratelimiter throttles repeated failures per key with a token
// bucket. Every failure spends a token; a key is blocked while its bucket is
// empty and refills at the configured rate.
package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AttemptLimiter tracks failures per key and evicts idle entries.
type AttemptLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*entry
	hits    uint64
	idleTTL time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New allows burst failures per key, refilled at perMinute per minute.
// It returns nil if the arguments are invalid; a nil limiter never blocks.
func New(perMinute float64, burst int, idleTTL time.Duration) *AttemptLimiter {
	if perMinute <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &AttemptLimiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		byKey:   make(map[string]*entry),
		idleTTL: idleTTL,
	}
}

// Blocked reports whether key has no failures left at now.
func (l *AttemptLimiter) Blocked(key string, now time.Time) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byKey[key]
	if !ok {
		return false
	}
	return e.limiter.TokensAt(now) < 1
}

// Fail records one failed attempt for key. It reports false once the key
// has exhausted its budget.
func (l *AttemptLimiter) Fail(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{
			limiter:  rate.NewLimiter(l.limit, l.burst),
			lastSeen: now,
		}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}

	return allowed
}

// Reset forgets key after a successful attempt.
func (l *AttemptLimiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byKey, strings.TrimSpace(key))
}
