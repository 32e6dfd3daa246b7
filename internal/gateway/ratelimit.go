// ABOUTME: Per-principal token-bucket rate limiting for the query endpoint
// ABOUTME: One limiter per principal id, created lazily and kept for the process lifetime

package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 2
	defaultBurst             = 5
)

// principalLimiter hands out one token bucket per principal.
type principalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newPrincipalLimiter(rps float64, burst int) *principalLimiter {
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &principalLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether the principal may make a request right now.
func (l *principalLimiter) Allow(principalID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[principalID]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[principalID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
