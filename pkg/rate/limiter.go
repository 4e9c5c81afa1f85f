package rate

import (
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/code-payments/code-vesting/pkg/cache"
)

const defaultMaxTrackedKeys = 100_000

// Limiter limits operations based on a provided key.
type Limiter interface {
	Allow(key string) (bool, error)
}

type localRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *cache.Cache[*rate.Limiter]
}

// NewLocalRateLimiter returns an in memory limiter allowing limit operations
// per second for each key.
func NewLocalRateLimiter(limit rate.Limit) Limiter {
	return NewLocalRateLimiterWithCapacity(limit, defaultMaxTrackedKeys)
}

// NewLocalRateLimiterWithCapacity returns an in memory limiter tracking at
// most maxKeys keys. The least recently seen keys are forgotten first, which
// resets their limit.
func NewLocalRateLimiterWithCapacity(limit rate.Limit, maxKeys int) Limiter {
	burst := int(math.Ceil(float64(limit)))
	if burst < 1 {
		burst = 1
	}

	return &localRateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: cache.New[*rate.Limiter](maxKeys),
	}
}

// Allow implements limiter.Allow.
func (l *localRateLimiter) Allow(key string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Put(key, limiter, 1)
	}
	l.mu.Unlock()

	return limiter.Allow(), nil
}

// NoLimiter never limits operations
type NoLimiter struct {
}

// Allow implements limiter.Allow.
func (n *NoLimiter) Allow(key string) (bool, error) {
	return true, nil
}
