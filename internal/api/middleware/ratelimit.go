package middleware

import (
	"math"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"tradegate.io/server/internal/metrics"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ClientIPKey charges each client address separately.
func ClientIPKey(c *gin.Context) string { return c.ClientIP() }

// sharedKey charges every request to one bucket.
func sharedKey(*gin.Context) string { return "" }

// bucketSet is a set of token buckets keyed by KeyFunc output. Buckets that
// have been idle for longer than idleAfter are dropped on a later call, so
// no cleanup goroutine is needed.
type bucketSet struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newBucketSet(rps float64, burst int) *bucketSet {
	// a full bucket refills in burst/rps; idle longer than that is equivalent to new
	idle := time.Minute
	if rps > 0 {
		if refill := time.Duration(math.Ceil(float64(burst)/rps)) * time.Second; refill > idle {
			idle = refill
		}
	}
	return &bucketSet{
		buckets:   make(map[string]*bucket),
		limit:     rate.Limit(rps),
		burst:     burst,
		idleAfter: idle,
		now:       time.Now,
	}
}

// reserve charges one token to key. When the bucket is empty it returns
// false and the whole seconds until a token is available.
func (s *bucketSet) reserve(key string) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > s.idleAfter {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > s.idleAfter {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	wait := 1
	if s.limit > 0 {
		wait = int(math.Ceil(1 / float64(s.limit)))
	}
	return false, wait
}

func (s *bucketSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RateLimit creates middleware that charges each request to the bucket named
// by key and refuses it with 429 and Retry-After when that bucket is empty.
//
// Parameters:
//   - scope: Label for metrics and the error body (e.g., "ip", "signals")
//   - rps: Sustained requests per second per bucket
//   - burst: Bucket size
//   - key: Bucket selector
//
// Returns:
//   - Gin middleware handler function
func RateLimit(scope string, rps float64, burst int, key KeyFunc) gin.HandlerFunc {
	buckets := newBucketSet(rps, burst)

	return func(c *gin.Context) {
		if ok, retryAfter := buckets.reserve(key(c)); !ok {
			metrics.RateLimitBlocks.WithLabelValues(scope).Inc()
			GetLogger(c).Debug("request rate limited")
			RespondError(c, &RateLimitError{Scope: scope, RetryAfter: retryAfter})
			return
		}
		c.Next()
	}
}

// RateLimitByIP limits each client address; the router applies it to every route.
//
// Example:
//
//	router.Use(RateLimitByIP(10.0, 20)) // 10 req/s, burst of 20
func RateLimitByIP(rps float64, burst int) gin.HandlerFunc {
	return RateLimit("ip", rps, burst, ClientIPKey)
}

// RateLimitGlobal shares one bucket across all clients. Signal intake uses
// it to cap total alert throughput.
func RateLimitGlobal(rps float64, burst int) gin.HandlerFunc {
	return RateLimit("global", rps, burst, sharedKey)
}
