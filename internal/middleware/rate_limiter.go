package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pawtraits/backend/internal/monitoring"
	"github.com/pawtraits/backend/internal/ratelimit"
	"golang.org/x/time/rate"
)

// RateLimiter is the coarse per-IP token bucket in front of every route.
type RateLimiter struct {
	ipLimiters      map[string]*rate.Limiter
	authLimiters    map[string]*rate.Limiter
	ipMutex         sync.RWMutex
	authMutex       sync.RWMutex
	ipLimiterRate   rate.Limit
	authLimiterRate rate.Limit
	ipBurst         int
	authBurst       int
	cleanupTicker   *time.Ticker
	done            chan struct{}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(ipRequestsPerSecond, authRequestsPerMinute float64, ipBurst, authBurst int) *RateLimiter {
	limiter := &RateLimiter{
		ipLimiters:      make(map[string]*rate.Limiter),
		authLimiters:    make(map[string]*rate.Limiter),
		ipLimiterRate:   rate.Limit(ipRequestsPerSecond),
		authLimiterRate: rate.Limit(authRequestsPerMinute / 60),
		ipBurst:         ipBurst,
		authBurst:       authBurst,
		cleanupTicker:   time.NewTicker(5 * time.Minute),
		done:            make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

// cleanup periodically drops idle limiters
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.cleanupTicker.C:
			rl.reset()
		}
	}
}

func (rl *RateLimiter) reset() {
	rl.ipMutex.Lock()
	rl.ipLimiters = make(map[string]*rate.Limiter)
	rl.ipMutex.Unlock()

	rl.authMutex.Lock()
	rl.authLimiters = make(map[string]*rate.Limiter)
	rl.authMutex.Unlock()
}

// Stop stops the rate limiter cleanup
func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
	close(rl.done)
}

// getIPLimiter returns the rate limiter for an IP
func (rl *RateLimiter) getIPLimiter(ip string) *rate.Limiter {
	return limiterFor(&rl.ipLimiters, &rl.ipMutex, ip, rl.ipLimiterRate, rl.ipBurst)
}

// getAuthLimiter returns the rate limiter for authentication attempts
func (rl *RateLimiter) getAuthLimiter(key string) *rate.Limiter {
	return limiterFor(&rl.authLimiters, &rl.authMutex, key, rl.authLimiterRate, rl.authBurst)
}

// limiterFor reads the map field only while holding mu, since reset swaps it.
func limiterFor(m *map[string]*rate.Limiter, mu *sync.RWMutex, key string, r rate.Limit, burst int) *rate.Limiter {
	mu.RLock()
	limiter, exists := (*m)[key]
	mu.RUnlock()
	if exists {
		return limiter
	}

	mu.Lock()
	defer mu.Unlock()
	if limiter, exists = (*m)[key]; !exists {
		limiter = rate.NewLimiter(r, burst)
		(*m)[key] = limiter
	}
	return limiter
}

// IPRateLimiterMiddleware limits requests based on IP address
func (rl *RateLimiter) IPRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getIPLimiter(c.ClientIP())
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// AuthRateLimiterMiddleware slows down credential guessing on login routes
func (rl *RateLimiter) AuthRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + ":" + c.FullPath()
		limiter := rl.getAuthLimiter(key)
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many authentication attempts, please try again later",
			})
			return
		}
		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// WindowLimit enforces a fixed-window allowance per client IP for one
// endpoint. A slot is reserved before the handler runs and handed back when
// the handler does not accept the request (any 4xx/5xx), so only accepted
// work counts against the window.
func WindowLimit(limiter *ratelimit.Limiter, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		res := limiter.Reserve(c.Request.Context(), ip, endpoint)
		setRateLimitHeaders(c, res)

		if !res.Allowed {
			monitoring.RateLimitRejections.WithLabelValues(endpoint).Inc()
			c.Header("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate limit exceeded",
				"retryAfterSeconds": res.RetryAfterSeconds,
				"resetAt":           res.ResetAt,
			})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			limiter.Release(c.Request.Context(), ip, endpoint)
		}
	}
}
