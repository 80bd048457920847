package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/config"
)

// limiterIdleTTL is how long an idle client bucket is kept.
const limiterIdleTTL = 5 * time.Minute

// ipRateLimiter is a token bucket per client IP for the credential
// endpoints.
type ipRateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*ipBucket
}

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// newIPRateLimiter returns nil when rate limiting is disabled.
func newIPRateLimiter(cfg config.RateLimitConfig) *ipRateLimiter {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*ipBucket),
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	if ip == "" {
		ip = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	l.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// sweep drops buckets idle for longer than limiterIdleTTL.
func (l *ipRateLimiter) sweep() {
	cutoff := l.now().Add(-limiterIdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

func (l *ipRateLimiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// rateLimitMiddleware rejects clients over their budget with 429.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	interval := time.Duration(float64(time.Second) / float64(s.limiter.limit))
	retryAfter := strconv.Itoa(int(interval.Seconds()) + 1)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip) {
			s.logger.Warn("rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "Too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
