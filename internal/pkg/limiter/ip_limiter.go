/*
Package limiter provides per-IP rate limiting for incoming connection attempts.

Each client IP gets its own token bucket (rate.Limiter). A background sweep removes buckets that
have refilled completely so idle clients do not accumulate in memory.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

// sweepInterval is how often idle limiters are removed.
const sweepInterval = 3 * time.Minute

// IPRateLimiter hands out one token bucket per client IP address.
type IPRateLimiter struct {
	// mu protects the limits map.
	mu sync.RWMutex

	// limits maps client IP address to its bucket.
	limits map[string]*rate.Limiter

	// r is the refill rate in events per second.
	r rate.Limit

	// b is the bucket size.
	b int

	logger zerolog.Logger
}

// NewIPRateLimiter creates a limiter with rate r and burst b.
// The idle sweep runs until ctx is cancelled.
func NewIPRateLimiter(ctx context.Context, r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		logger: logx.Component("limiter"),
	}

	go i.sweepLoop(ctx)

	return i
}

// GetLimiter returns the bucket for ip, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.limits[ip]
	i.mu.RUnlock()

	if !exists {
		i.mu.Lock()
		limiter, exists = i.limits[ip]
		if !exists {
			limiter = rate.NewLimiter(i.r, i.b)
			i.limits[ip] = limiter
		}
		i.mu.Unlock()
	}

	return limiter
}

// Allow consumes one token from ip's bucket and reports whether one was available.
func (i *IPRateLimiter) Allow(ip string) bool {
	return i.GetLimiter(ip).Allow()
}

// Len returns the number of tracked IP addresses.
func (i *IPRateLimiter) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.limits)
}

func (i *IPRateLimiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			i.sweep(now)
		}
	}
}

// sweep drops every bucket that is full at now. A full bucket behaves exactly like a new one.
func (i *IPRateLimiter) sweep(now time.Time) int {
	i.mu.Lock()
	removed := 0
	for ip, limiter := range i.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(i.limits, ip)
			removed++
		}
	}
	remaining := len(i.limits)
	i.mu.Unlock()

	if removed > 0 {
		i.logger.Debug().
			Int("removed", removed).
			Int("remaining", remaining).
			Msg("Rate limiter sweep removed idle IPs.")
	}
	return removed
}

// ClientIP extracts the host part of r.RemoteAddr, which chi's RealIP middleware has already
// rewritten when proxy headers are present.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware rejects requests whose client IP has no token left with a 429 error body.
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		if !i.Allow(ip) {
			i.logger.Warn().Str("remote_ip", logx.AnonymizeIP(ip)).Msg("Request rejected: rate limit exceeded.")
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
