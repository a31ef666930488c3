package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

// visitor is one client's token bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// rateLimiter gives each client IP a bucket of burst tokens that refills
// evenly over window.
type rateLimiter struct {
	limit    rate.Limit
	burst    int
	visitors *xsync.MapOf[string, *visitor]
	now      func() time.Time
}

func newRateLimiter(window time.Duration, burst int) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		limit:    rate.Every(window / time.Duration(burst)),
		burst:    burst,
		visitors: xsync.NewMapOf[string, *visitor](),
		now:      time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	v, _ := rl.visitors.LoadOrCompute(key, func() *visitor {
		return &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	})
	now := rl.now()
	v.lastSeen.Store(now.UnixNano())
	return v.limiter.AllowN(now, 1)
}

// sweep forgets clients not seen for longer than idle.
func (rl *rateLimiter) sweep(idle time.Duration) int {
	cutoff := rl.now().Add(-idle).UnixNano()
	removed := 0
	rl.visitors.Range(func(key string, v *visitor) bool {
		if v.lastSeen.Load() < cutoff {
			rl.visitors.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// run sweeps every idle period until ctx is done.
func (rl *rateLimiter) run(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep(idle)
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			writeFailure(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the request's remote host. Proxy headers have already been
// folded into RemoteAddr by middleware.RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
