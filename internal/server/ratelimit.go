package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/askdocs/askdocs-go/internal/logging"
)

// defaultRateLimit is the sustained requests-per-second budget granted to
// each client IP when no explicit limit is configured.
const defaultRateLimit = 10

// defaultRateBurst is the per-IP burst allowance when none is configured.
// Uploading a document and immediately querying it should never trip the
// limiter, so the burst sits well above the sustained rate.
const defaultRateBurst = 20

// staleClientAge is how long a client IP may go unseen before its token
// bucket is discarded.
const staleClientAge = 5 * time.Minute

// client pairs a token bucket with the last time its IP was seen. The
// timestamp drives eviction of idle entries.
type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// rateLimiter grants each client IP an independent token bucket and rejects
// requests that drain it. A background sweep keeps the client map bounded.
type rateLimiter struct {
	// mu protects clients.
	mu sync.Mutex
	// clients maps remote IP to its bucket and freshness timestamp.
	clients map[string]*client
	// rps is the sustained per-IP request rate.
	rps rate.Limit
	// burst is the instantaneous per-IP allowance.
	burst int
	// log receives rejection events.
	log *slog.Logger
}

// newRateLimiter builds a rateLimiter and starts its sweep goroutine. The
// goroutine runs until the returned stop function is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		clients: make(map[string]*client),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	stopCh := make(chan struct{})
	go rl.janitor(stopCh)

	return rl, func() { close(stopCh) }
}

// bucketFor returns the token bucket for ip, creating it on first sight,
// and refreshes the eviction timestamp.
func (rl *rateLimiter) bucketFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		c = &client{bucket: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.bucket
}

// janitor sweeps stale clients once a minute until stopCh closes.
func (rl *rateLimiter) janitor(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep drops every client not seen within staleClientAge.
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-staleClientAge)
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// middleware enforces the per-IP limit before delegating to next. Rejected
// requests get 429 with a Retry-After header and a WARN log entry.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if !rl.bucketFor(ip).Allow() {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. X-Forwarded-For is ignored:
// the server fronts no proxy it trusts.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
