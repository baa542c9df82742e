package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/audio-gateway/internal/metrics"
)

// clientLimiter hands out a token bucket per client address. Idle buckets
// are pruned so the map stays bounded by the active client set.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 3 * time.Minute,
	}
}

// Allow reports whether the client may proceed right now. A gateway rejects
// over-limit requests instead of queueing them.
func (l *clientLimiter) Allow(client string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.clients[client]
	if !ok {
		l.pruneLocked(now)
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.Allow()
}

func (l *clientLimiter) pruneLocked(now time.Time) {
	for addr, b := range l.clients {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.clients, addr)
		}
	}
}

// clientAddr extracts the remote host without the ephemeral port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimitMiddleware caps the per-client request rate on processing routes.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientAddr(r)) {
			metrics.IncRateLimited()
			s.writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:  "TooManyRequests",
				Detail: "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
