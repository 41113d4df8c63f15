package main

import (
	"net"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 4096

// ipLimiter hands out a token bucket per client IP. Least recently seen
// clients are forgotten once maxTrackedClients is reached.
type ipLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	cache, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &ipLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: cache,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	lim := rate.NewLimiter(l.limit, l.burst)
	if prev, ok, _ := l.limiters.PeekOrAdd(ip, lim); ok {
		lim = prev
	}
	return lim.Allow()
}

// clientIP extracts the remote IP without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// throttled rejects requests over the per-IP rate with 429.
func (s *APIServer) throttled(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}
