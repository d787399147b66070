package server

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// clientLimiter throttles mutating requests per remote client. Read routes
// are never throttled.
type clientLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func newClientLimiter(requestsPerMinute float64, burst int) *clientLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		perSecond: rate.Limit(requestsPerMinute / 60.0),
		burst:     burst,
		visitors:  make(map[string]*rate.Limiter),
	}
}

func (c *clientLimiter) middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.obtain(clientID(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *clientLimiter) obtain(id string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if limiter, ok := c.visitors[id]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(c.perSecond, c.burst)
	c.visitors[id] = limiter
	return limiter
}

func clientID(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
