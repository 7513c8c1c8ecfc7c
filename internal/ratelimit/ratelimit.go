// Package ratelimit provides a per-key token-bucket limiter for the HTTP
// API, keyed by terminal or client address.
package ratelimit

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// maxKeys bounds the limiter map; when exceeded, idle entries are dropped
// wholesale rather than tracked with timestamps.
const maxKeys = 10000

type Limiter struct {
	mu     sync.Mutex
	perKey map[string]*rate.Limiter
	limit  rate.Limit
	burst  int
}

// New creates a limiter allowing rps requests per second with the given
// burst per key.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		perKey: make(map[string]*rate.Limiter),
		limit:  rate.Limit(rps),
		burst:  burst,
	}
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.perKey[key]
	if !ok {
		if len(l.perKey) >= maxKeys {
			l.perKey = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.perKey[key] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// Middleware rejects requests over the per-key budget with 429. keyFn
// defaults to the remote host.
func Middleware(l *Limiter, keyFn func(*http.Request) string) func(next http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = remoteHost
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(keyFn(r)) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
