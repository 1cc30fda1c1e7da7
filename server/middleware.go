package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type callerKey struct{}

// bearerAuth validates Authorization: Bearer tokens against the configured
// set. An empty token list disables authentication; callers are then keyed by
// remote address for rate limiting.
func bearerAuth(tokens []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), remoteHost(r))))
				return
			}
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthorized", Message: "missing bearer token"})
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
			if _, ok := allowed[token]; !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthorized", Message: "invalid bearer token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), token)))
		})
	}
}

func withCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

func callerID(ctx context.Context) string {
	if id, ok := ctx.Value(callerKey{}).(string); ok {
		return id
	}
	return ""
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type callerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func (l *callerLimiter) allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[id] = limiter
	}
	return limiter.Allow()
}

// rateLimit applies a per-caller request budget. A non-positive perMinute
// disables limiting.
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := &callerLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(callerID(r.Context())) {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Code: "rate_limited", Message: "request budget exhausted"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
