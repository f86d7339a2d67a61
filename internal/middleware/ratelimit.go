package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type sourceLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
}

func newSourceLimiter(window time.Duration) *sourceLimiter {
	return &sourceLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Every(window),
	}
}

func (sl *sourceLimiter) get(addr string) *rate.Limiter {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	l, ok := sl.limiters[addr]
	if !ok {
		// burst 1: one send per window per source
		l = rate.NewLimiter(sl.rate, 1)
		sl.limiters[addr] = l
	}
	return l
}

// Throttle limits each source address to one request per window. Rejections
// get a 429 with the standard success/message envelope. Applied to the
// immediate single-send endpoint only; bulk and scheduled paths are exempt.
func Throttle(window time.Duration) func(http.Handler) http.Handler {
	sl := newSourceLimiter(window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sl.get(r.RemoteAddr).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": "Please wait before sending another email",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
