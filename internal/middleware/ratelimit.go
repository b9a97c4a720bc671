package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/meetsy/backend/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter tracks per-user token bucket limiters.
type rateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
}

// RateLimitMiddleware applies per-user rate limiting, falling back to the
// remote address for unauthenticated requests. rps controls the
// steady-state rate, burst the maximum consumed at once.
func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	rl := &rateLimiter{rps: rate.Limit(rps), burst: burst}
	go rl.cleanupLoop()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if userID, ok := GetUserID(r.Context()); ok {
				key = userID.String()
			}

			if !rl.getVisitor(key).Allow() {
				response.Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *rateLimiter) getVisitor(key string) *rate.Limiter {
	val, ok := rl.visitors.Load(key)
	if ok {
		v := val.(*visitor)
		v.lastSeen = time.Now()
		return v.limiter
	}

	limiter := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors.Store(key, &visitor{limiter: limiter, lastSeen: time.Now()})
	return limiter
}

// cleanupLoop removes visitors that haven't been seen for 3 minutes.
func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.visitors.Range(func(key, value any) bool {
			v := value.(*visitor)
			if time.Since(v.lastSeen) > 3*time.Minute {
				rl.visitors.Delete(key)
			}
			return true
		})
	}
}
