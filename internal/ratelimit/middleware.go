package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/greenmart/internal/common"
)

// KeyFunc derives the bucket a request is counted against.
type KeyFunc func(*http.Request) string

// KeyByUserOrIP buckets authenticated callers by user and everyone else by client IP.
func KeyByUserOrIP(prefix string) KeyFunc {
	return func(r *http.Request) string {
		if id, ok := common.UserID(r.Context()); ok && id != "" {
			return prefix + "user:" + id
		}
		return prefix + "ip:" + common.ClientIP(r)
	}
}

// Burst caps how often a caller may hit a route inside a sliding window.
// It guards against hammering, separate from the per-day spin allowance.
// A Redis failure lets the request through and is logged.
type Burst struct {
	Limiter Limiter
	Key     KeyFunc
	Window  time.Duration
	Max     int
	Logger  zerolog.Logger
}

func (b Burst) Middleware(next http.Handler) http.Handler {
	if b.Key == nil || b.Max <= 0 {
		return next
	}
	limit := strconv.Itoa(b.Max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := b.Key(r)
		allowed, remaining, resetAt, err := b.Limiter.Allow(r.Context(), key, b.Window, b.Max)
		if err != nil {
			b.Logger.Warn().Err(err).Str("bucket", key).Msg("burst limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if !allowed {
			h.Set("Retry-After", strconv.Itoa(RetryAfterSeconds(resetAt)))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RetryAfterSeconds rounds the time until reset up to whole seconds.
func RetryAfterSeconds(resetAt time.Time) int {
	d := time.Until(resetAt)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
