package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/toko-storefront/internal/common"
)

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler guards a route with an Allower. Limiter errors fail open and are
// reported through OnError.
type Handler struct {
	Limiter Allower
	Config  Config
	OnError func(error)
}

type decision struct {
	allowed   bool
	remaining int
	reset     time.Time
}

func (d decision) retryAfter(now time.Time) int {
	secs := int(d.reset.Sub(now) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

func (h Handler) limit() int {
	if h.Config.Max < 0 {
		return 0
	}
	return h.Config.Max
}

func (h Handler) writeHeaders(w http.ResponseWriter, d decision) {
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(h.limit()))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.reset.Unix(), 10))
}

// Middleware implements the chi middleware signature.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil || h.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			d   decision
			err error
		)
		d.allowed, d.remaining, d.reset, err = h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		h.writeHeaders(w, d)
		if d.allowed {
			next.ServeHTTP(w, r)
			return
		}
		wait := d.retryAfter(time.Now())
		w.Header().Set("Retry-After", strconv.Itoa(wait))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later", map[string]any{"retryAfter": wait})
	})
}

// SessionOrIP keys limits by storefront session, falling back to client IP.
func SessionOrIP(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := common.SessionID(r.Context()); ok {
			return prefix + "session:" + id
		}
		return prefix + "ip:" + common.ClientIP(r)
	}
}
