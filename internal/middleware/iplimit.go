package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voiverse/interview-server/internal/ratelimit"
)

// IPRateLimitMiddleware throttles a route by client address. Chat turns get
// the full multi-scope admission check in the handler; this guards the
// cheaper surfaces (session creation, recovery lookups) with a single
// per-address window.
type IPRateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	prefix  string
}

func NewIPRateLimitMiddleware(limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: ratelimit.NewLimiter(limit, window),
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("ip:%s:%s", m.prefix, r.RemoteAddr)

		if !m.limiter.Allow(key) {
			resetAfter := m.limiter.ResetAfter(key)
			secondsLeft := int(resetAfter.Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			log.Warn().Str("remote", r.RemoteAddr).Str("prefix", m.prefix).Msg("ip rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests. Please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
