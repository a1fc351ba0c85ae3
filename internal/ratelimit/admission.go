package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/voiverse/interview-server/internal/config"
)

// Scope names reported on denial.
const (
	ScopeGlobal  = "global"
	ScopeAddress = "address"
	ScopeSession = "session"
)

// ScopeLimiter is one admission scope; both the in-memory and redis-backed
// limiters satisfy it.
type ScopeLimiter interface {
	Check(ctx context.Context, key string) (allowed bool, resetAfter time.Duration)
}

// Admission gates chat turns behind three scopes, widest first: a global
// ceiling protecting the generation backend, a per-address ceiling against a
// single abusive source, and a per-session ceiling against rapid
// double-submits. The first scope to deny wins and its reset estimate is
// reported; narrower scopes are not consumed for a denied request.
type Admission struct {
	global  ScopeLimiter
	address ScopeLimiter
	session ScopeLimiter
}

// NewAdmission builds the per-process variant.
func NewAdmission(cfg *config.Config) *Admission {
	return &Admission{
		global:  NewLimiter(config.GlobalRateLimit, config.GlobalRateWindow),
		address: NewLimiter(cfg.RateLimitRequests, cfg.AddressWindow()),
		session: NewLimiter(config.SessionRateLimit, config.SessionRateWindow),
	}
}

// NewRedisAdmission builds the shared-counter variant for multi-process
// deployments.
func NewRedisAdmission(client *redis.Client, cfg *config.Config) *Admission {
	return &Admission{
		global:  NewRedisLimiter(client, config.GlobalRateLimit, config.GlobalRateWindow),
		address: NewRedisLimiter(client, cfg.RateLimitRequests, cfg.AddressWindow()),
		session: NewRedisLimiter(client, config.SessionRateLimit, config.SessionRateWindow),
	}
}

// Check admits or denies one chat turn. On denial it returns the failing
// scope and a positive wait estimate.
func (a *Admission) Check(ctx context.Context, sessionID, addr string) (ok bool, retryAfter time.Duration, scope string) {
	checks := []struct {
		scope   string
		limiter ScopeLimiter
		key     string
	}{
		{ScopeGlobal, a.global, "global"},
		{ScopeAddress, a.address, "addr:" + addr},
		{ScopeSession, a.session, "session:" + sessionID},
	}

	for _, c := range checks {
		allowed, resetAfter := c.limiter.Check(ctx, c.key)
		if !allowed {
			if resetAfter <= 0 {
				resetAfter = time.Second
			}
			log.Warn().
				Str("scope", c.scope).
				Str("sessionId", sessionID).
				Str("addr", addr).
				Dur("retryAfter", resetAfter).
				Msg("admission denied")
			return false, resetAfter, c.scope
		}
	}
	return true, 0, ""
}
