package config

import "time"

// HTTP server timeouts
const (
	ServerRequestTimeout  = 180 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Generation client retry policy
const (
	GenerateMaxAttempts   = 3
	GenerateBaseDelay     = time.Second
	EvaluationMaxAttempts = 3
)

// Session store file locking. Staleness detection is a best-effort heuristic
// based on lock file age; it recovers from crashed holders but is not a
// correctness guarantee under adversarial timing.
const (
	LockWaitTimeout    = 10 * time.Second
	LockPollInterval   = 100 * time.Millisecond
	LockStaleAge       = 60 * time.Second
	PrefixSearchDays   = 30
	SessionIDPrefixLen = 12
)

// Admission control windows. Session scope guards rapid double-submits,
// address scope guards a single abusive source, global scope guards
// aggregate overload.
const (
	SessionRateLimit  = 5
	SessionRateWindow = 10 * time.Second
	GlobalRateLimit   = 100
	GlobalRateWindow  = 60 * time.Second
)

// Background job intervals
const (
	CleanupJobInterval  = 5 * time.Minute
	LimiterSweepEvery   = time.Minute
	SessionRetentionAge = 90 * 24 * time.Hour
)

// DefaultTerminationPhrases are scanned (case-sensitive substring match)
// against each assembled interviewer reply; any hit ends the interview.
var DefaultTerminationPhrases = []string{
	"Thank you for your time. I now have a good picture of your background",
	"the system is now preparing your evaluation",
	"This concludes our interview",
	"we will review everything and get back to you",
}
