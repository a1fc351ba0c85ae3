package model

type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusTerminated SessionStatus = "terminated"
)

// Terminal reports whether no further conversation messages may be appended.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusTerminated
}

type MessageRole string

const (
	RoleCandidate MessageRole = "user"
	RoleModel     MessageRole = "model"
)

// DecisionTier is the ordinal hiring bucket, S highest.
type DecisionTier string

const (
	TierS DecisionTier = "S"
	TierA DecisionTier = "A"
	TierB DecisionTier = "B"
	TierC DecisionTier = "C"
)
