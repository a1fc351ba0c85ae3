package model

import "time"

// EvaluationResult is produced exactly once per session and never updated
// in place.
type EvaluationResult struct {
	SessionID     string       `json:"sessionId"`
	CandidateName string       `json:"candidateName"`
	TotalScore    int          `json:"totalScore"`
	DecisionTier  DecisionTier `json:"decisionTier"`
	IsPass        bool         `json:"isPass"`

	// Weighted sub-scores: skill 60%, communication 20%, adaptability 20%.
	SkillMatchScore      int `json:"skillMatchScore"`
	CommunicationScore   int `json:"communicationScore"`
	RemoteReadinessScore int `json:"remoteReadinessScore"`

	KeyStrengths     []string `json:"keyStrengths"`
	RedFlags         []string `json:"redFlags"`
	Summary          string   `json:"summary"`
	NotificationText string   `json:"notificationText"`

	// NeedsReview marks fallback results that a human must re-check.
	NeedsReview bool      `json:"needsReview,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

func (e *EvaluationResult) IsSTier() bool {
	return e.DecisionTier == TierS
}

// TierThresholds holds the score cutoffs used to derive a tier.
type TierThresholds struct {
	S int
	A int
	B int
}

// DefaultThresholds matches S>=90, A>=80, B>=60, else C.
var DefaultThresholds = TierThresholds{S: 90, A: 80, B: 60}

// TierForScore derives the decision tier purely from the numeric score.
func (t TierThresholds) TierForScore(score int) DecisionTier {
	switch {
	case score >= t.S:
		return TierS
	case score >= t.A:
		return TierA
	case score >= t.B:
		return TierB
	default:
		return TierC
	}
}

// PassForTier reports whether a tier passes initial screening; only C fails.
func PassForTier(tier DecisionTier) bool {
	return tier != TierC
}
