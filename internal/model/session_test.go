package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession(t *testing.T) {
	t.Run("new session is pending with a UUID id", func(t *testing.T) {
		s := NewSession(CreateSessionParams{JobDescription: "Backend engineer"})

		assert.Equal(t, StatusPending, s.Status)
		assert.Len(t, s.ID, 36)
		assert.Empty(t, s.Messages)
		assert.Zero(t, s.TurnCount)
	})

	t.Run("turn count tracks candidate messages only", func(t *testing.T) {
		s := NewSession(CreateSessionParams{JobDescription: "jd"})

		s.AddMessage(RoleModel, "greeting")
		s.AddMessage(RoleCandidate, "answer one")
		s.AddMessage(RoleModel, "follow-up")
		s.AddMessage(RoleCandidate, "answer two")

		assert.Equal(t, 2, s.TurnCount)
		candidates := 0
		for _, m := range s.Messages {
			if m.Role == RoleCandidate {
				candidates++
			}
		}
		assert.Equal(t, candidates, s.TurnCount)
	})

	t.Run("End is terminal and records ended time", func(t *testing.T) {
		s := NewSession(CreateSessionParams{JobDescription: "jd"})
		s.End(StatusCompleted)

		assert.True(t, s.Status.Terminal())
		assert.NotNil(t, s.EndedAt)
	})

	t.Run("IDPrefix truncates to n characters", func(t *testing.T) {
		s := NewSession(CreateSessionParams{JobDescription: "jd"})
		assert.Len(t, s.IDPrefix(12), 12)
		assert.True(t, strings.HasPrefix(s.ID, s.IDPrefix(12)))
	})

	t.Run("TranscriptText labels both roles", func(t *testing.T) {
		s := NewSession(CreateSessionParams{JobDescription: "jd"})
		s.AddMessage(RoleModel, "Hello")
		s.AddMessage(RoleCandidate, "Hi there")

		text := s.TranscriptText()
		assert.Contains(t, text, "Interviewer: Hello")
		assert.Contains(t, text, "Candidate: Hi there")
	})
}

func TestTierThresholds(t *testing.T) {
	tests := []struct {
		score int
		tier  DecisionTier
	}{
		{95, TierS},
		{90, TierS},
		{89, TierA},
		{80, TierA},
		{79, TierB},
		{60, TierB},
		{59, TierC},
		{0, TierC},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.tier, DefaultThresholds.TierForScore(tt.score), "score %d", tt.score)
	}

	t.Run("only C fails", func(t *testing.T) {
		assert.True(t, PassForTier(TierS))
		assert.True(t, PassForTier(TierA))
		assert.True(t, PassForTier(TierB))
		assert.False(t, PassForTier(TierC))
	})
}
