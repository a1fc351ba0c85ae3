package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voiverse/interview-server/internal/model"
)

func TestFromEvaluation(t *testing.T) {
	session := model.NewSession(model.CreateSessionParams{
		JobDescription: "Backend engineer",
		CandidateName:  "Dana",
		CandidateEmail: "dana@example.com",
	})
	session.AddMessage(model.RoleModel, "Hello.")
	session.AddMessage(model.RoleCandidate, "Hi there.")

	result := &model.EvaluationResult{
		SessionID:     session.ID,
		CandidateName: "Dana",
		TotalScore:    93,
		DecisionTier:  model.TierS,
		IsPass:        true,
		KeyStrengths:  []string{"systems thinking"},
		RedFlags:      []string{},
		Summary:       "Exceptional candidate.",
	}

	n := FromEvaluation(session, result, "Backend Engineer", "https://hire.example.com/")

	assert.Equal(t, session.ID, n.SessionID)
	assert.Equal(t, "dana@example.com", n.CandidateEmail)
	assert.Equal(t, 93, n.TotalScore)
	assert.True(t, n.IsUrgent, "S tier must be urgent")
	assert.Equal(t, "https://hire.example.com/v1/interviews/"+session.ID[:8], n.DetailURL)
	assert.Contains(t, n.Transcript, "Hi there.")

	t.Run("no base url means no detail link", func(t *testing.T) {
		n := FromEvaluation(session, result, "", "")
		assert.Empty(t, n.DetailURL)
	})

	t.Run("non-s tier is not urgent", func(t *testing.T) {
		result := *result
		result.DecisionTier = model.TierB
		n := FromEvaluation(session, &result, "", "")
		assert.False(t, n.IsUrgent)
	})
}
