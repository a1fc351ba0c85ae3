// Package notify builds the operator-facing notification payload emitted
// after each evaluation. Actual delivery (chat-ops webhook) is an external
// concern; this package only assembles and logs the payload.
package notify

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/voiverse/interview-server/internal/model"
)

// Notification is the structured payload handed to the delivery layer.
type Notification struct {
	SessionID      string             `json:"sessionId"`
	CandidateName  string             `json:"candidateName"`
	CandidateEmail string             `json:"candidateEmail,omitempty"`
	JobTitle       string             `json:"jobTitle,omitempty"`
	DecisionTier   model.DecisionTier `json:"decisionTier"`
	TotalScore     int                `json:"totalScore"`
	Summary        string             `json:"summary"`
	KeyStrengths   []string           `json:"keyStrengths"`
	RedFlags       []string           `json:"redFlags"`
	Transcript     string             `json:"transcript"`

	// DetailURL deep-links operators to the recovery view, using the short
	// session id prefix.
	DetailURL string `json:"detailUrl,omitempty"`

	// IsUrgent marks S-tier results for immediate follow-up.
	IsUrgent bool `json:"isUrgent"`
}

// FromEvaluation assembles a notification from a finished session and its
// evaluation result.
func FromEvaluation(session *model.Session, result *model.EvaluationResult, jobTitle, baseURL string) Notification {
	detailURL := ""
	if baseURL != "" {
		detailURL = strings.TrimRight(baseURL, "/") + "/v1/interviews/" + session.IDPrefix(8)
	}

	return Notification{
		SessionID:      session.ID,
		CandidateName:  result.CandidateName,
		CandidateEmail: session.CandidateEmail,
		JobTitle:       jobTitle,
		DecisionTier:   result.DecisionTier,
		TotalScore:     result.TotalScore,
		Summary:        result.Summary,
		KeyStrengths:   result.KeyStrengths,
		RedFlags:       result.RedFlags,
		Transcript:     session.TranscriptText(),
		DetailURL:      detailURL,
		IsUrgent:       result.IsSTier(),
	}
}

// Emit logs the notification for the delivery layer to pick up.
func Emit(n Notification) {
	log.Info().
		Str("sessionId", n.SessionID).
		Str("candidate", n.CandidateName).
		Str("tier", string(n.DecisionTier)).
		Int("score", n.TotalScore).
		Bool("urgent", n.IsUrgent).
		Str("detailUrl", n.DetailURL).
		Msg("evaluation notification")
}
