package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Session is one candidate interview. The ID is a UUIDv4; only its first
// 12 characters are used as the on-disk filename stem. At 48 bits of
// entropy a prefix collision is negligible for any realistic volume
// (~1 in 281 trillion per pair) and is accepted rather than handled.
type Session struct {
	ID string `json:"id"`

	// Job configuration
	JobDescription  string `json:"jobDescription"`
	STierInvitation string `json:"sTierInvitation,omitempty"`
	STierLink       string `json:"sTierLink,omitempty"`

	// Candidate info
	CandidateName   string `json:"candidateName,omitempty"`
	CandidateEmail  string `json:"candidateEmail,omitempty"`
	CandidatePhone  string `json:"candidatePhone,omitempty"`
	CandidateResume string `json:"candidateResume,omitempty"`

	// Conversation
	Messages         []Message `json:"messages"`
	ThoughtSignature string    `json:"thoughtSignature,omitempty"`

	// State
	Status    SessionStatus `json:"status"`
	TurnCount int           `json:"turnCount"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

type CreateSessionParams struct {
	JobDescription  string
	STierInvitation string
	STierLink       string
	CandidateName   string
	CandidateEmail  string
	CandidatePhone  string
	CandidateResume string
}

func NewSession(params CreateSessionParams) *Session {
	now := time.Now()
	return &Session{
		ID:              uuid.NewString(),
		JobDescription:  params.JobDescription,
		STierInvitation: params.STierInvitation,
		STierLink:       params.STierLink,
		CandidateName:   params.CandidateName,
		CandidateEmail:  params.CandidateEmail,
		CandidatePhone:  params.CandidatePhone,
		CandidateResume: params.CandidateResume,
		Messages:        []Message{},
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IDPrefix returns the filename stem used by the session store.
func (s *Session) IDPrefix(n int) string {
	if len(s.ID) <= n {
		return s.ID
	}
	return s.ID[:n]
}

// AddMessage appends to the conversation and maintains the invariant that
// TurnCount always equals the number of candidate-role messages.
func (s *Session) AddMessage(role MessageRole, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if role == RoleCandidate {
		s.TurnCount++
	}
	s.UpdatedAt = time.Now()
}

// End marks the session terminal. The transition is one-way.
func (s *Session) End(status SessionStatus) {
	now := time.Now()
	s.Status = status
	s.EndedAt = &now
	s.UpdatedAt = now
}

// TranscriptText renders the conversation as plain text for evaluation.
func (s *Session) TranscriptText() string {
	lines := make([]string, 0, len(s.Messages))
	for _, msg := range s.Messages {
		label := "Candidate"
		if msg.Role == RoleModel {
			label = "Interviewer"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, msg.Content))
	}
	return strings.Join(lines, "\n\n")
}
