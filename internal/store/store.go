package store

import (
	"context"
	"time"

	"github.com/voiverse/interview-server/internal/config"
	"github.com/voiverse/interview-server/internal/model"
)

// SessionSummary is the flattened row used by the reporting surface: one
// session joined with its evaluation, if any.
type SessionSummary struct {
	SessionID     string              `json:"sessionId"`
	CandidateName string              `json:"candidateName,omitempty"`
	Status        model.SessionStatus `json:"status"`
	TurnCount     int                 `json:"turnCount"`
	CreatedAt     time.Time           `json:"createdAt"`
	TotalScore    *int                `json:"totalScore,omitempty"`
	DecisionTier  model.DecisionTier  `json:"decisionTier,omitempty"`
}

// Store persists sessions and evaluation results. Lookups by ID accept the
// full session ID; FindByPrefix accepts any prefix of at least eight
// characters and searches the most recent `days` of sessions.
type Store interface {
	SaveSession(ctx context.Context, session *model.Session) error
	LoadSession(ctx context.Context, id string) (*model.Session, error)
	FindByPrefix(ctx context.Context, prefix string, days int) (*model.Session, error)

	SaveEvaluation(ctx context.Context, result *model.EvaluationResult) error
	LoadEvaluation(ctx context.Context, sessionID string) (*model.EvaluationResult, error)

	ListSessions(ctx context.Context, day time.Time) ([]*model.Session, error)
	RecentSummaries(ctx context.Context, days int) ([]SessionSummary, error)

	DeleteSession(ctx context.Context, id string) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// New picks the backend from configuration: Postgres when DATABASE_URL is
// set, the file store otherwise.
func New(cfg *config.Config) (Store, error) {
	if cfg.DatabaseURL != "" {
		return NewPostgresStore(cfg.DatabaseURL)
	}
	return NewFileStore(cfg.DataDir)
}
