package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/voiverse/interview-server/internal/config"
	apperrors "github.com/voiverse/interview-server/internal/errors"
	"github.com/voiverse/interview-server/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS interview_sessions (
	id             TEXT PRIMARY KEY,
	candidate_name TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	turn_count     INT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	data           JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS interview_evaluations (
	session_id    TEXT PRIMARY KEY REFERENCES interview_sessions(id) ON DELETE CASCADE,
	total_score   INT NOT NULL,
	decision_tier TEXT NOT NULL,
	evaluated_at  TIMESTAMPTZ NOT NULL,
	data          JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_created_at
	ON interview_sessions (created_at);
`

// PostgresStore is the multi-process backend. The full session and
// evaluation documents live in JSONB; a few columns are lifted out for
// indexing and summaries.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, apperrors.Storage(err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return apperrors.Storage(err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interview_sessions (id, candidate_name, status, turn_count, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			candidate_name = EXCLUDED.candidate_name,
			status = EXCLUDED.status,
			turn_count = EXCLUDED.turn_count,
			data = EXCLUDED.data
	`, session.ID, session.CandidateName, session.Status, session.TurnCount, session.CreatedAt, data)
	if err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *PostgresStore) loadSessionWhere(ctx context.Context, query string, args ...any) (*model.Session, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("session")
	}
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperrors.Storage(err)
	}
	return &session, nil
}

func (s *PostgresStore) LoadSession(ctx context.Context, id string) (*model.Session, error) {
	return s.loadSessionWhere(ctx, `
		SELECT data FROM interview_sessions WHERE id = $1
	`, id)
}

func (s *PostgresStore) FindByPrefix(ctx context.Context, prefix string, days int) (*model.Session, error) {
	if len(prefix) < 8 {
		return nil, apperrors.InvalidInput("prefix", "must be at least 8 characters")
	}
	if days <= 0 {
		days = config.PrefixSearchDays
	}
	return s.loadSessionWhere(ctx, `
		SELECT data FROM interview_sessions
		WHERE id LIKE $1 || '%'
		AND created_at >= NOW() - ($2 || ' days')::interval
		ORDER BY created_at DESC
		LIMIT 1
	`, prefix, days)
}

func (s *PostgresStore) SaveEvaluation(ctx context.Context, result *model.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return apperrors.Storage(err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interview_evaluations (session_id, total_score, decision_tier, evaluated_at, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			total_score = EXCLUDED.total_score,
			decision_tier = EXCLUDED.decision_tier,
			evaluated_at = EXCLUDED.evaluated_at,
			data = EXCLUDED.data
	`, result.SessionID, result.TotalScore, result.DecisionTier, result.EvaluatedAt, data)
	if err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *PostgresStore) LoadEvaluation(ctx context.Context, sessionID string) (*model.EvaluationResult, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `
		SELECT data FROM interview_evaluations WHERE session_id = $1
	`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("evaluation")
	}
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	var result model.EvaluationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, apperrors.Storage(err)
	}
	return &result, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, day time.Time) ([]*model.Session, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	var rows [][]byte
	err := s.db.SelectContext(ctx, &rows, `
		SELECT data FROM interview_sessions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
	`, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	sessions := make([]*model.Session, 0, len(rows))
	for _, data := range rows {
		var session model.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, apperrors.Storage(err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

func (s *PostgresStore) RecentSummaries(ctx context.Context, days int) ([]SessionSummary, error) {
	if days <= 0 {
		days = config.PrefixSearchDays
	}

	var rows []struct {
		SessionID     string         `db:"id"`
		CandidateName string         `db:"candidate_name"`
		Status        string         `db:"status"`
		TurnCount     int            `db:"turn_count"`
		CreatedAt     time.Time      `db:"created_at"`
		TotalScore    sql.NullInt64  `db:"total_score"`
		DecisionTier  sql.NullString `db:"decision_tier"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT s.id, s.candidate_name, s.status, s.turn_count, s.created_at,
			e.total_score, e.decision_tier
		FROM interview_sessions s
		LEFT JOIN interview_evaluations e ON e.session_id = s.id
		WHERE s.created_at >= NOW() - ($1 || ' days')::interval
		ORDER BY s.created_at DESC
	`, days)
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	summaries := make([]SessionSummary, 0, len(rows))
	for _, row := range rows {
		summary := SessionSummary{
			SessionID:     row.SessionID,
			CandidateName: row.CandidateName,
			Status:        model.SessionStatus(row.Status),
			TurnCount:     row.TurnCount,
			CreatedAt:     row.CreatedAt,
		}
		if row.TotalScore.Valid {
			score := int(row.TotalScore.Int64)
			summary.TotalScore = &score
			summary.DecisionTier = model.DecisionTier(row.DecisionTier.String)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM interview_sessions WHERE id = $1
	`, id)
	if err != nil {
		return apperrors.Storage(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("session")
	}
	return nil
}

func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM interview_sessions WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, apperrors.Storage(err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
