package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voiverse/interview-server/internal/config"
	apperrors "github.com/voiverse/interview-server/internal/errors"
	"github.com/voiverse/interview-server/internal/model"
)

const (
	dayDirLayout     = "2006-01-02"
	sessionSuffix    = "_session.json"
	evaluationSuffix = "_evaluation.json"
)

// FileStore keeps one JSON file per session and per evaluation under
// date-named directories: <root>/<YYYY-MM-DD>/<id12>_session.json. Writes go
// through a temp file and rename so readers never observe a partial file.
type FileStore struct {
	root  string
	locks *LockManager

	// now is indirected for tests that fabricate past date dirs.
	now func() time.Time
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Storage(err)
	}
	return &FileStore{
		root:  root,
		locks: NewLockManager(),
		now:   time.Now,
	}, nil
}

func (s *FileStore) dayDir(t time.Time) string {
	return filepath.Join(s.root, t.Format(dayDirLayout))
}

func idPrefix(id string) string {
	if len(id) <= config.SessionIDPrefixLen {
		return id
	}
	return id[:config.SessionIDPrefixLen]
}

// renameFile is indirected for crash-injection tests.
var renameFile = os.Rename

// writeAtomic writes v as indented JSON to a temp file in the target dir,
// then renames it into place.
func writeAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Storage(err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.Storage(err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return apperrors.Storage(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Storage(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Storage(err)
	}
	if err := renameFile(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperrors.Storage(err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *FileStore) SaveSession(ctx context.Context, session *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dayDir(session.CreatedAt), idPrefix(session.ID)+sessionSuffix)

	release, err := s.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	return writeAtomic(path, session)
}

// findFile searches date dirs newest-first for a file named <prefix>*<suffix>.
func (s *FileStore) findFile(ctx context.Context, prefix, suffix string, days int) (string, error) {
	today := s.now()
	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		dir := s.dayDir(today.AddDate(0, 0, -i))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", apperrors.Storage(err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
				return filepath.Join(dir, name), nil
			}
		}
	}
	return "", nil
}

func (s *FileStore) LoadSession(ctx context.Context, id string) (*model.Session, error) {
	path, err := s.findFile(ctx, idPrefix(id), sessionSuffix, config.PrefixSearchDays)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, apperrors.NotFound("session")
	}

	var session model.Session
	if err := readJSON(path, &session); err != nil {
		return nil, apperrors.Storage(err)
	}
	if len(id) > config.SessionIDPrefixLen && session.ID != id {
		return nil, apperrors.NotFound("session")
	}
	return &session, nil
}

func (s *FileStore) FindByPrefix(ctx context.Context, prefix string, days int) (*model.Session, error) {
	if len(prefix) < 8 {
		return nil, apperrors.InvalidInput("prefix", "must be at least 8 characters")
	}
	if days <= 0 {
		days = config.PrefixSearchDays
	}
	if len(prefix) > config.SessionIDPrefixLen {
		prefix = prefix[:config.SessionIDPrefixLen]
	}

	path, err := s.findFile(ctx, prefix, sessionSuffix, days)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, apperrors.NotFound("session")
	}

	var session model.Session
	if err := readJSON(path, &session); err != nil {
		return nil, apperrors.Storage(err)
	}
	return &session, nil
}

func (s *FileStore) SaveEvaluation(ctx context.Context, result *model.EvaluationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := idPrefix(result.SessionID)

	// The evaluation sits next to its session file. A session saved earlier
	// the same run always resolves; fall back to today's dir otherwise.
	dir := s.dayDir(s.now())
	if sessionPath, err := s.findFile(ctx, prefix, sessionSuffix, config.PrefixSearchDays); err != nil {
		return err
	} else if sessionPath != "" {
		dir = filepath.Dir(sessionPath)
	}

	path := filepath.Join(dir, prefix+evaluationSuffix)

	release, err := s.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	return writeAtomic(path, result)
}

func (s *FileStore) LoadEvaluation(ctx context.Context, sessionID string) (*model.EvaluationResult, error) {
	path, err := s.findFile(ctx, idPrefix(sessionID), evaluationSuffix, config.PrefixSearchDays)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, apperrors.NotFound("evaluation")
	}

	var result model.EvaluationResult
	if err := readJSON(path, &result); err != nil {
		return nil, apperrors.Storage(err)
	}
	return &result, nil
}

func (s *FileStore) ListSessions(ctx context.Context, day time.Time) ([]*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dayDir(day))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	var sessions []*model.Session
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), sessionSuffix) {
			continue
		}
		var session model.Session
		path := filepath.Join(s.dayDir(day), entry.Name())
		if err := readJSON(path, &session); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable session file")
			continue
		}
		sessions = append(sessions, &session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *FileStore) RecentSummaries(ctx context.Context, days int) ([]SessionSummary, error) {
	if days <= 0 {
		days = config.PrefixSearchDays
	}

	var summaries []SessionSummary
	today := s.now()
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, -i)
		sessions, err := s.ListSessions(ctx, day)
		if err != nil {
			return nil, err
		}
		for _, session := range sessions {
			summary := SessionSummary{
				SessionID:     session.ID,
				CandidateName: session.CandidateName,
				Status:        session.Status,
				TurnCount:     session.TurnCount,
				CreatedAt:     session.CreatedAt,
			}
			evalPath := filepath.Join(s.dayDir(day), idPrefix(session.ID)+evaluationSuffix)
			var result model.EvaluationResult
			if err := readJSON(evalPath, &result); err == nil {
				score := result.TotalScore
				summary.TotalScore = &score
				summary.DecisionTier = result.DecisionTier
			}
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}

func (s *FileStore) DeleteSession(ctx context.Context, id string) error {
	path, err := s.findFile(ctx, idPrefix(id), sessionSuffix, config.PrefixSearchDays)
	if err != nil {
		return err
	}
	if path == "" {
		return apperrors.NotFound("session")
	}

	release, err := s.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer release()

	if err := os.Remove(path); err != nil {
		return apperrors.Storage(err)
	}
	evalPath := filepath.Join(filepath.Dir(path), idPrefix(id)+evaluationSuffix)
	if err := os.Remove(evalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Storage(err)
	}
	return nil
}

// PurgeOlderThan removes whole date directories older than the cutoff date
// and sweeps stale lock markers from the rest. Returns the number of session
// files removed.
func (s *FileStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, apperrors.Storage(err)
	}

	cutoffDay := cutoff.Format(dayDirLayout)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, err := time.Parse(dayDirLayout, name); err != nil {
			continue
		}
		dir := filepath.Join(s.root, name)

		if name < cutoffDay {
			removed += countSessionFiles(dir)
			if err := os.RemoveAll(dir); err != nil {
				return removed, apperrors.Storage(err)
			}
			log.Info().Str("dir", dir).Msg("purged aged session directory")
			continue
		}

		s.sweepStaleLocks(dir)
	}
	return removed, nil
}

func countSessionFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), sessionSuffix) {
			n++
		}
	}
	return n
}

func (s *FileStore) sweepStaleLocks(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) > s.locks.staleAge {
			log.Warn().Str("path", path).Msg("sweeping stale lock marker")
			_ = os.Remove(path)
		}
	}
}

func (s *FileStore) Close() error { return nil }
