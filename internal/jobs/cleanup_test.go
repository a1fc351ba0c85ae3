package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiverse/interview-server/internal/model"
	"github.com/voiverse/interview-server/internal/store"
)

func TestCleanupJob(t *testing.T) {
	root := t.TempDir()
	st, err := store.NewFileStore(root)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()

	expired := model.NewSession(model.CreateSessionParams{JobDescription: "Go engineer"})
	expired.CreatedAt = time.Now().AddDate(0, 0, -120)
	require.NoError(t, st.SaveSession(ctx, expired))

	recent := model.NewSession(model.CreateSessionParams{JobDescription: "Go engineer"})
	require.NoError(t, st.SaveSession(ctx, recent))

	job := NewCleanupJob(st, time.Hour, 90*24*time.Hour)
	job.cleanup()

	expiredDir := filepath.Join(root, expired.CreatedAt.Format("2006-01-02"))
	_, err = os.Stat(expiredDir)
	assert.True(t, os.IsNotExist(err), "expired day directory should be purged")

	_, err = st.LoadSession(ctx, recent.ID)
	assert.NoError(t, err, "recent session should survive")
}

func TestCleanupJobStartStop(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	job := NewCleanupJob(st, 10*time.Millisecond, 90*24*time.Hour)
	job.Start()
	time.Sleep(30 * time.Millisecond)
	job.Stop()
}
