package store

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voiverse/interview-server/internal/config"
	apperrors "github.com/voiverse/interview-server/internal/errors"
)

// LockManager serializes writes to session files. Two layers: a process-local
// mutex per path keeps goroutines of this process out of each other's way
// without filesystem traffic, and a sibling ".lock" marker created with
// O_CREATE|O_EXCL excludes other processes sharing the data directory.
//
// A marker whose mtime is older than staleAge is assumed to belong to a
// crashed holder and is removed. That is a recovery heuristic, not a fence;
// deployments needing hard mutual exclusion should use the Postgres backend.
type LockManager struct {
	wait     time.Duration
	poll     time.Duration
	staleAge time.Duration

	mu    sync.Mutex
	local map[string]*sync.Mutex
}

func NewLockManager() *LockManager {
	return &LockManager{
		wait:     config.LockWaitTimeout,
		poll:     config.LockPollInterval,
		staleAge: config.LockStaleAge,
		local:    make(map[string]*sync.Mutex),
	}
}

func (lm *LockManager) pathMutex(path string) *sync.Mutex {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	m, ok := lm.local[path]
	if !ok {
		m = &sync.Mutex{}
		lm.local[path] = m
	}
	return m
}

// Acquire blocks until the lock for path is held or the wait budget runs
// out. The returned release func must be called exactly once.
func (lm *LockManager) Acquire(path string) (release func(), err error) {
	local := lm.pathMutex(path)
	local.Lock()

	lockPath := path + ".lock"
	deadline := time.Now().Add(lm.wait)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() {
				if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
					log.Warn().Err(err).Str("path", lockPath).Msg("failed to remove lock marker")
				}
				local.Unlock()
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			local.Unlock()
			return nil, apperrors.Storage(err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lm.staleAge {
			log.Warn().Str("path", lockPath).Time("mtime", info.ModTime()).Msg("removing stale lock marker")
			_ = os.Remove(lockPath)
			continue
		}

		if time.Now().After(deadline) {
			local.Unlock()
			return nil, apperrors.LockTimeout(path)
		}
		time.Sleep(lm.poll)
	}
}
