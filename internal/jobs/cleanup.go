package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voiverse/interview-server/internal/store"
)

// CleanupJob periodically purges sessions past the retention window.
type CleanupJob struct {
	store     store.Store
	interval  time.Duration
	retention time.Duration
	done      chan struct{}
}

func NewCleanupJob(st store.Store, interval, retention time.Duration) *CleanupJob {
	return &CleanupJob{
		store:     st,
		interval:  interval,
		retention: retention,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)
	count, err := j.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge expired sessions")
	} else if count > 0 {
		log.Info().Int("count", count).Time("cutoff", cutoff).Msg("purged expired sessions")
	}
}
