package cron

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/0xPuncker/chronos-console/internal/store"
	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/sirupsen/logrus"
)

const RefreshJobsTask = "refresh-jobs"

type JobStore interface {
	Snapshot() *store.State
	QueryJobs(ctx context.Context) uint64
	Await(ctx context.Context, key string, ticket uint64) (*store.State, error)
	MarkDeleted(id int64)
}

// DeletionNotifier is told about jobs that disappeared from the agent.
type DeletionNotifier interface {
	JobDeleted(job *types.Job, origin string) error
}

// RefreshJobsJob re-queries the agent's job list and marks every job the
// console knew about but the agent no longer reports as deleted, which
// closes any revert view still showing it.
type RefreshJobsJob struct {
	store    JobStore
	notifier DeletionNotifier
	logger   *logrus.Logger
	timeout  time.Duration
}

func NewRefreshJobsJob(s JobStore, notifier DeletionNotifier, logger *logrus.Logger, timeout time.Duration) *RefreshJobsJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RefreshJobsJob{
		store:    s,
		notifier: notifier,
		logger:   logger,
		timeout:  timeout,
	}
}

func (j *RefreshJobsJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	known := knownJobs(j.store.Snapshot())

	ticket := j.store.QueryJobs(ctx)
	st, err := j.store.Await(ctx, store.QueryKey, ticket)
	if err != nil {
		return fmt.Errorf("failed to refresh jobs: %w", err)
	}
	if err := st.Err(store.QueryKey); err != nil {
		return fmt.Errorf("failed to refresh jobs: %w", err)
	}

	removed := make([]*types.Job, 0)
	for id, job := range known {
		if _, ok := st.ByID[id]; !ok {
			removed = append(removed, job)
		}
	}
	sort.Slice(removed, func(a, b int) bool {
		return removed[a].ID < removed[b].ID
	})

	for _, job := range removed {
		j.store.MarkDeleted(job.ID)
		j.logger.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"job_name": job.Name,
		}).Info("Job no longer reported by agent")

		if j.notifier != nil {
			if err := j.notifier.JobDeleted(job, "agent"); err != nil {
				j.logger.WithError(err).Warn("Failed to send deletion notification")
			}
		}
	}

	j.logger.WithFields(logrus.Fields{
		"jobs_count":    len(st.Query),
		"removed_count": len(removed),
	}).Debug("Refreshed job list")
	return nil
}

// knownJobs is every job st holds, from the list and from single lookups.
func knownJobs(st *store.State) map[int64]*types.Job {
	known := make(map[int64]*types.Job, len(st.ByID)+len(st.Jobs))
	for id, job := range st.Jobs {
		known[id] = job
	}
	for id, job := range st.ByID {
		known[id] = job
	}
	return known
}
