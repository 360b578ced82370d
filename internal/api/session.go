package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/0xPuncker/chronos-console/internal/console"
	"github.com/0xPuncker/chronos-console/internal/store"
	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/sirupsen/logrus"
)

const jobsLocation = "/api/v1/jobs"

// navigator records where a revert view asked to go. Over HTTP a navigation
// becomes a Location the handler answers with.
type navigator struct {
	mu       sync.Mutex
	location string
}

func (n *navigator) ToJobs() {
	n.set(jobsLocation)
}

func (n *navigator) ToJobUpdate(job *types.Job) {
	n.set(fmt.Sprintf("%s/%d", jobsLocation, job.ID))
}

func (n *navigator) set(location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = location
}

func (n *navigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

// deleteConfirmation stands in for the confirmation dialog: a DELETE request
// is the user's confirmation, so the job is deleted right away.
type deleteConfirmation struct {
	ctx      context.Context
	store    *store.Store
	notifier Notifier
	logger   *logrus.Logger

	mu      sync.Mutex
	deleted *types.Job
	err     error
}

func (d *deleteConfirmation) ConfirmDeleteJob(job *types.Job) {
	err := d.store.DeleteJob(d.ctx, job.ID)

	d.mu.Lock()
	d.deleted, d.err = job, err
	d.mu.Unlock()

	if err != nil || d.notifier == nil {
		return
	}
	if err := d.notifier.JobDeleted(job, "console"); err != nil {
		d.logger.WithError(err).Warn("Failed to send deletion notification")
	}
}

func (d *deleteConfirmation) result() (*types.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleted, d.err
}

// session is one revert view opened for the duration of a request.
type session struct {
	route   *console.RevertRoute
	nav     *navigator
	deletes *deleteConfirmation
}

func (s *session) close() {
	s.route.OnDeactivate()
}

// sync hands st to the view directly. Another goroutine may be delivering
// snapshots, in which case this request's own update would reach the view late.
func (s *session) sync(st *store.State) {
	s.route.OnPropsChanged(st)
}

func (s *session) navigatedAway() bool {
	return s.nav.Location() == jobsLocation
}
