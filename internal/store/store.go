package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/sirupsen/logrus"
)

// Backend is the scheduler agent the store reads from and writes to.
type Backend interface {
	GetJob(ctx context.Context, id int64) (*types.Job, error)
	GetJobVersions(ctx context.Context, id int64) ([]*types.Version, error)
	UpdateJob(ctx context.Context, id int64, version *types.Version) (*types.Job, error)
	DeleteJob(ctx context.Context, id int64) error
	QueryJobs(ctx context.Context) ([]*types.Job, error)
	QuerySources(ctx context.Context) ([]types.Source, error)
}

type subscriber struct {
	id int
	fn func(*State)
}

// Store is the single serialized application state container. Updates build
// a new snapshot and subscribers are notified one snapshot at a time, in
// revision order. A subscriber may call back into the store; the resulting
// snapshot is queued behind the one being delivered.
type Store struct {
	backend Backend
	logger  *logrus.Logger

	mu      sync.Mutex
	state   *State
	tickets uint64

	qmu        sync.Mutex
	queue      []*State
	delivering bool
	subs       []subscriber
	nextSub    int

	wg sync.WaitGroup
}

func New(backend Backend, logger *logrus.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		state:   newState(),
	}
}

func (s *Store) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every future snapshot and returns a function
// that removes it. A snapshot already being delivered may still reach fn
// after unsubscribing.
func (s *Store) Subscribe(fn func(*State)) func() {
	s.qmu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.qmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.qmu.Lock()
			defer s.qmu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Wait blocks until every request issued so far has completed.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Await blocks until the request identified by key and ticket has completed
// and returns a snapshot that records it.
func (s *Store) Await(ctx context.Context, key string, ticket uint64) (*State, error) {
	done := make(chan *State, 1)
	unsubscribe := s.Subscribe(func(st *State) {
		if st.Done(key, ticket) {
			select {
			case done <- st:
			default:
			}
		}
	})
	defer unsubscribe()

	if st := s.Snapshot(); st.Done(key, ticket) {
		return st, nil
	}

	select {
	case st := <-done:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) GetJob(ctx context.Context, id int64) uint64 {
	return s.request(ctx, JobKey(id), func(ctx context.Context) (func(*State), error) {
		job, err := s.backend.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		return func(st *State) {
			st.Jobs[id] = job
		}, nil
	})
}

func (s *Store) GetJobVersions(ctx context.Context, id int64) uint64 {
	return s.request(ctx, VersionsKey(id), func(ctx context.Context) (func(*State), error) {
		versions, err := s.backend.GetJobVersions(ctx, id)
		if err != nil {
			return nil, err
		}
		if versions == nil {
			versions = []*types.Version{}
		}
		return func(st *State) {
			st.Versions[id] = versions
		}, nil
	})
}

func (s *Store) QueryJobs(ctx context.Context) uint64 {
	return s.request(ctx, QueryKey, func(ctx context.Context) (func(*State), error) {
		jobs, err := s.backend.QueryJobs(ctx)
		if err != nil {
			return nil, err
		}
		return func(st *State) {
			st.setQuery(jobs)
		}, nil
	})
}

func (s *Store) QuerySources(ctx context.Context) uint64 {
	return s.request(ctx, SourcesKey, func(ctx context.Context) (func(*State), error) {
		sources, err := s.backend.QuerySources(ctx)
		if err != nil {
			return nil, err
		}
		if sources == nil {
			sources = []types.Source{}
		}
		return func(st *State) {
			st.Sources = sources
		}, nil
	})
}

// UpdateJob restores version as the current configuration of job id and
// refreshes the job's version history.
func (s *Store) UpdateJob(ctx context.Context, id int64, version *types.Version) (*types.Job, error) {
	if version == nil {
		return nil, fmt.Errorf("version cannot be nil")
	}

	job, err := s.backend.UpdateJob(ctx, id, version)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"job_id":  id,
			"version": version.Version,
			"error":   err.Error(),
		}).Error("Failed to update job")
		return nil, fmt.Errorf("failed to update job %d: %w", id, err)
	}

	s.update(func(st *State) {
		st.Jobs[id] = job
		if _, ok := st.ByID[id]; ok {
			st.setQuery(replaceJob(st.Query, job))
		}
		delete(st.VersionSelected, id)
	})

	s.logger.WithFields(logrus.Fields{
		"job_id":  id,
		"version": version.Version,
	}).Info("Job updated")

	s.GetJobVersions(ctx, id)
	return job, nil
}

func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	if err := s.backend.DeleteJob(ctx, id); err != nil {
		s.logger.WithFields(logrus.Fields{
			"job_id": id,
			"error":  err.Error(),
		}).Error("Failed to delete job")
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}

	s.MarkDeleted(id)
	s.logger.WithField("job_id", id).Info("Job deleted")
	return nil
}

// MarkDeleted records that job id no longer exists on the agent.
func (s *Store) MarkDeleted(id int64) {
	s.update(func(st *State) {
		job := st.removeJob(id)
		if job == nil {
			job = &types.Job{ID: id}
		}
		st.appendDeleted(job)
	})
}

// SelectVersion makes version the one shown for job id; nil falls back to the latest.
func (s *Store) SelectVersion(id int64, version *types.Version) {
	s.update(func(st *State) {
		if version == nil {
			delete(st.VersionSelected, id)
			return
		}
		st.VersionSelected[id] = version
	})
}

func (s *Store) SetUseLocalTime(local bool) {
	s.update(func(st *State) {
		st.UseLocalTime = local
	})
}

func (s *Store) request(ctx context.Context, key string, fetch func(context.Context) (func(*State), error)) uint64 {
	ticket := atomic.AddUint64(&s.tickets, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		apply, err := fetch(ctx)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"request": key,
				"error":   err.Error(),
			}).Error("Request failed")
		}

		s.update(func(st *State) {
			if st.Completed[key] > ticket {
				// a newer request for the same key already landed
				return
			}
			st.Completed[key] = ticket
			if err != nil {
				st.Errors[key] = err
				return
			}
			delete(st.Errors, key)
			apply(st)
		})
	}()

	return ticket
}

func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	next := s.state.clone()
	fn(next)
	next.Rev = s.state.Rev + 1
	s.state = next

	s.qmu.Lock()
	s.queue = append(s.queue, next)
	s.qmu.Unlock()
	s.mu.Unlock()

	s.deliver()
}

func (s *Store) deliver() {
	s.qmu.Lock()
	if s.delivering {
		s.qmu.Unlock()
		return
	}
	s.delivering = true

	for len(s.queue) > 0 {
		snap := s.queue[0]
		s.queue = s.queue[1:]
		subs := make([]subscriber, len(s.subs))
		copy(subs, s.subs)
		s.qmu.Unlock()

		for _, sub := range subs {
			sub.fn(snap)
		}

		s.qmu.Lock()
	}

	s.delivering = false
	s.qmu.Unlock()
}

func replaceJob(jobs []*types.Job, job *types.Job) []*types.Job {
	out := make([]*types.Job, len(jobs))
	for i, j := range jobs {
		if j.ID == job.ID {
			out[i] = job
			continue
		}
		out[i] = j
	}
	return out
}
