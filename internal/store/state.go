package store

import (
	"fmt"

	"github.com/0xPuncker/chronos-console/pkg/types"
)

const (
	QueryKey   = "jobs"
	SourcesKey = "sources"
)

func JobKey(id int64) string {
	return fmt.Sprintf("job:%d", id)
}

func VersionsKey(id int64) string {
	return fmt.Sprintf("versions:%d", id)
}

// State is an immutable snapshot of everything the console knows. Subscribers
// receive snapshots and must not modify them.
type State struct {
	Rev uint64

	// Jobs holds single-job fetch results, Query and ByID the job list.
	Jobs  map[int64]*types.Job
	Query []*types.Job
	ByID  map[int64]*types.Job

	Versions        map[int64][]*types.Version
	VersionSelected map[int64]*types.Version
	Deleted         []*types.Job
	Sources         []types.Source
	UseLocalTime    bool

	// Completed records, per request key, the highest ticket that finished.
	Completed map[string]uint64
	Errors    map[string]error
}

func newState() *State {
	return &State{
		Jobs:            make(map[int64]*types.Job),
		ByID:            make(map[int64]*types.Job),
		Versions:        make(map[int64][]*types.Version),
		VersionSelected: make(map[int64]*types.Version),
		Completed:       make(map[string]uint64),
		Errors:          make(map[string]error),
	}
}

// Done reports whether the request identified by ticket, or a later one for
// the same key, has finished.
func (s *State) Done(key string, ticket uint64) bool {
	return ticket != 0 && s.Completed[key] >= ticket
}

func (s *State) Err(key string) error {
	return s.Errors[key]
}

// LastDeleted returns the most recently deleted job, or nil.
func (s *State) LastDeleted() *types.Job {
	if len(s.Deleted) == 0 {
		return nil
	}
	return s.Deleted[len(s.Deleted)-1]
}

func (s *State) clone() *State {
	next := *s
	next.Jobs = cloneMap(s.Jobs)
	next.ByID = cloneMap(s.ByID)
	next.Versions = cloneMap(s.Versions)
	next.VersionSelected = cloneMap(s.VersionSelected)
	next.Completed = cloneMap(s.Completed)
	next.Errors = cloneMap(s.Errors)
	return &next
}

func (s *State) setQuery(jobs []*types.Job) {
	s.Query = make([]*types.Job, len(jobs))
	copy(s.Query, jobs)
	s.ByID = make(map[int64]*types.Job, len(jobs))
	for _, job := range jobs {
		s.ByID[job.ID] = job
	}
}

func (s *State) removeJob(id int64) *types.Job {
	removed := s.Jobs[id]
	if removed == nil {
		removed = s.ByID[id]
	}

	delete(s.Jobs, id)
	delete(s.ByID, id)
	delete(s.Versions, id)
	delete(s.VersionSelected, id)

	if s.Query != nil {
		query := make([]*types.Job, 0, len(s.Query))
		for _, job := range s.Query {
			if job.ID != id {
				query = append(query, job)
			}
		}
		s.Query = query
	}
	return removed
}

func (s *State) appendDeleted(job *types.Job) {
	deleted := make([]*types.Job, len(s.Deleted), len(s.Deleted)+1)
	copy(deleted, s.Deleted)
	s.Deleted = append(deleted, job)
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
