package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/0xPuncker/chronos-console/internal/chronos"
	"github.com/0xPuncker/chronos-console/pkg/types"
)

// ErrNotFound is what the real agent client reports for unknown jobs.
var ErrNotFound = chronos.ErrNotFound

// Backend is an in-memory scheduler agent. Individual calls can be held open
// or made to fail to drive components through their loading states.
type Backend struct {
	mu       sync.Mutex
	jobs     map[int64]*types.Job
	versions map[int64][]*types.Version
	sources  []types.Source
	gates    map[string]chan struct{}
	errs     map[string]error
	calls    []string
	restores []int64
}

func NewBackend() *Backend {
	return &Backend{
		jobs:     make(map[int64]*types.Job),
		versions: make(map[int64][]*types.Version),
		gates:    make(map[string]chan struct{}),
		errs:     make(map[string]error),
	}
}

// CallKey names a backend call, e.g. "GetJob:7". List calls use the bare
// method name: "QueryJobs", "QuerySources".
func CallKey(method string, id int64) string {
	return fmt.Sprintf("%s:%d", method, id)
}

func (b *Backend) AddJob(job *types.Job, versions ...*types.Version) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[job.ID] = job
	b.versions[job.ID] = versions
}

func (b *Backend) RemoveJob(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.jobs, id)
	delete(b.versions, id)
}

func (b *Backend) SetSources(sources ...types.Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = sources
}

// Hold blocks calls matching key until the returned release func is called.
func (b *Backend) Hold(key string) func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gates[key] = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// HoldFor releases calls matching key after d.
func (b *Backend) HoldFor(key string, d time.Duration) {
	release := b.Hold(key)
	time.AfterFunc(d, release)
}

func (b *Backend) Fail(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[key] = err
}

func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// Restores lists the version numbers passed to UpdateJob, in call order.
func (b *Backend) Restores() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int64, len(b.restores))
	copy(out, b.restores)
	return out
}

func (b *Backend) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	if err := b.enter(ctx, CallKey("GetJob", id)); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	copied := *job
	return &copied, nil
}

func (b *Backend) GetJobVersions(ctx context.Context, id int64) ([]*types.Version, error) {
	if err := b.enter(ctx, CallKey("GetJobVersions", id)); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.jobs[id]; !ok {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	out := make([]*types.Version, len(b.versions[id]))
	copy(out, b.versions[id])
	return out, nil
}

// UpdateJob restores version and appends it to the history as a new version.
func (b *Backend) UpdateJob(ctx context.Context, id int64, version *types.Version) (*types.Job, error) {
	if err := b.enter(ctx, CallKey("UpdateJob", id)); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.jobs[id]; !ok {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	b.restores = append(b.restores, version.Version)

	updated := &types.Job{
		ID:          id,
		Name:        version.Name,
		Parent:      version.Parent,
		CronString:  version.CronString,
		Type:        version.Type,
		Enabled:     version.Enabled,
		Description: version.Description,
	}
	b.jobs[id] = updated

	restored := *version
	restored.JobID = id
	restored.Version = int64(len(b.versions[id]) + 1)
	restored.CreatedAt = time.Now().UTC()
	b.versions[id] = append(b.versions[id], &restored)

	copied := *updated
	return &copied, nil
}

func (b *Backend) DeleteJob(ctx context.Context, id int64) error {
	if err := b.enter(ctx, CallKey("DeleteJob", id)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.jobs[id]; !ok {
		return fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	delete(b.jobs, id)
	delete(b.versions, id)
	return nil
}

func (b *Backend) QueryJobs(ctx context.Context) ([]*types.Job, error) {
	if err := b.enter(ctx, "QueryJobs"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	jobs := make([]*types.Job, 0, len(b.jobs))
	for _, job := range b.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

func (b *Backend) QuerySources(ctx context.Context) ([]types.Source, error) {
	if err := b.enter(ctx, "QuerySources"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Source, len(b.sources))
	copy(out, b.sources)
	return out, nil
}

func (b *Backend) enter(ctx context.Context, key string) error {
	b.mu.Lock()
	b.calls = append(b.calls, key)
	gate := b.gates[key]
	err := b.errs[key]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
