package console

import (
	"context"

	"github.com/0xPuncker/chronos-console/internal/store"
	"github.com/0xPuncker/chronos-console/pkg/types"
)

// Component is a view bound to the application store. OnActivate issues the
// view's fetches, OnPropsChanged is called with every new snapshot while the
// view is active, and OnDeactivate releases everything the view holds. Calls
// made after OnDeactivate are no-ops.
type Component interface {
	OnActivate(ctx context.Context)
	OnPropsChanged(st *store.State)
	OnDeactivate()
}

type Store interface {
	Snapshot() *store.State
	Subscribe(fn func(*store.State)) func()
	GetJob(ctx context.Context, id int64) uint64
	GetJobVersions(ctx context.Context, id int64) uint64
	QueryJobs(ctx context.Context) uint64
	QuerySources(ctx context.Context) uint64
	UpdateJob(ctx context.Context, id int64, version *types.Version) (*types.Job, error)
}

type Loader interface {
	Enable(reason string)
	Disable(reason string)
	Has(reason string) bool
}

type Navigator interface {
	ToJobs()
	ToJobUpdate(job *types.Job)
}

type Modals interface {
	ConfirmDeleteJob(job *types.Job)
}
