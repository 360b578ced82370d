package console

import (
	"context"
	"sync"

	"github.com/0xPuncker/chronos-console/internal/store"
	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/sirupsen/logrus"
)

const (
	JobLoaderReason      = "revert-job"
	VersionsLoaderReason = "revert-versions"
)

// RevertRoute fetches a job and its version history and hosts the revert
// form for it. Its loader reasons are released together once both fetches
// issued by the current activation have completed.
type RevertRoute struct {
	store  Store
	loader Loader
	deps   FormDeps
	logger *logrus.Logger

	mu             sync.Mutex
	active         bool
	ctx            context.Context
	jobID          int64
	jobTicket      uint64
	versionsTicket uint64
	rev            uint64
	held           []string
	props          RouteProps
	form           *RevertForm
	unsubscribe    func()
	ready          chan struct{}
	readyClosed    bool
}

// NewRevertRoute builds a route for job id. The form's submit action is
// wired to the route's HandleSubmit unless deps already provide one.
func NewRevertRoute(id int64, deps FormDeps) *RevertRoute {
	r := &RevertRoute{
		store:  deps.Store,
		loader: deps.Loader,
		logger: deps.Logger,
		jobID:  id,
		ready:  make(chan struct{}),
	}
	if deps.OnSubmit == nil {
		deps.OnSubmit = func(ctx context.Context, version *types.Version) error {
			_, err := r.HandleSubmit(ctx, version)
			return err
		}
	}
	r.deps = deps
	r.form = NewRevertForm(id, deps)
	return r
}

func (r *RevertRoute) OnActivate(ctx context.Context) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return
	}
	r.active = true
	r.ctx = ctx
	r.jobTicket, r.versionsTicket = 0, 0
	r.held = []string{JobLoaderReason, VersionsLoaderReason}
	if r.readyClosed {
		r.ready = make(chan struct{})
		r.readyClosed = false
	}
	id := r.jobID
	form := r.form
	r.mu.Unlock()

	r.loader.Enable(JobLoaderReason)
	r.loader.Enable(VersionsLoaderReason)

	form.OnActivate(ctx)

	unsubscribe := r.store.Subscribe(r.OnPropsChanged)
	jobTicket := r.store.GetJob(ctx, id)
	versionsTicket := r.store.GetJobVersions(ctx, id)

	r.mu.Lock()
	if !r.active || r.jobID != id {
		// deactivated while the fetches were being issued
		r.mu.Unlock()
		unsubscribe()
		return
	}
	r.unsubscribe = unsubscribe
	r.jobTicket, r.versionsTicket = jobTicket, versionsTicket
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"job_id":          id,
		"job_ticket":      jobTicket,
		"versions_ticket": versionsTicket,
	}).Debug("Revert route activated")

	r.OnPropsChanged(r.store.Snapshot())
}

func (r *RevertRoute) OnPropsChanged(st *store.State) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}

	if st.Rev < r.rev {
		r.mu.Unlock()
		return
	}
	r.rev = st.Rev

	props := SelectRouteProps(st, r.jobID, r.jobTicket, r.versionsTicket)
	r.props = props

	var release []string
	done := props.JobDone && props.VersionsDone
	if done {
		release = r.held
		r.held = nil
	}
	form := r.form
	r.mu.Unlock()

	r.releaseReasons(release)
	form.OnPropsChanged(st)

	if done {
		r.markReady()
	}
}

func (r *RevertRoute) OnDeactivate() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	release := r.held
	r.held = nil
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	form := r.form
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	r.releaseReasons(release)
	form.OnDeactivate()

	r.logger.WithField("job_id", r.JobID()).Debug("Revert route deactivated")
}

// SetJobID points the route at another job. An active route is deactivated
// and activated again so fetches are issued for the new id and results of
// the old activation are not reused.
func (r *RevertRoute) SetJobID(id int64) {
	r.mu.Lock()
	if id == r.jobID {
		r.mu.Unlock()
		return
	}
	wasActive := r.active
	ctx := r.ctx
	r.mu.Unlock()

	if wasActive {
		r.OnDeactivate()
	}

	r.mu.Lock()
	r.jobID = id
	r.props = RouteProps{}
	r.form = NewRevertForm(id, r.deps)
	r.mu.Unlock()

	if wasActive {
		r.OnActivate(ctx)
	}
}

// Wait blocks until both fetches of the current activation have completed.
func (r *RevertRoute) Wait(ctx context.Context) error {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RevertRoute) HandleSubmit(ctx context.Context, version *types.Version) (*types.Job, error) {
	return r.store.UpdateJob(ctx, r.JobID(), version)
}

func (r *RevertRoute) JobID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobID
}

func (r *RevertRoute) Form() *RevertForm {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.form
}

func (r *RevertRoute) Props() RouteProps {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.props
}

func (r *RevertRoute) Title() string {
	job := r.Props().Job
	if job == nil {
		return "Loading..."
	}
	return "Job: " + job.Name
}

func (r *RevertRoute) Render() *RouteView {
	view := &RouteView{
		Title: r.Title(),
		Form:  r.Form().Render(),
	}
	if err := r.Props().Err; err != nil {
		view.Error = err.Error()
	}
	return view
}

func (r *RevertRoute) markReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active && !r.readyClosed {
		close(r.ready)
		r.readyClosed = true
	}
}

func (r *RevertRoute) releaseReasons(reasons []string) {
	for _, reason := range reasons {
		if r.loader.Has(reason) {
			r.loader.Disable(reason)
		}
	}
}
