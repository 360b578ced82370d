package console

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/0xPuncker/chronos-console/internal/store"
	"github.com/0xPuncker/chronos-console/pkg/calendar"
	"github.com/0xPuncker/chronos-console/pkg/schedule"
	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/0xPuncker/chronos-console/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const FormLoaderReason = "JobRevertForm"

var (
	ErrNoVersion      = errors.New("no version to submit")
	ErrTabUnavailable = errors.New("tab not available for this version")
)

type SubmitFunc func(ctx context.Context, version *types.Version) error

// RevertForm shows one version of a job read-only and delegates the revert,
// edit and delete actions.
type RevertForm struct {
	jobID    int64
	store    Store
	loader   Loader
	nav      Navigator
	modals   Modals
	onSubmit SubmitFunc
	logger   *logrus.Logger
	local    *time.Location
	now      func() time.Time

	mu            sync.Mutex
	active        bool
	holding       bool
	rev           uint64
	props         FormProps
	pinned        *types.Version
	tab           Tab
	dependsOn     bool
	navigated     bool
	sourcesTicket uint64
	jobsTicket    uint64
	loaded        chan struct{}
	loadedClosed  bool
}

type FormDeps struct {
	Store    Store
	Loader   Loader
	Nav      Navigator
	Modals   Modals
	OnSubmit SubmitFunc
	Logger   *logrus.Logger
	// Local is the zone used when the console shows local times. Defaults to time.Local.
	Local *time.Location
}

func NewRevertForm(jobID int64, deps FormDeps) *RevertForm {
	local := deps.Local
	if local == nil {
		local = time.Local
	}
	return &RevertForm{
		jobID:    jobID,
		store:    deps.Store,
		loader:   deps.Loader,
		nav:      deps.Nav,
		modals:   deps.Modals,
		onSubmit: deps.OnSubmit,
		logger:   deps.Logger,
		local:    local,
		now:      time.Now,
		tab:      TabCode,
		loaded:   make(chan struct{}),
	}
}

func (f *RevertForm) OnActivate(ctx context.Context) {
	f.mu.Lock()
	if f.active {
		f.mu.Unlock()
		return
	}
	f.active = true
	f.holding = true
	f.navigated = false
	if f.loadedClosed {
		f.loaded = make(chan struct{})
		f.loadedClosed = false
	}
	f.mu.Unlock()

	f.loader.Enable(FormLoaderReason)

	sources := f.store.QuerySources(ctx)
	jobs := f.store.QueryJobs(ctx)

	f.mu.Lock()
	f.sourcesTicket, f.jobsTicket = sources, jobs
	f.mu.Unlock()

	f.logger.WithField("job_id", f.jobID).Debug("Revert form activated")
	f.OnPropsChanged(f.store.Snapshot())
}

func (f *RevertForm) OnPropsChanged(st *store.State) {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return
	}

	// snapshots delivered out of order must not roll the form back
	if st.Rev < f.rev {
		f.mu.Unlock()
		return
	}
	f.rev = st.Rev

	next := SelectFormProps(st, f.jobID)
	if f.pinned != nil {
		next.Version = pinnedVersion(f.pinned, next.Versions)
	}
	f.props = next
	f.correctTab()

	release := false
	if f.holding && f.listsLoaded(st, next) {
		f.holding = false
		release = true
	}

	navigate := false
	if !f.navigated && next.LastDeleted != nil && next.LastDeleted.ID == f.jobID {
		f.navigated = true
		navigate = true
	}
	f.mu.Unlock()

	if release {
		if f.loader.Has(FormLoaderReason) {
			f.loader.Disable(FormLoaderReason)
		}
		f.markLoaded()
	}

	if navigate {
		f.logger.WithField("job_id", f.jobID).Info("Job deleted while open, returning to job list")
		f.nav.ToJobs()
	}
}

func (f *RevertForm) OnDeactivate() {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return
	}
	f.active = false
	release := f.holding
	f.holding = false
	f.mu.Unlock()

	if release && f.loader.Has(FormLoaderReason) {
		f.loader.Disable(FormLoaderReason)
	}
}

// Wait blocks until the job list and sources requested on activation have
// completed.
func (f *RevertForm) Wait(ctx context.Context) error {
	f.mu.Lock()
	loaded := f.loaded
	f.mu.Unlock()

	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *RevertForm) markLoaded() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loadedClosed {
		close(f.loaded)
		f.loadedClosed = true
	}
}

// listsLoaded reports whether the job list and sources have arrived, or
// their requests finished without data.
func (f *RevertForm) listsLoaded(st *store.State, props FormProps) bool {
	sources := props.Sources != nil || st.Done(store.SourcesKey, f.sourcesTicket)
	jobs := props.Jobs != nil || st.Done(store.QueryKey, f.jobsTicket)
	return sources && jobs
}

func (f *RevertForm) Tab() Tab {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tab
}

// SelectTab switches the code panel. The result tab exists only for query versions.
func (f *RevertForm) SelectTab(tab Tab) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !tab.Valid() {
		return ErrTabUnavailable
	}
	if tab == TabResultQuery && (f.props.Version == nil || !f.props.Version.IsQuery()) {
		return ErrTabUnavailable
	}
	f.tab = tab
	return nil
}

func (f *RevertForm) DependsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dependsOn
}

func (f *RevertForm) SetDependsOn(dependsOn bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dependsOn = dependsOn
}

// SetVersion pins the version this form shows and submits, independently of
// the selection kept in the store. A nil version unpins it.
func (f *RevertForm) SetVersion(version *types.Version) {
	selected := f.store.Snapshot().VersionSelected[f.jobID]

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pinned = version
	if version == nil {
		f.props.Version = SelectVersion(selected, f.props.Versions)
	} else {
		f.props.Version = pinnedVersion(version, f.props.Versions)
	}
	f.correctTab()
}

// correctTab falls back to the code tab when the shown version has no result query.
func (f *RevertForm) correctTab() {
	if f.props.Version != nil && !f.props.Version.IsQuery() && f.tab != TabCode {
		f.tab = TabCode
	}
}

// pinnedVersion finds pinned in versions by number so a refetched history
// keeps the same selection.
func pinnedVersion(pinned *types.Version, versions []*types.Version) *types.Version {
	for _, v := range versions {
		if v.Version == pinned.Version {
			return v
		}
	}
	return pinned
}

// Version returns the version currently displayed.
func (f *RevertForm) Version() *types.Version {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.props.Version
}

func (f *RevertForm) Submit(ctx context.Context) error {
	version := f.Version()
	if version == nil {
		return ErrNoVersion
	}
	return f.onSubmit(ctx, version)
}

func (f *RevertForm) Edit() {
	f.mu.Lock()
	job := f.props.Job
	f.mu.Unlock()

	if job != nil {
		f.nav.ToJobUpdate(job)
	}
}

func (f *RevertForm) Delete() {
	f.mu.Lock()
	job := f.props.Job
	f.mu.Unlock()

	if job != nil {
		f.modals.ConfirmDeleteJob(job)
	}
}

func (f *RevertForm) Render() *FormView {
	f.mu.Lock()
	props := f.props
	tab := f.tab
	dependsOn := f.dependsOn
	f.mu.Unlock()

	version := props.Version
	if props.Job == nil || version == nil {
		return &FormView{Loading: true}
	}

	view := &FormView{
		JobID:       props.Job.ID,
		Version:     version.Version,
		Name:        version.Name,
		Description: version.Description,
		Enabled:     version.Enabled,
		ShouldRerun: version.ShouldRerun,
		Type:        version.Type,
		StatusEmail: version.StatusEmail,
		Schedule:    f.renderSchedule(props, dependsOn),
	}

	if version.IsQuery() {
		view.Credentials = &Credentials{
			Driver:   version.Driver,
			User:     version.User,
			Password: maskPassword(version.Password),
		}
		view.ResultEmail = version.ResultEmail
	}

	codeLabel := "Script"
	if version.IsQuery() {
		codeLabel = "Query"
	}
	view.Tabs = []TabView{{ID: TabCode, Label: codeLabel, Active: tab == TabCode}}
	if version.IsQuery() {
		view.Tabs = append(view.Tabs, TabView{ID: TabResultQuery, Label: "Result", Active: tab == TabResultQuery})
	}

	value := version.Code
	if tab == TabResultQuery {
		value = version.ResultQuery
	}
	view.Code = &CodePanel{
		ReadOnly: true,
		Mode:     codeMode(version),
		Value:    value,
	}

	for _, v := range props.Versions {
		view.Versions = append(view.Versions, VersionSummary{
			Version:   v.Version,
			CreatedAt: v.CreatedAt,
			Selected:  v == version,
		})
	}

	return view
}

func (f *RevertForm) renderSchedule(props FormProps, dependsOn bool) *ScheduleView {
	loc, where := time.UTC, "UTC"
	if props.UseLocalTime {
		loc, where = f.local, "locally"
	}

	if dependsOn {
		view := &ScheduleView{DependsOn: true}
		root := FindRoot(props.Job.ID, f.lookup(props))
		if root == nil {
			return view
		}
		view.ParentName = root.Name
		if phrase := f.describe(root.CronString, loc); phrase != "" {
			view.Phrase = "This job will run soon after " + phrase + " " + where + "."
		}
		return view
	}

	view := &ScheduleView{CronString: props.Version.CronString}
	if phrase := f.describe(props.Version.CronString, loc); phrase != "" {
		view.Phrase = "This job will run " + phrase + " " + where + "."
	}
	now := f.now()
	if next, err := schedule.Next(props.Version.CronString, now); err == nil {
		next = next.In(loc)
		view.NextRun = &next
		view.NextRunIn = utils.FormatDuration(next.Sub(now))
		if link, err := calendar.NextRunURL(props.Version.Name, view.Phrase, next); err == nil {
			view.CalendarURL = link
		}
	}
	return view
}

// lookup is the job list indexed by id, plus the job being shown in case the
// list has not loaded yet.
func (f *RevertForm) lookup(props FormProps) map[int64]*types.Job {
	jobs := make(map[int64]*types.Job, len(props.JobsByID)+1)
	for id, job := range props.JobsByID {
		jobs[id] = job
	}
	if _, ok := jobs[props.Job.ID]; !ok {
		jobs[props.Job.ID] = props.Job
	}
	return jobs
}

func (f *RevertForm) describe(expr string, loc *time.Location) string {
	phrase, err := schedule.DescribeAt(expr, loc, f.now())
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"job_id": f.jobID,
			"cron":   expr,
			"error":  err.Error(),
		}).Debug("Cannot describe cron expression")
		return ""
	}
	return lowerFirstWord(phrase)
}

func lowerFirstWord(s string) string {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		i = len(s)
	}
	return cases.Lower(language.English).String(s[:i]) + s[i:]
}
