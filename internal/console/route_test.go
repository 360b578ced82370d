package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/0xPuncker/chronos-console/internal/loader"
	"github.com/0xPuncker/chronos-console/internal/store"
	"github.com/0xPuncker/chronos-console/internal/testutil"
	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNav struct {
	mu      sync.Mutex
	toJobs  int
	updates []*types.Job
}

func (n *recordingNav) ToJobs() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toJobs++
}

func (n *recordingNav) ToJobUpdate(job *types.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, job)
}

func (n *recordingNav) jobsCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.toJobs
}

type recordingModals struct {
	deletes []*types.Job
}

func (m *recordingModals) ConfirmDeleteJob(job *types.Job) {
	m.deletes = append(m.deletes, job)
}

type harness struct {
	backend *testutil.Backend
	store   *store.Store
	loader  *loader.Loader
	nav     *recordingNav
	modals  *recordingModals
	deps    FormDeps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: testutil.NewBackend(),
		nav:     &recordingNav{},
		modals:  &recordingModals{},
	}
	logger := testutil.NewLogger()
	h.store = store.New(h.backend, logger)
	h.loader = loader.New(logger)
	h.deps = FormDeps{
		Store:  h.store,
		Loader: h.loader,
		Nav:    h.nav,
		Modals: h.modals,
		Logger: logger,
		Local:  time.FixedZone("UTC+2", 2*60*60),
	}
	t.Cleanup(h.store.Wait)
	return h
}

func (h *harness) activate(t *testing.T, id int64) *RevertRoute {
	t.Helper()
	route := NewRevertRoute(id, h.deps)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	route.OnActivate(ctx)
	t.Cleanup(route.OnDeactivate)
	return route
}

func (h *harness) settle(t *testing.T, route *RevertRoute) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, route.Wait(ctx))
	h.store.Wait()
}

func TestRouteReleasesReasonsOnlyAfterBothFetches(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "nightly report", nil), testutil.NewQueryVersion(7, 1))
	releaseJob := h.backend.Hold(testutil.CallKey("GetJob", 7))
	releaseVersions := h.backend.Hold(testutil.CallKey("GetJobVersions", 7))

	route := h.activate(t, 7)
	assert.True(t, h.loader.Has(JobLoaderReason))
	assert.True(t, h.loader.Has(VersionsLoaderReason))
	assert.Equal(t, "Loading...", route.Title())

	releaseJob()
	assert.Eventually(t, func() bool {
		return route.Props().Job != nil
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "Job: nightly report", route.Title())
	assert.True(t, h.loader.Has(JobLoaderReason))
	assert.True(t, h.loader.Has(VersionsLoaderReason))

	releaseVersions()
	h.settle(t, route)

	assert.False(t, h.loader.Has(JobLoaderReason))
	assert.False(t, h.loader.Has(VersionsLoaderReason))
	assert.False(t, h.loader.IsActive())
}

func TestRouteIndicatorHidesAfterSlowestFetch(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "nightly report", nil), testutil.NewQueryVersion(7, 1))

	hidden := make(chan time.Time, 1)
	h.loader.OnChange(func(active bool) {
		if !active {
			hidden <- time.Now()
		}
	})

	start := time.Now()
	h.backend.HoldFor(testutil.CallKey("GetJob", 7), 10*time.Millisecond)
	h.backend.HoldFor(testutil.CallKey("GetJobVersions", 7), 20*time.Millisecond)
	route := h.activate(t, 7)
	h.settle(t, route)

	select {
	case at := <-hidden:
		assert.GreaterOrEqual(t, at.Sub(start), 20*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("loader indicator never hid")
	}
}

func TestRouteFetchErrorReleasesReasons(t *testing.T) {
	h := newHarness(t)
	h.backend.Fail(testutil.CallKey("GetJob", 7), errors.New("agent unavailable"))
	h.backend.Fail(testutil.CallKey("GetJobVersions", 7), errors.New("agent unavailable"))

	route := h.activate(t, 7)
	h.settle(t, route)

	view := route.Render()
	assert.Equal(t, "agent unavailable", view.Error)
	assert.True(t, view.Form.Loading)
	assert.False(t, h.loader.IsActive())
}

func TestRouteDeactivateReleasesOnlyItsReasons(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "nightly report", nil), testutil.NewQueryVersion(7, 1))
	release := h.backend.Hold(testutil.CallKey("GetJob", 7))
	h.loader.Enable("other-view")

	route := NewRevertRoute(7, h.deps)
	route.OnActivate(context.Background())
	route.OnDeactivate()
	route.OnDeactivate()

	assert.Equal(t, []string{"other-view"}, h.loader.Reasons())

	release()
	h.store.Wait()

	assert.Equal(t, []string{"other-view"}, h.loader.Reasons())
	assert.Nil(t, route.Props().Job)
}

func TestRouteSetJobIDRefetches(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "seven", nil), testutil.NewScriptVersion(7, 1))
	h.backend.AddJob(testutil.NewJob(8, "eight", nil), testutil.NewScriptVersion(8, 1))

	// job 8 is already in the store from an earlier visit
	h.store.GetJob(context.Background(), 8)
	h.store.GetJobVersions(context.Background(), 8)
	h.store.Wait()

	route := h.activate(t, 7)
	h.settle(t, route)
	assert.Equal(t, "Job: seven", route.Title())

	release := h.backend.Hold(testutil.CallKey("GetJob", 8))
	route.SetJobID(8)

	assert.Equal(t, int64(8), route.JobID())
	assert.False(t, route.Props().JobDone)
	assert.True(t, h.loader.Has(JobLoaderReason))

	release()
	h.settle(t, route)

	assert.Equal(t, "Job: eight", route.Title())
	assert.False(t, h.loader.IsActive())
	assert.Contains(t, h.backend.Calls(), testutil.CallKey("GetJob", 8))
}

func TestRouteIgnoresStaleSnapshots(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "nightly report", nil), testutil.NewQueryVersion(7, 1), testutil.NewQueryVersion(7, 2))
	stale := h.store.Snapshot()

	route := h.activate(t, 7)
	h.settle(t, route)
	require.Greater(t, h.store.Snapshot().Rev, stale.Rev)

	route.OnPropsChanged(stale)

	assert.Equal(t, "Job: nightly report", route.Title())
	assert.True(t, route.Props().JobDone)
	assert.True(t, route.Props().VersionsDone)
	view := route.Render()
	assert.False(t, view.Form.Loading)
	assert.Equal(t, int64(2), view.Form.Version)
	assert.False(t, h.loader.IsActive())
}

func TestFormIgnoresStaleSnapshots(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "nightly report", nil), testutil.NewQueryVersion(7, 1), testutil.NewQueryVersion(7, 2))

	route := h.activate(t, 7)
	h.settle(t, route)
	form := route.Form()
	older := h.store.Snapshot()

	h.store.SelectVersion(7, older.Versions[7][0])
	assert.Equal(t, int64(1), form.Version().Version)

	form.OnPropsChanged(older)
	assert.Equal(t, int64(1), form.Version().Version)
	assert.Equal(t, int64(1), form.Render().Version)
}

func TestFormPinnedVersion(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "nightly report", nil),
		testutil.NewQueryVersion(7, 1),
		testutil.NewQueryVersion(7, 2),
		testutil.NewQueryVersion(7, 3),
	)

	route := h.activate(t, 7)
	h.settle(t, route)
	form := route.Form()
	versions := h.store.Snapshot().Versions[7]

	form.SetVersion(versions[0])
	h.store.SelectVersion(7, versions[1])
	assert.Equal(t, int64(1), form.Version().Version)

	form.SetVersion(nil)
	assert.Equal(t, int64(2), form.Version().Version)

	form.SetVersion(versions[0])
	require.NoError(t, form.Submit(context.Background()))
	h.store.Wait()

	assert.Equal(t, []int64{1}, h.backend.Restores())
	assert.Len(t, h.store.Snapshot().Versions[7], 4)

	// the refetched history still shows the pinned version
	assert.Eventually(t, func() bool {
		return len(form.Render().Versions) == 4
	}, time.Second, 5*time.Millisecond)
	view := form.Render()
	assert.Equal(t, int64(1), view.Version)
	assert.True(t, view.Versions[0].Selected)
}

func TestFormTabFallsBackToCode(t *testing.T) {
	h := newHarness(t)
	query := testutil.NewQueryVersion(7, 1)
	script := testutil.NewScriptVersion(7, 2)
	h.backend.AddJob(testutil.NewJob(7, "mixed", nil), query, script)

	route := h.activate(t, 7)
	h.settle(t, route)
	form := route.Form()

	assert.ErrorIs(t, form.SelectTab(TabResultQuery), ErrTabUnavailable)

	versions := h.store.Snapshot().Versions[7]
	h.store.SelectVersion(7, versions[0])
	require.NoError(t, form.SelectTab(TabResultQuery))
	assert.Equal(t, TabResultQuery, form.Tab())
	assert.Equal(t, query.ResultQuery, form.Render().Code.Value)

	h.store.SelectVersion(7, nil)
	assert.Equal(t, TabCode, form.Tab())

	view := form.Render()
	assert.Equal(t, script.Code, view.Code.Value)
	assert.Equal(t, "shell", view.Code.Mode)
	assert.Len(t, view.Tabs, 1)

	// the correction is idempotent across further updates
	h.store.SetUseLocalTime(true)
	assert.Equal(t, TabCode, form.Tab())
}

func TestFormReleasesItsLoaderReason(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "nightly report", nil), testutil.NewQueryVersion(7, 1))
	release := h.backend.Hold("QuerySources")

	route := h.activate(t, 7)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, route.Wait(ctx))
	assert.Equal(t, []string{FormLoaderReason}, h.loader.Reasons())

	release()
	require.NoError(t, route.Form().Wait(ctx))
	assert.False(t, h.loader.IsActive())
}

func TestFormNavigatesAwayOnceWhenJobDeleted(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(42, "doomed", nil), testutil.NewScriptVersion(42, 1))
	h.backend.AddJob(testutil.NewJob(43, "survivor", nil), testutil.NewScriptVersion(43, 1))

	route := h.activate(t, 42)
	h.settle(t, route)

	require.NoError(t, h.store.DeleteJob(context.Background(), 42))
	h.store.SetUseLocalTime(true)
	h.store.QueryJobs(context.Background())
	h.store.Wait()

	assert.Equal(t, 1, h.nav.jobsCount())
	assert.True(t, route.Render().Form.Loading)
}

func TestFormIgnoresOtherDeletions(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(42, "kept", nil), testutil.NewScriptVersion(42, 1))
	h.backend.AddJob(testutil.NewJob(43, "removed", nil))

	route := h.activate(t, 42)
	h.settle(t, route)

	require.NoError(t, h.store.DeleteJob(context.Background(), 43))
	assert.Equal(t, 0, h.nav.jobsCount())
}

func TestFormRendersQueryVersion(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "nightly report", nil), testutil.NewQueryVersion(7, 1), testutil.NewQueryVersion(7, 2))

	route := h.activate(t, 7)
	h.settle(t, route)
	route.Form().now = func() time.Time {
		return time.Date(2024, time.March, 1, 2, 30, 0, 0, time.UTC)
	}

	view := route.Render()
	require.False(t, view.Form.Loading)
	form := view.Form

	assert.Equal(t, int64(2), form.Version)
	assert.Equal(t, "nightly report", form.Name)
	assert.Equal(t, types.JobTypeQuery, form.Type)
	require.NotNil(t, form.Credentials)
	assert.Equal(t, "MySQL", form.Credentials.Driver)
	assert.Equal(t, "reporter", form.Credentials.User)
	assert.Equal(t, "******", form.Credentials.Password)
	assert.Equal(t, []string{"team@example.com"}, form.ResultEmail)
	assert.Equal(t, []TabView{
		{ID: TabCode, Label: "Query", Active: true},
		{ID: TabResultQuery, Label: "Result", Active: false},
	}, form.Tabs)
	assert.Equal(t, &CodePanel{ReadOnly: true, Mode: "sql", Value: "SELECT count(*) FROM events"}, form.Code)
	assert.Equal(t, "0 3 * * *", form.Schedule.CronString)
	assert.Equal(t, "This job will run at 03:00 UTC.", form.Schedule.Phrase)
	require.NotNil(t, form.Schedule.NextRun)
	assert.True(t, form.Schedule.NextRun.Equal(time.Date(2024, time.March, 1, 3, 0, 0, 0, time.UTC)))
	assert.Equal(t, "30 minutes", form.Schedule.NextRunIn)
	assert.Contains(t, form.Schedule.CalendarURL, "dates=20240301T030000Z%2F20240301T031500Z")
	require.Len(t, form.Versions, 2)
	assert.False(t, form.Versions[0].Selected)
	assert.True(t, form.Versions[1].Selected)

	h.store.SetUseLocalTime(true)
	assert.Equal(t, "This job will run at 05:00 locally.", route.Render().Form.Schedule.Phrase)
}

func TestFormRendersScriptWithoutQueryFields(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "cleanup", nil), testutil.NewScriptVersion(7, 1))

	route := h.activate(t, 7)
	h.settle(t, route)

	form := route.Render().Form
	assert.Nil(t, form.Credentials)
	assert.Nil(t, form.ResultEmail)
	assert.Equal(t, []string{"ops@example.com"}, form.StatusEmail)
	assert.Equal(t, "This job will run at 30 minutes past the hour UTC.", form.Schedule.Phrase)
}

func TestFormDependsOnShowsRootSchedule(t *testing.T) {
	h := newHarness(t)
	root := testutil.NewJob(1, "A", nil)
	root.CronString = "0 9 * * 1-5"
	h.backend.AddJob(root)
	h.backend.AddJob(testutil.NewJob(2, "B", testutil.Int64(1)))
	h.backend.AddJob(testutil.NewJob(3, "C", testutil.Int64(2)), testutil.NewScriptVersion(3, 1))

	route := h.activate(t, 3)
	h.settle(t, route)
	form := route.Form()

	form.SetDependsOn(true)
	assert.True(t, form.DependsOn())

	schedule := form.Render().Schedule
	assert.True(t, schedule.DependsOn)
	assert.Equal(t, "A", schedule.ParentName)
	assert.Equal(t, "This job will run soon after at 09:00, Monday through Friday UTC.", schedule.Phrase)
	assert.Empty(t, schedule.CronString)

	form.SetDependsOn(false)
	schedule = form.Render().Schedule
	assert.False(t, schedule.DependsOn)
	assert.Equal(t, "30 * * * *", schedule.CronString)
}

func TestFormActionsDelegate(t *testing.T) {
	h := newHarness(t)
	h.backend.AddJob(testutil.NewJob(7, "nightly report", nil), testutil.NewQueryVersion(7, 1), testutil.NewQueryVersion(7, 2))

	route := h.activate(t, 7)
	h.settle(t, route)
	form := route.Form()

	form.Edit()
	require.Len(t, h.nav.updates, 1)
	assert.Equal(t, int64(7), h.nav.updates[0].ID)

	form.Delete()
	require.Len(t, h.modals.deletes, 1)
	assert.Equal(t, int64(7), h.modals.deletes[0].ID)

	h.store.SelectVersion(7, h.store.Snapshot().Versions[7][0])
	require.NoError(t, form.Submit(context.Background()))
	h.store.Wait()

	assert.Len(t, h.store.Snapshot().Versions[7], 3)
	assert.Contains(t, h.backend.Calls(), testutil.CallKey("UpdateJob", 7))
}

func TestFormWithoutDataRendersLoading(t *testing.T) {
	h := newHarness(t)
	form := NewRevertForm(7, h.deps)

	assert.True(t, form.Render().Loading)
	assert.ErrorIs(t, form.Submit(context.Background()), ErrNoVersion)

	form.Edit()
	form.Delete()
	assert.Empty(t, h.nav.updates)
	assert.Empty(t, h.modals.deletes)
}
