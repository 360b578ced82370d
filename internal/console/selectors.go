package console

import (
	"github.com/0xPuncker/chronos-console/internal/store"
	"github.com/0xPuncker/chronos-console/pkg/types"
)

type RouteProps struct {
	Job          *types.Job
	Versions     []*types.Version
	JobDone      bool
	VersionsDone bool
	Err          error
}

type FormProps struct {
	Job          *types.Job
	Versions     []*types.Version
	Version      *types.Version
	Jobs         []*types.Job
	JobsByID     map[int64]*types.Job
	Sources      []types.Source
	LastDeleted  *types.Job
	UseLocalTime bool
}

// SelectRouteProps derives the route's view of st. A fetch counts as done only
// once the request issued for this activation (or a later one) has finished.
func SelectRouteProps(st *store.State, id int64, jobTicket, versionsTicket uint64) RouteProps {
	props := RouteProps{
		Job:          st.Jobs[id],
		Versions:     st.Versions[id],
		JobDone:      st.Done(store.JobKey(id), jobTicket),
		VersionsDone: st.Done(store.VersionsKey(id), versionsTicket),
	}
	if err := st.Err(store.JobKey(id)); err != nil && props.JobDone {
		props.Err = err
	} else if err := st.Err(store.VersionsKey(id)); err != nil && props.VersionsDone {
		props.Err = err
	}
	return props
}

func SelectFormProps(st *store.State, id int64) FormProps {
	job := st.Jobs[id]
	versions := st.Versions[id]

	var selected *types.Version
	if job != nil {
		selected = st.VersionSelected[job.ID]
	}

	return FormProps{
		Job:          job,
		Versions:     versions,
		Version:      SelectVersion(selected, versions),
		Jobs:         st.Query,
		JobsByID:     st.ByID,
		Sources:      st.Sources,
		LastDeleted:  st.LastDeleted(),
		UseLocalTime: st.UseLocalTime,
	}
}

// SelectVersion returns the explicitly selected version if there is one,
// otherwise the most recent of versions. It returns nil for an empty history.
func SelectVersion(selected *types.Version, versions []*types.Version) *types.Version {
	if selected != nil {
		return selected
	}
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1]
}

// FindRoot follows parent references from job id until it reaches a job with
// no parent. A parent missing from jobs, or one already visited, ends the walk
// at the last job reached. It returns nil only when id itself is unknown.
func FindRoot(id int64, jobs map[int64]*types.Job) *types.Job {
	job := jobs[id]
	if job == nil {
		return nil
	}

	seen := map[int64]bool{job.ID: true}
	for job.Parent != nil {
		parent := jobs[*job.Parent]
		if parent == nil || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		job = parent
	}
	return job
}
