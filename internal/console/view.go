package console

import (
	"strings"
	"time"

	"github.com/0xPuncker/chronos-console/pkg/types"
)

type Tab string

const (
	TabCode        Tab = "code"
	TabResultQuery Tab = "resultQuery"
)

func (t Tab) Valid() bool {
	return t == TabCode || t == TabResultQuery
}

// FormView is the read-only rendering of one job version.
type FormView struct {
	Loading     bool             `json:"loading"`
	JobID       int64            `json:"job_id,omitempty"`
	Version     int64            `json:"version,omitempty"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Enabled     bool             `json:"enabled"`
	ShouldRerun bool             `json:"should_rerun"`
	Type        types.JobType    `json:"type,omitempty"`
	Credentials *Credentials     `json:"credentials,omitempty"`
	Schedule    *ScheduleView    `json:"schedule,omitempty"`
	ResultEmail []string         `json:"result_email,omitempty"`
	StatusEmail []string         `json:"status_email,omitempty"`
	Tabs        []TabView        `json:"tabs,omitempty"`
	Code        *CodePanel       `json:"code,omitempty"`
	Versions    []VersionSummary `json:"versions,omitempty"`
}

type Credentials struct {
	Driver   string `json:"driver"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type ScheduleView struct {
	DependsOn  bool       `json:"depends_on"`
	ParentName string     `json:"parent_name,omitempty"`
	CronString string     `json:"cron_string,omitempty"`
	Phrase     string     `json:"phrase,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	NextRunIn  string     `json:"next_run_in,omitempty"`

	// CalendarURL pre-fills a calendar event for the next run.
	CalendarURL string `json:"calendar_url,omitempty"`
}

type TabView struct {
	ID     Tab    `json:"id"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// CodePanel configures the syntax highlighted code widget.
type CodePanel struct {
	ReadOnly bool   `json:"read_only"`
	Mode     string `json:"mode"`
	Value    string `json:"value"`
}

type VersionSummary struct {
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Selected  bool      `json:"selected"`
}

// RouteView is the revert page: a title and the form below it.
type RouteView struct {
	Title string    `json:"title"`
	Error string    `json:"error,omitempty"`
	Form  *FormView `json:"form"`
}

func maskPassword(password string) string {
	return strings.Repeat("*", len(password))
}

func codeMode(v *types.Version) string {
	if v.IsQuery() {
		return "sql"
	}
	return "shell"
}
