package types

import "time"

// JobType is the closed set of job kinds the agent runs.
type JobType string

const (
	JobTypeQuery  JobType = "Query"
	JobTypeScript JobType = "Script"
)

// Job is the current configuration of a scheduled job as the agent reports it.
type Job struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Parent      *int64  `json:"parent,omitempty"`
	CronString  string  `json:"cronString"`
	Type        JobType `json:"type"`
	Enabled     bool    `json:"enabled"`
	Description string  `json:"description"`
}

// HasParent reports whether the job runs after another job instead of on its own cron.
func (j *Job) HasParent() bool {
	return j != nil && j.Parent != nil
}

// Version is an immutable snapshot of a job's configuration.
type Version struct {
	JobID       int64     `json:"id"`
	Version     int64     `json:"version"`
	Name        string    `json:"name"`
	Type        JobType   `json:"type"`
	Code        string    `json:"code"`
	ResultQuery string    `json:"resultQuery"`
	Enabled     bool      `json:"enabled"`
	ShouldRerun bool      `json:"shouldRerun"`
	Description string    `json:"description"`
	Driver      string    `json:"driver,omitempty"`
	User        string    `json:"user,omitempty"`
	Password    string    `json:"password,omitempty"`
	ResultEmail []string  `json:"resultEmail,omitempty"`
	StatusEmail []string  `json:"statusEmail,omitempty"`
	CronString  string    `json:"cronString"`
	Parent      *int64    `json:"parent,omitempty"`
	CreatedAt   time.Time `json:"lastModified"`
}

func (v *Version) IsQuery() bool {
	return v != nil && v.Type == JobTypeQuery
}

// Source is a data source a query job can run against.
type Source struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// TaskConfig represents a background task schedule
type TaskConfig struct {
	Name        string `json:"name" yaml:"name"`
	Schedule    string `json:"schedule" yaml:"schedule"`
	TaskName    string `json:"task" yaml:"task"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Description string `json:"description" yaml:"description"`
}

// TasksConfig represents the background task scheduler configuration
type TasksConfig struct {
	MaxConcurrent int          `json:"max_concurrent" yaml:"max_concurrent"`
	Predefined    []TaskConfig `json:"predefined" yaml:"predefined"`
}
