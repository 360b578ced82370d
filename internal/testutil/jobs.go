package testutil

import (
	"io"
	"time"

	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/sirupsen/logrus"
)

func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func Int64(v int64) *int64 {
	return &v
}

func NewJob(id int64, name string, parent *int64) *types.Job {
	return &types.Job{
		ID:         id,
		Name:       name,
		Parent:     parent,
		CronString: "0 3 * * *",
		Type:       types.JobTypeScript,
		Enabled:    true,
	}
}

func NewQueryVersion(jobID, version int64) *types.Version {
	return &types.Version{
		JobID:       jobID,
		Version:     version,
		Name:        "nightly report",
		Type:        types.JobTypeQuery,
		Code:        "SELECT count(*) FROM events",
		ResultQuery: "SELECT * FROM events LIMIT 10",
		Enabled:     true,
		Description: "counts events",
		Driver:      "MySQL",
		User:        "reporter",
		Password:    "secret",
		ResultEmail: []string{"team@example.com"},
		StatusEmail: []string{"ops@example.com"},
		CronString:  "0 3 * * *",
		CreatedAt:   time.Date(2024, time.January, int(version), 0, 0, 0, 0, time.UTC),
	}
}

func NewScriptVersion(jobID, version int64) *types.Version {
	return &types.Version{
		JobID:       jobID,
		Version:     version,
		Name:        "cleanup",
		Type:        types.JobTypeScript,
		Code:        "rm -rf /tmp/reports/*",
		Enabled:     true,
		Description: "clears report scratch space",
		StatusEmail: []string{"ops@example.com"},
		CronString:  "30 * * * *",
		CreatedAt:   time.Date(2024, time.January, int(version), 0, 0, 0, 0, time.UTC),
	}
}
