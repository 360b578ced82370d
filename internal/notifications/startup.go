package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/sirupsen/logrus"
)

type JobLister interface {
	QueryJobs(ctx context.Context) ([]*types.Job, error)
}

// StartupNotifier posts one message when the console comes up, with the
// agent it talks to and how many jobs that agent reports.
type StartupNotifier struct {
	jobs         JobLister
	sender       Sender
	agentURL     string
	logger       *logrus.Logger
	initialDelay time.Duration
}

func NewStartupNotifier(jobs JobLister, sender Sender, agentURL string, logger *logrus.Logger) *StartupNotifier {
	return &StartupNotifier{
		jobs:         jobs,
		sender:       sender,
		agentURL:     agentURL,
		logger:       logger,
		initialDelay: 5 * time.Second,
	}
}

func (n *StartupNotifier) NotifyStartup(ctx context.Context) error {
	select {
	case <-time.After(n.initialDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	color, status := "good", "reachable"
	jobs, err := n.jobs.QueryJobs(ctx)
	if err != nil {
		n.logger.WithError(err).Warn("Agent not reachable at startup")
		color, status = "danger", "unreachable"
	}

	fields := []Field{
		{
			Title: "Agent",
			Value: n.agentURL,
			Short: true,
		},
		{
			Title: "Status",
			Value: status,
			Short: true,
		},
	}
	if err == nil {
		fields = append(fields, Field{
			Title: "Jobs",
			Value: fmt.Sprintf("%d", len(jobs)),
			Short: true,
		})
	}

	return n.sender.SendSlackMessage(&SlackMessage{
		Text: "🚀 Chronos console started",
		Attachments: []Attachment{
			{
				Color:  color,
				Fields: fields,
				Ts:     time.Now().Unix(),
			},
		},
	})
}
