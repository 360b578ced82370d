package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/0xPuncker/chronos-console/pkg/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Sender delivers a formatted message. SlackService is the production sender.
type Sender interface {
	SendSlackMessage(message *SlackMessage) error
}

type NotificationService struct {
	sender Sender
	now    func() time.Time
}

func NewNotificationService(sender Sender) *NotificationService {
	return &NotificationService{
		sender: sender,
		now:    time.Now,
	}
}

// JobReverted announces that job was restored to version.
func (s *NotificationService) JobReverted(job *types.Job, version *types.Version) error {
	return s.sender.SendSlackMessage(s.formatRevertNotification(job, version))
}

// JobDeleted announces that job is gone. origin says who noticed: "console"
// for deletions made here, "agent" for jobs that vanished from the agent.
func (s *NotificationService) JobDeleted(job *types.Job, origin string) error {
	return s.sender.SendSlackMessage(s.formatDeleteNotification(job, origin))
}

func (s *NotificationService) formatRevertNotification(job *types.Job, version *types.Version) *SlackMessage {
	fields := []Field{
		{
			Title: "Job",
			Value: jobLabel(job),
			Short: true,
		},
		{
			Title: "Restored Version",
			Value: fmt.Sprintf("%d", version.Version),
			Short: true,
		},
		{
			Title: "Type",
			Value: string(version.Type),
			Short: true,
		},
	}

	if version.CronString != "" {
		fields = append(fields, Field{
			Title: "Schedule",
			Value: version.CronString,
			Short: true,
		})
	}

	if !version.CreatedAt.IsZero() {
		fields = append(fields, Field{
			Title: "Originally Saved",
			Value: version.CreatedAt.UTC().Format(time.RFC1123),
			Short: false,
		})
	}

	return &SlackMessage{
		Text: fmt.Sprintf("⏪ %s Reverted", cases.Title(language.English).String(job.Name)),
		Attachments: []Attachment{
			{
				Color:  "warning",
				Text:   version.Description,
				Fields: fields,
				Footer: s.footer(),
				Ts:     s.now().Unix(),
			},
		},
	}
}

func (s *NotificationService) formatDeleteNotification(job *types.Job, origin string) *SlackMessage {
	fields := []Field{
		{
			Title: "Job",
			Value: jobLabel(job),
			Short: true,
		},
		{
			Title: "Deleted From",
			Value: origin,
			Short: true,
		},
	}

	name := job.Name
	if name == "" {
		name = fmt.Sprintf("job %d", job.ID)
	}

	return &SlackMessage{
		Text: fmt.Sprintf("🗑️ %s Deleted", cases.Title(language.English).String(name)),
		Attachments: []Attachment{
			{
				Color:  "danger",
				Fields: fields,
				Footer: s.footer(),
				Ts:     s.now().Unix(),
			},
		},
	}
}

func (s *NotificationService) footer() string {
	return fmt.Sprintf("Chronos console | %s", s.now().UTC().Format("Mon, 02 Jan 2006 15:04:05 MST"))
}

func jobLabel(job *types.Job) string {
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Sprintf("#%d", job.ID)
	}
	return fmt.Sprintf("%s (#%d)", job.Name, job.ID)
}
