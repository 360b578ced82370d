package calendar

import (
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"
)

const (
	maxTitleLength = 1024
	runSlot        = 15 * time.Minute
)

// EventURL builds a Google Calendar link that pre-fills a new event.
func EventURL(title, details string, start, end time.Time, location string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("title cannot be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", fmt.Errorf("title longer than %d characters", maxTitleLength)
	}
	if end.Before(start) {
		return "", fmt.Errorf("end time cannot be before start time")
	}
	if start.Equal(end) {
		return "", fmt.Errorf("start time and end time cannot be the same")
	}

	u := url.URL{
		Scheme: "https",
		Host:   "calendar.google.com",
		Path:   "calendar/render",
	}

	params := url.Values{}
	params.Add("action", "TEMPLATE")
	params.Add("text", title)
	params.Add("details", details)
	params.Add("dates", fmt.Sprintf("%s/%s", start.UTC().Format("20060102T150405Z"), end.UTC().Format("20060102T150405Z")))
	if location != "" {
		params.Add("location", location)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}

// NextRunURL links a calendar slot for the next run of the named job.
func NextRunURL(jobName, details string, next time.Time) (string, error) {
	if jobName == "" {
		return "", fmt.Errorf("job name cannot be empty")
	}
	return EventURL(fmt.Sprintf("Chronos: %s", jobName), details, next, next.Add(runSlot), "")
}
