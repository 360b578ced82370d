package chronos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("not found")

const (
	jobCacheKey      = "job:%d"
	versionsCacheKey = "versions:%d"
)

// Client talks to the chronos agent REST API. It implements store.Backend.
type Client struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
	ttl     time.Duration
	logger  *logrus.Logger
}

// NewClient returns a client for the agent at baseURL. Job and version
// lookups are cached for ttl; a zero ttl disables caching.
func NewClient(baseURL string, timeout, ttl time.Duration, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cache:   cache.New(ttl, 10*time.Minute),
		ttl:     ttl,
		logger:  logger,
	}
}

func (c *Client) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	key := fmt.Sprintf(jobCacheKey, id)
	if cached, found := c.cache.Get(key); found {
		c.logger.WithField("job_id", id).Debug("Found cached job")
		job := *cached.(*types.Job)
		return &job, nil
	}

	var job types.Job
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/job/%d", id), nil, &job); err != nil {
		return nil, fmt.Errorf("failed to fetch job %d: %w", id, err)
	}
	c.remember(key, &job)

	copied := job
	return &copied, nil
}

// GetJobVersions returns the version history of job id, oldest first.
func (c *Client) GetJobVersions(ctx context.Context, id int64) ([]*types.Version, error) {
	key := fmt.Sprintf(versionsCacheKey, id)
	if cached, found := c.cache.Get(key); found {
		c.logger.WithField("job_id", id).Debug("Found cached job versions")
		return copyVersions(cached.([]*types.Version)), nil
	}

	var versions []*types.Version
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/job/version/%d", id), nil, &versions); err != nil {
		return nil, fmt.Errorf("failed to fetch versions of job %d: %w", id, err)
	}
	if versions == nil {
		versions = []*types.Version{}
	}
	c.remember(key, versions)

	return copyVersions(versions), nil
}

// UpdateJob restores version as the job's current configuration.
func (c *Client) UpdateJob(ctx context.Context, id int64, version *types.Version) (*types.Job, error) {
	if version == nil {
		return nil, fmt.Errorf("version cannot be nil")
	}

	body, err := json.Marshal(version)
	if err != nil {
		return nil, fmt.Errorf("failed to encode version: %w", err)
	}

	c.forget(id)

	var job types.Job
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/job/%d", id), body, &job); err != nil {
		return nil, fmt.Errorf("failed to update job %d: %w", id, err)
	}
	if job.ID == 0 {
		// older agents answer with an empty body
		return c.GetJob(ctx, id)
	}
	return &job, nil
}

func (c *Client) DeleteJob(ctx context.Context, id int64) error {
	c.forget(id)
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/job/%d", id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}
	return nil
}

func (c *Client) QueryJobs(ctx context.Context) ([]*types.Job, error) {
	var jobs []*types.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &jobs); err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*types.Job{}
	}

	c.logger.WithField("jobs_count", len(jobs)).Debug("Retrieved jobs from agent")
	return jobs, nil
}

func (c *Client) QuerySources(ctx context.Context) ([]types.Source, error) {
	var sources []types.Source
	if err := c.do(ctx, http.MethodGet, "/api/sources", nil, &sources); err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	if sources == nil {
		sources = []types.Source{}
	}
	return sources, nil
}

// IsCached reports whether job id is served from the cache.
func (c *Client) IsCached(id int64) bool {
	_, found := c.cache.Get(fmt.Sprintf(jobCacheKey, id))
	return found
}

func (c *Client) remember(key string, value interface{}) {
	if c.ttl <= 0 {
		return
	}
	c.cache.Set(key, value, c.ttl)
}

func (c *Client) forget(id int64) {
	c.cache.Delete(fmt.Sprintf(jobCacheKey, id))
	c.cache.Delete(fmt.Sprintf(versionsCacheKey, id))
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Agent request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("agent returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data[:min(len(data), 200)])))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse agent response: %w", err)
	}
	return nil
}

func copyVersions(versions []*types.Version) []*types.Version {
	out := make([]*types.Version, len(versions))
	copy(out, versions)
	return out
}
