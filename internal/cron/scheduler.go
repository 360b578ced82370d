package cron

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var ErrUnknownTask = errors.New("task not registered")

type entry struct {
	id     cron.EntryID
	config types.TaskConfig
}

// Scheduler runs the console's own background tasks. It has nothing to do
// with the jobs the chronos agent schedules.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	entries map[string]entry
	tasks   map[string]func() error
	mu      sync.RWMutex
	started bool

	maxConcurrent int
	active        int
	activeMu      sync.Mutex
}

func NewScheduler(logger *logrus.Logger, config types.TasksConfig) *Scheduler {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{
		cron:          cron.New(cron.WithSeconds()),
		logger:        logger,
		entries:       make(map[string]entry),
		tasks:         make(map[string]func() error),
		maxConcurrent: maxConcurrent,
	}
}

func (s *Scheduler) RegisterTask(name string, task func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = task
}

// LoadTasks replaces the scheduled entries with tasks. Disabled tasks are
// skipped; a task naming an unregistered function is an error.
func (s *Scheduler) LoadTasks(tasks []types.TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.entries {
		s.cron.Remove(e.id)
		delete(s.entries, name)
	}

	for _, task := range tasks {
		if !task.Enabled {
			s.logger.Infof("Skipping disabled task: %s", task.Name)
			continue
		}

		fn, exists := s.tasks[task.TaskName]
		if !exists {
			return fmt.Errorf("%s: %w", task.TaskName, ErrUnknownTask)
		}

		id, err := s.cron.AddFunc(task.Schedule, s.wrap(task, fn))
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", task.Name, err)
		}
		s.entries[task.Name] = entry{id: id, config: task}

		s.logger.WithFields(logrus.Fields{
			"task_name":   task.Name,
			"schedule":    task.Schedule,
			"task":        task.TaskName,
			"description": task.Description,
		}).Info("Task scheduled successfully")
	}

	return nil
}

func (s *Scheduler) wrap(task types.TaskConfig, fn func() error) func() {
	return func() {
		s.activeMu.Lock()
		if s.active >= s.maxConcurrent {
			s.activeMu.Unlock()
			s.logger.Warnf("Max concurrent tasks reached, skipping task: %s", task.Name)
			return
		}
		s.active++
		active := s.active
		s.activeMu.Unlock()

		defer func() {
			s.activeMu.Lock()
			s.active--
			s.activeMu.Unlock()
		}()

		s.logger.WithFields(logrus.Fields{
			"task_name":    task.Name,
			"task":         task.TaskName,
			"active_tasks": active,
		}).Debug("Starting task execution")

		start := time.Now()
		if err := fn(); err != nil {
			s.logger.WithFields(logrus.Fields{
				"task_name": task.Name,
				"error":     err.Error(),
				"duration":  formatDuration(time.Since(start)),
			}).Error("Task execution failed")
			return
		}

		s.logger.WithFields(logrus.Fields{
			"task_name": task.Name,
			"duration":  formatDuration(time.Since(start)),
		}).Debug("Task execution completed successfully")
	}
}

// RunNow executes the registered task name once, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	fn, exists := s.tasks[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%s: %w", name, ErrUnknownTask)
	}
	return fn()
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	} else if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	} else if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// ListTasks returns the scheduled tasks sorted by name, with their next run
// when the scheduler is running.
func (s *Scheduler) ListTasks() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TaskStatus, 0, len(s.entries))
	for _, e := range s.entries {
		status := TaskStatus{TaskConfig: e.config}
		if s.started {
			if next := s.cron.Entry(e.id).Next; !next.IsZero() {
				status.NextRun = &next
			}
		}
		tasks = append(tasks, status)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Name < tasks[j].Name
	})
	return tasks
}

type TaskStatus struct {
	types.TaskConfig
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("Scheduler started...")

	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.started = false
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
