package cron

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/0xPuncker/chronos-console/internal/testutil"
	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	var counter int
	var mu sync.Mutex

	scheduler := NewScheduler(testutil.NewLogger(), types.TasksConfig{MaxConcurrent: 10})
	scheduler.RegisterTask("test-task", func() error {
		mu.Lock()
		counter++
		mu.Unlock()
		return nil
	})

	err := scheduler.LoadTasks([]types.TaskConfig{
		{
			Name:     "test",
			Schedule: "*/1 * * * * *",
			TaskName: "test-task",
			Enabled:  true,
		},
		{
			Name:     "disabled",
			Schedule: "*/1 * * * * *",
			TaskName: "test-task",
		},
	})
	require.NoError(t, err)

	require.NoError(t, scheduler.Start())
	assert.True(t, scheduler.IsRunning())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counter > 0
	}, 3*time.Second, 50*time.Millisecond)

	tasks := scheduler.ListTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "test", tasks[0].Name)
	assert.Equal(t, "*/1 * * * * *", tasks[0].Schedule)
	assert.NotNil(t, tasks[0].NextRun)

	scheduler.Stop()
	assert.False(t, scheduler.IsRunning())
	assert.Nil(t, scheduler.ListTasks()[0].NextRun)
}

func TestSchedulerErrors(t *testing.T) {
	scheduler := NewScheduler(testutil.NewLogger(), types.TasksConfig{})
	scheduler.RegisterTask("known", func() error { return nil })

	tests := []struct {
		name string
		task types.TaskConfig
	}{
		{"unregistered task", types.TaskConfig{Name: "a", Schedule: "@every 1m", TaskName: "missing", Enabled: true}},
		{"invalid schedule", types.TaskConfig{Name: "b", Schedule: "invalid-schedule", TaskName: "known", Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, scheduler.LoadTasks([]types.TaskConfig{tt.task}))
		})
	}

	require.NoError(t, scheduler.Start())
	assert.Error(t, scheduler.Start())
	scheduler.Stop()
	scheduler.Stop()
}

func TestSchedulerRunNow(t *testing.T) {
	scheduler := NewScheduler(testutil.NewLogger(), types.TasksConfig{})
	failure := errors.New("agent unreachable")
	scheduler.RegisterTask("failing", func() error { return failure })

	assert.ErrorIs(t, scheduler.RunNow("failing"), failure)
	assert.ErrorIs(t, scheduler.RunNow("missing"), ErrUnknownTask)
}

func TestSchedulerSkipsBeyondMaxConcurrent(t *testing.T) {
	scheduler := NewScheduler(testutil.NewLogger(), types.TasksConfig{MaxConcurrent: 1})

	release := make(chan struct{})
	var runs int
	var mu sync.Mutex
	run := scheduler.wrap(types.TaskConfig{Name: "slow"}, func() error {
		mu.Lock()
		runs++
		mu.Unlock()
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs == 1
	}, time.Second, 5*time.Millisecond)

	// a second run while the first holds the only slot is dropped
	run()
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{500 * time.Microsecond, "500µs"},
		{1500 * time.Microsecond, "1.50ms"},
		{2500 * time.Millisecond, "2.50s"},
		{90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatDuration(tt.d))
	}
}
