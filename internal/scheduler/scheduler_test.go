package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenops/internal/config"
)

func TestScheduler_RunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	s := New(zap.NewNop())
	s.Add(Task{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) (int, error) {
			runs.Add(1)
			return 1, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	s.Wait()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestScheduler_DisabledTaskNotRegistered(t *testing.T) {
	s := New(zap.NewNop())
	s.Add(Task{Name: "off", Interval: 0, Run: func(context.Context) (int, error) { return 0, nil }})

	assert.Empty(t, s.tasks)
}

func TestScheduler_SurvivesErrorsAndPanics(t *testing.T) {
	var runs atomic.Int32
	s := New(zap.NewNop())
	s.Add(Task{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) (int, error) {
			switch runs.Add(1) {
			case 1:
				return 0, errors.New("db down")
			case 2:
				panic("boom")
			}
			return 0, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
}

type mockSweeps struct {
	healthBranch string
	recovered    bool
	cleaned      bool
	expired      bool
}

func (m *mockSweeps) HealthCheckAll(_ context.Context, branchID string) (int, error) {
	m.healthBranch = branchID
	return 2, nil
}

func (m *mockSweeps) RecoverStaleJobs(context.Context) (int, error) {
	m.recovered = true
	return 1, nil
}

func (m *mockSweeps) CleanupOldJobs(context.Context) (int64, error) {
	m.cleaned = true
	return 7, nil
}

func (m *mockSweeps) ExpireNotifications(context.Context) (int, error) {
	m.expired = true
	return 0, nil
}

func TestRegisterSweeps(t *testing.T) {
	s := New(zap.NewNop())
	m := &mockSweeps{healthBranch: "unset"}
	cfg := config.SchedulerConfig{
		HealthCheckInterval: time.Minute,
		CleanupInterval:     time.Hour,
		ExpiryInterval:      time.Minute,
	}

	RegisterSweeps(s, cfg, m, m, m)

	require.Len(t, s.tasks, 4)
	counts := map[string]int{}
	for _, task := range s.tasks {
		n, err := task.Run(context.Background())
		require.NoError(t, err)
		counts[task.Name] = n
	}
	assert.Equal(t, "", m.healthBranch)
	assert.True(t, m.recovered)
	assert.True(t, m.cleaned)
	assert.True(t, m.expired)
	assert.Equal(t, 7, counts["print-job-cleanup"])
	assert.Equal(t, time.Hour, s.tasks[3].Interval)
}
