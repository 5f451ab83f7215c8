package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a periodic sweep. Run returns how many records it touched.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs every task on its own ticker under one shared context.
type Scheduler struct {
	tasks  []Task
	logger *zap.Logger
	wg     sync.WaitGroup
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Add registers a task. Tasks with a non-positive interval are disabled.
func (s *Scheduler) Add(task Task) {
	if task.Interval <= 0 {
		s.logger.Info("scheduled task disabled", zap.String("task", task.Name))
		return
	}
	s.tasks = append(s.tasks, task)
}

// Start launches the tasks and returns immediately. They stop when ctx is
// cancelled; Wait blocks until the last run in flight has returned.
func (s *Scheduler) Start(ctx context.Context) {
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, task)
	}
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.tasks)))
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, task)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", zap.String("task", task.Name), zap.Any("panic", r))
		}
	}()

	n, err := task.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduled task failed", zap.String("task", task.Name), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("scheduled task finished", zap.String("task", task.Name), zap.Int("affected", n))
	}
}
