package scheduler

import (
	"context"

	"kitchenops/internal/config"
)

type PrinterHealthChecker interface {
	HealthCheckAll(ctx context.Context, branchID string) (int, error)
}

type JobSweeper interface {
	RecoverStaleJobs(ctx context.Context) (int, error)
	CleanupOldJobs(ctx context.Context) (int64, error)
}

type NotificationExpirer interface {
	ExpireNotifications(ctx context.Context) (int, error)
}

// RegisterSweeps adds the standing maintenance tasks: printer health checks,
// recovery of jobs stuck in PRINTING, notification expiry and job cleanup.
// Stale recovery runs on the health check cadence.
func RegisterSweeps(s *Scheduler, cfg config.SchedulerConfig, printers PrinterHealthChecker, jobs JobSweeper, notifications NotificationExpirer) {
	s.Add(Task{
		Name:     "printer-health-check",
		Interval: cfg.HealthCheckInterval,
		Run: func(ctx context.Context) (int, error) {
			return printers.HealthCheckAll(ctx, "")
		},
	})
	s.Add(Task{
		Name:     "stale-print-recovery",
		Interval: cfg.HealthCheckInterval,
		Run:      jobs.RecoverStaleJobs,
	})
	s.Add(Task{
		Name:     "notification-expiry",
		Interval: cfg.ExpiryInterval,
		Run:      notifications.ExpireNotifications,
	})
	s.Add(Task{
		Name:     "print-job-cleanup",
		Interval: cfg.CleanupInterval,
		Run: func(ctx context.Context) (int, error) {
			n, err := jobs.CleanupOldJobs(ctx)
			return int(n), err
		},
	})
}
