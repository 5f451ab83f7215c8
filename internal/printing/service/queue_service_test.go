package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/events"
	"kitchenops/internal/testutil"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testQueueConfig() QueueConfig {
	return QueueConfig{
		BaseRetryDelay:    30 * time.Second,
		BackoffMultiplier: 2,
		MaxRetries:        3,
		CleanupMaxAge:     24 * time.Hour,
		PrintTimeout:      10 * time.Second,
	}
}

func newTestQueue(t *testing.T, printers ...domain.PrinterConfig) (*QueueService, *testutil.JobStore, *testutil.PrinterStore, *clock, *events.Recorder) {
	t.Helper()
	if len(printers) == 0 {
		printers = []domain.PrinterConfig{{ID: "p1", BranchID: "b1", Name: "Grill", Active: true}}
	}
	jobs := testutil.NewJobStore()
	ps := testutil.NewPrinterStore(printers...)
	rec := &events.Recorder{}
	clk := &clock{now: t0}
	svc := NewQueueService(jobs, ps, rec, testQueueConfig(), zap.NewNop())
	svc.now = clk.Now
	return svc, jobs, ps, clk, rec
}

func TestRetryDelay(t *testing.T) {
	base := 30 * time.Second

	for n := 1; n <= 5; n++ {
		want := base
		for i := 1; i < n; i++ {
			want *= 2
		}
		assert.Equal(t, want, RetryDelay(base, 2, n), "retry %d", n)
	}
	assert.Equal(t, base, RetryDelay(base, 3, 1))
	assert.Equal(t, 9*base, RetryDelay(base, 3, 3))
}

func TestCreateJob_UnknownPrinter(t *testing.T) {
	svc, _, _, _, _ := newTestQueue(t)

	_, err := svc.CreateJob(context.Background(), CreateJobRequest{PrinterID: "missing", Content: "x"})

	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestCreateJob_Defaults(t *testing.T) {
	svc, _, _, _, rec := newTestQueue(t)

	job, err := svc.CreateJob(context.Background(), CreateJobRequest{PrinterID: "p1", Content: "ticket"})

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, "b1", job.BranchID)
	assert.Equal(t, 1, job.Copies)
	assert.Equal(t, domain.PriorityNormal, job.Priority)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Equal(t, []string{events.TopicPrintJobUpdated}, rec.Topics())
}

func TestCreateJob_Validation(t *testing.T) {
	svc, _, _, _, _ := newTestQueue(t)

	_, err := svc.CreateJob(context.Background(), CreateJobRequest{PrinterID: "p1", Content: "  ", Priority: "SOON"})

	ve, ok := apperrors.IsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Details, 2)
}

func TestGetNextJob_PriorityThenFIFO(t *testing.T) {
	svc, _, _, clk, _ := newTestQueue(t)
	ctx := context.Background()

	normalOld, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a", Priority: domain.PriorityNormal})
	clk.Advance(time.Second)
	_, _ = svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "b", Priority: domain.PriorityLow})
	clk.Advance(time.Second)
	urgent, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "c", Priority: domain.PriorityUrgent})
	clk.Advance(time.Second)
	_, _ = svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "d", Priority: domain.PriorityNormal})

	next, err := svc.GetNextJob(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, next.ID)

	_, err = svc.CancelJob(ctx, urgent.ID)
	require.NoError(t, err)

	next, err = svc.GetNextJob(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, normalOld.ID, next.ID)
}

func TestGetNextJob_RetryWaitsForBackoff(t *testing.T) {
	svc, _, _, clk, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, err := svc.MarkJobStarted(ctx, job.ID)
	require.NoError(t, err)
	_, err = svc.MarkJobFailed(ctx, job.ID, "paper out", "")
	require.NoError(t, err)

	next, err := svc.GetNextJob(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, next)

	clk.Advance(30 * time.Second)
	next, err = svc.GetNextJob(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, job.ID, next.ID)
}

func TestMarkJobCompleted_UpdatesPrinterStats(t *testing.T) {
	svc, _, ps, _, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, err := svc.MarkJobStarted(ctx, job.ID)
	require.NoError(t, err)
	d := int64(420)
	done, err := svc.MarkJobCompleted(ctx, job.ID, &d)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	assert.Equal(t, int64(420), *done.DurationMs)
	p, _ := ps.Get(ctx, "p1")
	assert.Equal(t, 1, p.TotalJobs)
	assert.Equal(t, 1, p.SuccessfulJobs)
	assert.NotNil(t, p.LastPrintAt)
}

func TestMarkJobCompleted_RequiresPrinting(t *testing.T) {
	svc, _, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, err := svc.MarkJobCompleted(ctx, job.ID, nil)

	_, ok := apperrors.IsInvalidTransitionError(err)
	assert.True(t, ok)
}

func TestMarkJobFailed_RequiresPrinting(t *testing.T) {
	svc, _, ps, _, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, err := svc.MarkJobFailed(ctx, job.ID, "jam", "")

	_, ok := apperrors.IsInvalidTransitionError(err)
	assert.True(t, ok)
	got, _ := svc.GetJob(ctx, job.ID)
	assert.Equal(t, 0, got.RetryCount)
	p, _ := ps.Get(ctx, "p1")
	assert.Equal(t, 0, p.TotalJobs)
}

func TestMarkJobStarted_StartTimeMillisecondPrecision(t *testing.T) {
	svc, _, _, clk, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	clk.Advance(1234567 * time.Nanosecond)
	started, err := svc.MarkJobStarted(ctx, job.ID)
	require.NoError(t, err)

	require.NotNil(t, started.StartedAt)
	assert.Equal(t, t0.Add(time.Millisecond), *started.StartedAt)

	done, err := svc.CompleteAttempt(ctx, job.ID, clk.now, nil)
	require.NoError(t, err, "a report carrying the unrounded start time matches its attempt")
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
}

func TestLateReportAfterStaleRecovery(t *testing.T) {
	svc, _, ps, clk, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	started, err := svc.MarkJobStarted(ctx, job.ID)
	require.NoError(t, err)
	attempt := *started.StartedAt

	clk.Advance(11 * time.Second)
	n, err := svc.RecoverStaleJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "an attempt inside the stale margin is left to its worker")

	clk.Advance(20 * time.Second)
	n, err = svc.RecoverStaleJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = svc.FailAttempt(ctx, job.ID, attempt, "send timed out", "TIMEOUT")
	_, ok := apperrors.IsConflictError(err)
	assert.True(t, ok)
	_, err = svc.CompleteAttempt(ctx, job.ID, attempt, nil)
	_, ok = apperrors.IsConflictError(err)
	assert.True(t, ok)

	got, _ := svc.GetJob(ctx, job.ID)
	assert.Equal(t, domain.JobStatusRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, ErrorCodePrintTimeout, got.ErrorCode)
	p, _ := ps.Get(ctx, "p1")
	assert.Equal(t, 1, p.TotalJobs)
	assert.Equal(t, 1, p.FailedJobs)
	assert.Equal(t, 0, p.SuccessfulJobs)

	clk.Advance(time.Minute)
	_, err = svc.MarkJobStarted(ctx, job.ID)
	require.NoError(t, err)

	_, err = svc.CompleteAttempt(ctx, job.ID, attempt, nil)
	_, ok = apperrors.IsConflictError(err)
	assert.True(t, ok, "the old attempt cannot close the new one")
	got, _ = svc.GetJob(ctx, job.ID)
	assert.Equal(t, domain.JobStatusPrinting, got.Status)
}

func TestMarkJobFailed_BackoffSchedule(t *testing.T) {
	svc, _, ps, clk, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a", MaxRetries: 4})

	for n := 1; n <= 3; n++ {
		_, err := svc.MarkJobStarted(ctx, job.ID)
		require.NoError(t, err)
		failed, err := svc.MarkJobFailed(ctx, job.ID, "offline", "CONNECTION_FAILED")
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusRetry, failed.Status)
		assert.Equal(t, n, failed.RetryCount)
		require.NotNil(t, failed.NextRetryAt)
		assert.Equal(t, RetryDelay(30*time.Second, 2, n), failed.NextRetryAt.Sub(clk.now))
		assert.Equal(t, "CONNECTION_FAILED", failed.ErrorCode)
		clk.Advance(failed.NextRetryAt.Sub(clk.now))
	}

	p, _ := ps.Get(ctx, "p1")
	assert.Equal(t, 3, p.FailedJobs)
	assert.Equal(t, "offline", p.LastError)
}

func TestMaxRetriesScenario(t *testing.T) {
	svc, _, ps, clk, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a", MaxRetries: 3})

	var last *domain.PrinterJob
	for i := 0; i < 3; i++ {
		_, err := svc.MarkJobStarted(ctx, job.ID)
		require.NoError(t, err)
		last, err = svc.MarkJobFailed(ctx, job.ID, "jam", "")
		require.NoError(t, err)
		if last.NextRetryAt != nil {
			clk.Advance(last.NextRetryAt.Sub(clk.now))
		}
	}

	assert.Equal(t, domain.JobStatusFailed, last.Status)
	assert.Equal(t, 3, last.RetryCount)
	assert.Nil(t, last.NextRetryAt)
	assert.Equal(t, ErrorCodePrintFailed, last.ErrorCode)

	next, err := svc.GetNextJob(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, next, "failed jobs are never picked up again")

	_, err = svc.RetryJob(ctx, job.ID, false)
	ree, ok := apperrors.IsRetryExhaustedError(err)
	require.True(t, ok)
	assert.Equal(t, 3, ree.MaxRetries)

	p, _ := ps.Get(ctx, "p1")
	assert.Equal(t, 3, p.TotalJobs)
	assert.Equal(t, 3, p.FailedJobs)
}

func TestRetryJob_Force(t *testing.T) {
	svc, _, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a", MaxRetries: 1})
	_, _ = svc.MarkJobStarted(ctx, job.ID)
	_, err := svc.MarkJobFailed(ctx, job.ID, "jam", "")
	require.NoError(t, err)

	requeued, err := svc.RetryJob(ctx, job.ID, true)

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, requeued.Status)
	assert.Equal(t, 0, requeued.RetryCount)
	assert.Empty(t, requeued.ErrorMessage)
}

func TestRetryJob_ForceOnCompletedReprints(t *testing.T) {
	svc, _, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, _ = svc.MarkJobStarted(ctx, job.ID)
	_, _ = svc.MarkJobCompleted(ctx, job.ID, nil)

	_, err := svc.RetryJob(ctx, job.ID, false)
	_, ok := apperrors.IsInvalidTransitionError(err)
	assert.True(t, ok)

	requeued, err := svc.RetryJob(ctx, job.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, requeued.Status)
	assert.Nil(t, requeued.CompletedAt)
}

func TestRetryJob_ForceWhilePrintingConflicts(t *testing.T) {
	svc, _, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, _ = svc.MarkJobStarted(ctx, job.ID)

	_, err := svc.RetryJob(ctx, job.ID, true)

	_, ok := apperrors.IsConflictError(err)
	assert.True(t, ok)
}

func TestCancelJob(t *testing.T) {
	svc, _, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	done, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, _ = svc.MarkJobStarted(ctx, done.ID)
	_, _ = svc.MarkJobCompleted(ctx, done.ID, nil)

	_, err := svc.CancelJob(ctx, done.ID)
	_, ok := apperrors.IsInvalidTransitionError(err)
	assert.True(t, ok, "completed jobs cannot be cancelled")

	pending, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "b"})
	cancelled, err := svc.CancelJob(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)

	again, err := svc.CancelJob(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, again.Status)
}

func TestCancelWhilePrinting_FinishesButNeverRetries(t *testing.T) {
	svc, _, ps, _, _ := newTestQueue(t)
	ctx := context.Background()

	job, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, _ = svc.MarkJobStarted(ctx, job.ID)
	_, err := svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)

	after, err := svc.MarkJobFailed(ctx, job.ID, "jam", "")
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCancelled, after.Status)
	assert.Equal(t, 0, after.RetryCount)
	assert.Nil(t, after.NextRetryAt)
	p, _ := ps.Get(ctx, "p1")
	assert.Equal(t, 1, p.FailedJobs)
}

func TestRecoverStaleJobs(t *testing.T) {
	svc, _, _, clk, _ := newTestQueue(t)
	ctx := context.Background()

	stuck, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, _ = svc.MarkJobStarted(ctx, stuck.ID)
	clk.Advance(time.Minute)
	fresh, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "b"})
	_, _ = svc.MarkJobStarted(ctx, fresh.ID)

	n, err := svc.RecoverStaleJobs(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, _ := svc.GetJob(ctx, stuck.ID)
	assert.Equal(t, domain.JobStatusRetry, got.Status)
	assert.Equal(t, ErrorCodePrintTimeout, got.ErrorCode)
	got, _ = svc.GetJob(ctx, fresh.ID)
	assert.Equal(t, domain.JobStatusPrinting, got.Status)
}

func TestCleanupOldJobs(t *testing.T) {
	svc, jobs, _, clk, _ := newTestQueue(t)
	ctx := context.Background()

	old, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, _ = svc.CancelJob(ctx, old.ID)
	failed, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "b", MaxRetries: 1})
	_, _ = svc.MarkJobStarted(ctx, failed.ID)
	_, _ = svc.MarkJobFailed(ctx, failed.ID, "jam", "")
	clk.Advance(25 * time.Hour)
	recent, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "c"})
	_, _ = svc.CancelJob(ctx, recent.ID)

	n, err := svc.CleanupOldJobs(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, jobs.All(), 2)
}

func TestGetStatistics_AllStatusesPresent(t *testing.T) {
	svc, _, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	a, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "a"})
	_, _ = svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "b"})
	_, _ = svc.CancelJob(ctx, a.ID)

	stats, err := svc.GetStatistics(ctx, "b1")

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[domain.JobStatusPending])
	assert.Equal(t, 1, stats.ByStatus[domain.JobStatusCancelled])
	assert.Len(t, stats.ByStatus, len(domain.AllJobStatuses()))
}

func TestListJobs_NewestFirstPaged(t *testing.T) {
	svc, _, _, clk, _ := newTestQueue(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		j, _ := svc.CreateJob(ctx, CreateJobRequest{PrinterID: "p1", Content: "x"})
		ids = append(ids, j.ID)
		clk.Advance(time.Second)
	}

	page, err := svc.ListJobs(ctx, domain.JobFilter{BranchID: "b1", Page: 2, Limit: 2})

	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Jobs, 2)
	assert.Equal(t, ids[2], page.Jobs[0].ID)
	assert.Equal(t, ids[1], page.Jobs[1].ID)
}
