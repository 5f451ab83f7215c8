package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/events"
	"kitchenops/internal/printing/service"
	"kitchenops/internal/testutil"
)

type mockTransport struct {
	SendFunc func(ctx context.Context, printer *domain.PrinterConfig, content string, copies int) error
}

func (m *mockTransport) Send(ctx context.Context, printer *domain.PrinterConfig, content string, copies int) error {
	return m.SendFunc(ctx, printer, content, copies)
}

func setup(t *testing.T, transport Transport) (*Pool, *service.QueueService, *testutil.PrinterStore) {
	t.Helper()
	ps := testutil.NewPrinterStore(
		domain.PrinterConfig{ID: "p1", BranchID: "b1", Active: true},
		domain.PrinterConfig{ID: "p2", BranchID: "b1", Active: true},
	)
	queue := service.NewQueueService(testutil.NewJobStore(), ps, events.Nop{}, service.QueueConfig{
		BaseRetryDelay:    time.Hour,
		BackoffMultiplier: 2,
		MaxRetries:        3,
		PrintTimeout:      time.Second,
	}, zap.NewNop())
	pool := NewPool(queue, ps, transport, NewMemoryLocker(), Config{
		PollInterval: 10 * time.Millisecond,
		PrintTimeout: 50 * time.Millisecond,
	}, zap.NewNop())
	return pool, queue, ps
}

func TestDrain_PrintsInPriorityOrder(t *testing.T) {
	var printed []string
	pool, queue, ps := setup(t, &mockTransport{SendFunc: func(_ context.Context, _ *domain.PrinterConfig, content string, _ int) error {
		printed = append(printed, content)
		return nil
	}})
	ctx := context.Background()

	_, _ = queue.CreateJob(ctx, service.CreateJobRequest{PrinterID: "p1", Content: "low", Priority: domain.PriorityLow})
	_, _ = queue.CreateJob(ctx, service.CreateJobRequest{PrinterID: "p1", Content: "urgent", Priority: domain.PriorityUrgent})
	_, _ = queue.CreateJob(ctx, service.CreateJobRequest{PrinterID: "p2", Content: "other printer"})

	n, err := pool.Drain(ctx, "p1")

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"urgent", "low"}, printed)
	p, _ := ps.Get(ctx, "p1")
	assert.Equal(t, 2, p.SuccessfulJobs)
}

func TestDrain_TransportFailureSchedulesRetry(t *testing.T) {
	pool, queue, _ := setup(t, &mockTransport{SendFunc: func(context.Context, *domain.PrinterConfig, string, int) error {
		return apperrors.NewTransportError("CONNECTION_FAILED", "printer unreachable", errors.New("refused"))
	}})
	ctx := context.Background()

	job, _ := queue.CreateJob(ctx, service.CreateJobRequest{PrinterID: "p1", Content: "x"})

	n, err := pool.Drain(ctx, "p1")

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, _ := queue.GetJob(ctx, job.ID)
	assert.Equal(t, domain.JobStatusRetry, got.Status)
	assert.Equal(t, "CONNECTION_FAILED", got.ErrorCode)
	assert.Equal(t, 1, got.RetryCount)
}

func TestDrain_TimeoutNeverLeavesJobPrinting(t *testing.T) {
	pool, queue, _ := setup(t, &mockTransport{SendFunc: func(ctx context.Context, _ *domain.PrinterConfig, _ string, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx := context.Background()

	job, _ := queue.CreateJob(ctx, service.CreateJobRequest{PrinterID: "p1", Content: "x"})

	_, err := pool.Drain(ctx, "p1")

	require.NoError(t, err)
	got, _ := queue.GetJob(ctx, job.ID)
	assert.Equal(t, domain.JobStatusRetry, got.Status)
	assert.Equal(t, service.ErrorCodePrintTimeout, got.ErrorCode)
}

func TestDrain_SkipsWhenLeaseHeld(t *testing.T) {
	pool, queue, _ := setup(t, &mockTransport{SendFunc: func(context.Context, *domain.PrinterConfig, string, int) error {
		t.Fatal("must not print while another holder has the lease")
		return nil
	}})
	ctx := context.Background()
	_, _ = queue.CreateJob(ctx, service.CreateJobRequest{PrinterID: "p1", Content: "x"})

	ok, err := pool.locker.Acquire(ctx, "printer:p1", "other-instance", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := pool.Drain(ctx, "p1")

	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDrain_LeaseHeldAcrossBacklog(t *testing.T) {
	var inFlight, maxInFlight, secondPrints int32
	track := func() {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if cur <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, cur) {
				break
			}
		}
		time.Sleep(40 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}

	first, queue, ps := setup(t, &mockTransport{SendFunc: func(context.Context, *domain.PrinterConfig, string, int) error {
		track()
		return nil
	}})
	second := NewPool(queue, ps, &mockTransport{SendFunc: func(context.Context, *domain.PrinterConfig, string, int) error {
		atomic.AddInt32(&secondPrints, 1)
		track()
		return nil
	}}, first.locker, Config{
		PollInterval: 10 * time.Millisecond,
		PrintTimeout: 50 * time.Millisecond,
	}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, _ = queue.CreateJob(ctx, service.CreateJobRequest{PrinterID: "p1", Content: "ticket"})
	}

	var firstDone int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstDone, _ = first.Drain(ctx, "p1")
	}()

	time.Sleep(150 * time.Millisecond)
	n, err := second.Drain(ctx, "p1")
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int32(0), atomic.LoadInt32(&secondPrints))
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.Equal(t, 8, firstDone)
}

func TestDrain_ReleasesLeaseWhenIdle(t *testing.T) {
	pool, queue, _ := setup(t, &mockTransport{SendFunc: func(context.Context, *domain.PrinterConfig, string, int) error {
		return nil
	}})
	ctx := context.Background()
	_, _ = queue.CreateJob(ctx, service.CreateJobRequest{PrinterID: "p1", Content: "x"})

	n, err := pool.Drain(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := pool.locker.Acquire(ctx, "printer:p1", "other-instance", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_OneAttemptAtATimePerPrinter(t *testing.T) {
	var inFlight, maxInFlight int32
	var mu sync.Mutex
	perPrinter := map[string]int{}

	pool, queue, _ := setup(t, &mockTransport{SendFunc: func(_ context.Context, p *domain.PrinterConfig, _ string, _ int) error {
		mu.Lock()
		perPrinter[p.ID]++
		mu.Unlock()
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if cur <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}})
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 5; i++ {
		_, _ = queue.CreateJob(ctx, service.CreateJobRequest{PrinterID: "p1", Content: "a"})
	}

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return perPrinter["p1"] == 5
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestMemoryLocker_Expiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Acquire(ctx, "k", "a", time.Second)
	assert.True(t, ok)
	ok, _ = l.Acquire(ctx, "k", "b", time.Second)
	assert.False(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = l.Acquire(ctx, "k", "b", time.Second)
	assert.True(t, ok, "expired lease can be taken over")

	require.NoError(t, l.Release(ctx, "k", "b"))
	ok, _ = l.Acquire(ctx, "k", "a", time.Second)
	assert.True(t, ok)
}

func TestMemoryLocker_OwnerRenewsAndReleases(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Acquire(ctx, "k", "a", time.Second)
	require.True(t, ok)

	now = now.Add(800 * time.Millisecond)
	ok, _ = l.Acquire(ctx, "k", "a", time.Second)
	assert.True(t, ok, "holder renews its own lease")

	now = now.Add(800 * time.Millisecond)
	ok, _ = l.Acquire(ctx, "k", "b", time.Second)
	assert.False(t, ok, "renewed lease has not expired")

	require.NoError(t, l.Release(ctx, "k", "b"))
	ok, _ = l.Acquire(ctx, "k", "b", time.Second)
	assert.False(t, ok, "release by another owner leaves the lease alone")

	require.NoError(t, l.Release(ctx, "k", "a"))
	ok, _ = l.Acquire(ctx, "k", "b", time.Second)
	assert.True(t, ok)
}
