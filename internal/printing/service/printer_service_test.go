package service

import (
	"context"
	"errors"
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

type mockChecker struct {
	CheckFunc func(ctx context.Context, printer *domain.PrinterConfig) error
}

func (m *mockChecker) Check(ctx context.Context, printer *domain.PrinterConfig) error {
	return m.CheckFunc(ctx, printer)
}

func newTestPrinterService(checker HealthChecker, printers ...domain.PrinterConfig) (*PrinterService, *testutil.PrinterStore, *testutil.JobStore) {
	ps := testutil.NewPrinterStore(printers...)
	jobs := testutil.NewJobStore()
	queue := NewQueueService(jobs, ps, events.Nop{}, testQueueConfig(), zap.NewNop())
	svc := NewPrinterService(ps, checker, queue, time.Second, 42, zap.NewNop())
	svc.now = func() time.Time { return t0 }
	return svc, ps, jobs
}

func TestHealthCheck_Online(t *testing.T) {
	svc, _, _ := newTestPrinterService(&mockChecker{CheckFunc: func(context.Context, *domain.PrinterConfig) error { return nil }},
		domain.PrinterConfig{ID: "p1", BranchID: "b1", Active: true, Status: domain.PrinterStatusUnknown})

	p, err := svc.HealthCheck(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, domain.PrinterStatusOnline, p.Status)
	assert.Equal(t, t0, *p.LastHealthCheckAt)
}

func TestHealthCheck_OfflineReturnsTransportError(t *testing.T) {
	svc, ps, _ := newTestPrinterService(&mockChecker{CheckFunc: func(context.Context, *domain.PrinterConfig) error {
		return errors.New("no route to host")
	}}, domain.PrinterConfig{ID: "p1", Name: "Bar", BranchID: "b1", Active: true})

	_, err := svc.HealthCheck(context.Background(), "p1")

	te, ok := apperrors.IsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, "HEALTH_CHECK_FAILED", te.Code)
	stored, _ := ps.Get(context.Background(), "p1")
	assert.Equal(t, domain.PrinterStatusOffline, stored.Status)
	assert.Equal(t, "no route to host", stored.LastError)
}

func TestHealthCheckAll_CountsOnline(t *testing.T) {
	svc, _, _ := newTestPrinterService(&mockChecker{CheckFunc: func(_ context.Context, p *domain.PrinterConfig) error {
		if p.ID == "p2" {
			return apperrors.NewTransportError("CONNECTION_FAILED", "down", nil)
		}
		return nil
	}},
		domain.PrinterConfig{ID: "p1", BranchID: "b1", Active: true},
		domain.PrinterConfig{ID: "p2", BranchID: "b1", Active: true},
		domain.PrinterConfig{ID: "p3", BranchID: "b1", Active: false},
	)

	online, err := svc.HealthCheckAll(context.Background(), "b1")

	require.NoError(t, err)
	assert.Equal(t, 1, online)
}

func TestTestPrint_QueuesHighPriority(t *testing.T) {
	svc, _, jobs := newTestPrinterService(nil, domain.PrinterConfig{ID: "p1", Name: "Expo", BranchID: "b1", Active: true})

	job, err := svc.TestPrint(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, job.Priority)
	assert.Contains(t, job.Content, "TEST PRINT")
	assert.Contains(t, job.Content, "Printer: Expo")
	assert.Len(t, jobs.All(), 1)
}

func TestTestPrint_UnknownPrinter(t *testing.T) {
	svc, _, _ := newTestPrinterService(nil)

	_, err := svc.TestPrint(context.Background(), "missing")

	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestPrinterService(nil)

	_, err := svc.Register(context.Background(), RegisterPrinterRequest{ConnectionType: domain.ConnectionNetwork})

	ve, ok := apperrors.IsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Details, 3)
}

func TestRegister_Success(t *testing.T) {
	svc, ps, _ := newTestPrinterService(nil)

	p, err := svc.Register(context.Background(), RegisterPrinterRequest{
		BranchID: "b1", Name: "Grill", ConnectionType: domain.ConnectionNetwork, Address: "10.0.0.5", Port: 9100,
		StationMappings: []domain.StationMapping{{StationID: "GRILL", IsPrimary: true}},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.PrinterStatusUnknown, p.Status)
	active, _ := ps.ListActive(context.Background(), "b1")
	assert.Len(t, active, 1)
}
