package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenops/internal/domain"
	"kitchenops/internal/errors"
	"kitchenops/internal/testutil"
)

// Unit Tests

func TestNewRepositories(t *testing.T) {
	db := &sql.DB{}

	assert.Equal(t, db, NewMySQLDeviceRepository(db).db)
	assert.Equal(t, db, NewMySQLNotificationRepository(db).db)
}

// Integration Tests

func TestDeviceRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	_, err := db.Exec(`
		INSERT INTO NotificationDevices (id, branchId, name, type, address, active, createdAt) VALUES
			('pager-2', 'b1', 'Pager 2', 'PAGER', '', 1, '2026-10-19 10:00:00'),
			('pager-1', 'b1', 'Pager 1', 'PAGER', '', 1, '2026-10-19 09:00:00'),
			('sms', 'b1', 'SMS', 'SMS', '+100', 0, '2026-10-19 08:00:00')
	`)
	require.NoError(t, err)

	repo := NewMySQLDeviceRepository(db)
	ctx := context.Background()

	devices, err := repo.ListActive(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "pager-1", devices[0].ID)

	d, err := repo.Get(ctx, "sms")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceTypeSMS, d.Type)
	assert.False(t, d.Active)

	_, err = repo.Get(ctx, "nope")
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestNotificationRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLNotificationRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	orderID := "o1"

	rec := &domain.NotificationRecord{
		ID: "n1", BranchID: "b1", DeviceID: "pager-1", OrderID: &orderID,
		Message: "Order #7 is ready for pickup", Status: domain.NotificationPending, MaxRetries: 3,
		ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, rec))

	rec.Status = domain.NotificationSent
	rec.SentAt = &now
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, "o1", *got.OrderID)

	expired, err := repo.FindExpired(ctx, now.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Len(t, expired, 1)

	expired, err = repo.FindExpired(ctx, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, expired)

	list, err := repo.List(ctx, "b1", domain.NotificationSent)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
