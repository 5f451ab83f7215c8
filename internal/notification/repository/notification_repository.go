package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"kitchenops/internal/domain"
	"kitchenops/internal/errors"
)

type MySQLNotificationRepository struct {
	db *sql.DB
}

func NewMySQLNotificationRepository(db *sql.DB) *MySQLNotificationRepository {
	return &MySQLNotificationRepository{db: db}
}

const notificationColumns = `
	id, branchId, deviceId, orderId, message, status, retryCount, maxRetries, lastError,
	expiresAt, sentAt, acknowledgedAt, createdAt, updatedAt`

func scanNotification(row interface{ Scan(...interface{}) error }) (*domain.NotificationRecord, error) {
	var n domain.NotificationRecord
	var orderID sql.NullString
	var sentAt, ackAt sql.NullTime
	err := row.Scan(
		&n.ID, &n.BranchID, &n.DeviceID, &orderID, &n.Message, &n.Status, &n.RetryCount, &n.MaxRetries, &n.LastError,
		&n.ExpiresAt, &sentAt, &ackAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		n.OrderID = &orderID.String
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	if ackAt.Valid {
		n.AcknowledgedAt = &ackAt.Time
	}
	return &n, nil
}

func (r *MySQLNotificationRepository) Create(ctx context.Context, n *domain.NotificationRecord) error {
	query := `INSERT INTO Notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.BranchID, n.DeviceID, n.OrderID, n.Message, n.Status, n.RetryCount, n.MaxRetries, n.LastError,
		n.ExpiresAt, n.SentAt, n.AcknowledgedAt, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (r *MySQLNotificationRepository) Get(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	query := `SELECT ` + notificationColumns + ` FROM Notifications WHERE id = ?`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("notification with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification by id: %w", err)
	}
	return n, nil
}

func (r *MySQLNotificationRepository) Save(ctx context.Context, n *domain.NotificationRecord) error {
	query := `
		UPDATE Notifications SET
			status = ?, retryCount = ?, lastError = ?, expiresAt = ?, sentAt = ?, acknowledgedAt = ?, updatedAt = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		n.Status, n.RetryCount, n.LastError, n.ExpiresAt, n.SentAt, n.AcknowledgedAt, n.UpdatedAt,
		n.ID,
	)
	if err != nil {
		return fmt.Errorf("updating notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.Get(ctx, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// FindExpired returns PENDING and SENT records whose expiry is before now.
func (r *MySQLNotificationRepository) FindExpired(ctx context.Context, now time.Time) ([]domain.NotificationRecord, error) {
	query := `SELECT ` + notificationColumns + ` FROM Notifications
		WHERE status IN ('PENDING', 'SENT') AND expiresAt < ?
		ORDER BY expiresAt ASC`
	return r.query(ctx, query, now)
}

func (r *MySQLNotificationRepository) List(ctx context.Context, branchID string, status domain.NotificationStatus) ([]domain.NotificationRecord, error) {
	var where []string
	var args []interface{}
	if branchID != "" {
		where = append(where, "branchId = ?")
		args = append(args, branchID)
	}
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}

	query := `SELECT ` + notificationColumns + ` FROM Notifications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY createdAt DESC"
	return r.query(ctx, query, args...)
}

func (r *MySQLNotificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.NotificationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var records []domain.NotificationRecord
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		records = append(records, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return records, nil
}
