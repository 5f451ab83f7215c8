package repository

import (
	"context"
	"database/sql"
	"fmt"

	"kitchenops/internal/domain"
	"kitchenops/internal/errors"
)

type MySQLDeviceRepository struct {
	db *sql.DB
}

func NewMySQLDeviceRepository(db *sql.DB) *MySQLDeviceRepository {
	return &MySQLDeviceRepository{db: db}
}

func (r *MySQLDeviceRepository) Get(ctx context.Context, id string) (*domain.NotificationDevice, error) {
	query := `
		SELECT id, branchId, name, type, address, active, createdAt
		FROM NotificationDevices
		WHERE id = ?
	`

	var d domain.NotificationDevice
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.BranchID, &d.Name, &d.Type, &d.Address, &d.Active, &d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("device with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return &d, nil
}

// ListActive returns the branch's active devices, oldest registration first.
func (r *MySQLDeviceRepository) ListActive(ctx context.Context, branchID string) ([]domain.NotificationDevice, error) {
	query := `
		SELECT id, branchId, name, type, address, active, createdAt
		FROM NotificationDevices
		WHERE branchId = ? AND active = 1
		ORDER BY createdAt ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, branchID)
	if err != nil {
		return nil, fmt.Errorf("querying active devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.NotificationDevice
	for rows.Next() {
		var d domain.NotificationDevice
		if err := rows.Scan(&d.ID, &d.BranchID, &d.Name, &d.Type, &d.Address, &d.Active, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}
