package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kitchenops/internal/domain"
	"kitchenops/internal/errors"
)

// MySQLTableRepository is the table collaborator. Seating and cleaning
// workflows live elsewhere; this side only flips the status.
type MySQLTableRepository struct {
	db *sql.DB
}

func NewMySQLTableRepository(db *sql.DB) *MySQLTableRepository {
	return &MySQLTableRepository{db: db}
}

func (r *MySQLTableRepository) Release(ctx context.Context, tableID string, status domain.TableStatus) error {
	query := `UPDATE DiningTables SET status = ?, updatedAt = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), tableID)
	if err != nil {
		return fmt.Errorf("updating table status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("table with id %s not found", tableID))
	}
	return nil
}
