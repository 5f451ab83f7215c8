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

type MySQLJobRepository struct {
	db *sql.DB
}

func NewMySQLJobRepository(db *sql.DB) *MySQLJobRepository {
	return &MySQLJobRepository{db: db}
}

const jobColumns = `
	id, branchId, orderId, printerId, stationId, status, priority, content, copies,
	retryCount, maxRetries, nextRetryAt, errorCode, errorMessage, durationMs,
	createdAt, startedAt, completedAt, updatedAt`

func scanJob(row interface{ Scan(...interface{}) error }) (*domain.PrinterJob, error) {
	var j domain.PrinterJob
	var orderID, stationID sql.NullString
	var duration sql.NullInt64
	var nextRetryAt, startedAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.BranchID, &orderID, &j.PrinterID, &stationID, &j.Status, &j.Priority, &j.Content, &j.Copies,
		&j.RetryCount, &j.MaxRetries, &nextRetryAt, &j.ErrorCode, &j.ErrorMessage, &duration,
		&j.CreatedAt, &startedAt, &completedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		j.OrderID = &orderID.String
	}
	if stationID.Valid {
		j.StationID = &stationID.String
	}
	if duration.Valid {
		d := duration.Int64
		j.DurationMs = &d
	}
	j.NextRetryAt = nullTime(nextRetryAt)
	j.StartedAt = nullTime(startedAt)
	j.CompletedAt = nullTime(completedAt)
	return &j, nil
}

func (r *MySQLJobRepository) Create(ctx context.Context, j *domain.PrinterJob) error {
	query := `INSERT INTO PrintJobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		j.ID, j.BranchID, j.OrderID, j.PrinterID, j.StationID, j.Status, j.Priority, j.Content, j.Copies,
		j.RetryCount, j.MaxRetries, j.NextRetryAt, j.ErrorCode, j.ErrorMessage, j.DurationMs,
		j.CreatedAt, j.StartedAt, j.CompletedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting print job: %w", err)
	}
	return nil
}

func (r *MySQLJobRepository) Get(ctx context.Context, id string) (*domain.PrinterJob, error) {
	query := `SELECT ` + jobColumns + ` FROM PrintJobs WHERE id = ?`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("print job with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying print job by id: %w", err)
	}
	return j, nil
}

func (r *MySQLJobRepository) Save(ctx context.Context, j *domain.PrinterJob) error {
	query := `
		UPDATE PrintJobs SET
			status = ?, retryCount = ?, maxRetries = ?, nextRetryAt = ?, errorCode = ?, errorMessage = ?,
			durationMs = ?, startedAt = ?, completedAt = ?, updatedAt = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		j.Status, j.RetryCount, j.MaxRetries, j.NextRetryAt, j.ErrorCode, j.ErrorMessage,
		j.DurationMs, j.StartedAt, j.CompletedAt, j.UpdatedAt,
		j.ID,
	)
	if err != nil {
		return fmt.Errorf("updating print job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.Get(ctx, j.ID); err != nil {
			return err
		}
	}
	return nil
}

// FindEligible returns PENDING jobs and RETRY jobs whose backoff has elapsed.
func (r *MySQLJobRepository) FindEligible(ctx context.Context, printerID string, now time.Time) ([]domain.PrinterJob, error) {
	query := `SELECT ` + jobColumns + ` FROM PrintJobs
		WHERE printerId = ?
		  AND (status = 'PENDING' OR (status = 'RETRY' AND (nextRetryAt IS NULL OR nextRetryAt <= ?)))
		ORDER BY createdAt ASC, id ASC`
	return r.query(ctx, query, printerID, now)
}

func (r *MySQLJobRepository) FindPrintingStartedBefore(ctx context.Context, cutoff time.Time) ([]domain.PrinterJob, error) {
	query := `SELECT ` + jobColumns + ` FROM PrintJobs
		WHERE status = 'PRINTING' AND startedAt < ?
		ORDER BY startedAt ASC`
	return r.query(ctx, query, cutoff)
}

// List returns one page of matching jobs, newest first, and the total count.
func (r *MySQLJobRepository) List(ctx context.Context, f domain.JobFilter) ([]domain.PrinterJob, int, error) {
	var where []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		where = append(where, clause)
		args = append(args, v)
	}
	if f.BranchID != "" {
		add("branchId = ?", f.BranchID)
	}
	if f.PrinterID != "" {
		add("printerId = ?", f.PrinterID)
	}
	if f.OrderID != "" {
		add("orderId = ?", f.OrderID)
	}
	if f.Status != "" {
		add("status = ?", f.Status)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM PrintJobs`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting print jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM PrintJobs` + cond + ` ORDER BY createdAt DESC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, domain.PageOffset(f.Page, f.Limit, total))
	}

	jobs, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *MySQLJobRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM PrintJobs WHERE status IN ('COMPLETED', 'CANCELLED') AND updatedAt < ?`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting finished print jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}

func (r *MySQLJobRepository) CountByStatus(ctx context.Context, branchID string) (map[domain.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM PrintJobs`
	var args []interface{}
	if branchID != "" {
		query += ` WHERE branchId = ?`
		args = append(args, branchID)
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting print jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status domain.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	return counts, nil
}

func (r *MySQLJobRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.PrinterJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying print jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.PrinterJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning print job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating print jobs: %w", err)
	}
	return jobs, nil
}
