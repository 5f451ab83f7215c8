package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"kitchenops/internal/domain"
	"kitchenops/internal/errors"
)

type MySQLPrinterRepository struct {
	db *sql.DB
}

func NewMySQLPrinterRepository(db *sql.DB) *MySQLPrinterRepository {
	return &MySQLPrinterRepository{db: db}
}

const printerColumns = `
	id, branchId, name, connectionType, address, port, capabilities, active, status,
	totalJobs, successfulJobs, failedJobs, lastError, lastErrorAt, lastPrintAt, lastHealthCheckAt,
	stationMappings, createdAt, updatedAt`

func scanPrinter(row interface{ Scan(...interface{}) error }) (*domain.PrinterConfig, error) {
	var p domain.PrinterConfig
	var capabilities, mappings []byte
	var lastErrorAt, lastPrintAt, lastHealthCheckAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.BranchID, &p.Name, &p.ConnectionType, &p.Address, &p.Port, &capabilities, &p.Active, &p.Status,
		&p.TotalJobs, &p.SuccessfulJobs, &p.FailedJobs, &p.LastError, &lastErrorAt, &lastPrintAt, &lastHealthCheckAt,
		&mappings, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(capabilities) > 0 {
		if err := json.Unmarshal(capabilities, &p.Capabilities); err != nil {
			return nil, fmt.Errorf("decoding capabilities of printer %s: %w", p.ID, err)
		}
	}
	if len(mappings) > 0 {
		if err := json.Unmarshal(mappings, &p.StationMappings); err != nil {
			return nil, fmt.Errorf("decoding station mappings of printer %s: %w", p.ID, err)
		}
	}
	p.LastErrorAt = nullTime(lastErrorAt)
	p.LastPrintAt = nullTime(lastPrintAt)
	p.LastHealthCheckAt = nullTime(lastHealthCheckAt)
	return &p, nil
}

func printerJSON(p *domain.PrinterConfig) (capabilities, mappings []byte, err error) {
	capabilities, err = json.Marshal(p.Capabilities)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding capabilities: %w", err)
	}
	if p.StationMappings == nil {
		mappings = []byte("[]")
	} else if mappings, err = json.Marshal(p.StationMappings); err != nil {
		return nil, nil, fmt.Errorf("encoding station mappings: %w", err)
	}
	return capabilities, mappings, nil
}

func (r *MySQLPrinterRepository) Create(ctx context.Context, p *domain.PrinterConfig) error {
	capabilities, mappings, err := printerJSON(p)
	if err != nil {
		return err
	}

	query := `INSERT INTO Printers (` + printerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.BranchID, p.Name, p.ConnectionType, p.Address, p.Port, capabilities, p.Active, p.Status,
		p.TotalJobs, p.SuccessfulJobs, p.FailedJobs, p.LastError, p.LastErrorAt, p.LastPrintAt, p.LastHealthCheckAt,
		mappings, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting printer: %w", err)
	}
	return nil
}

func (r *MySQLPrinterRepository) Get(ctx context.Context, id string) (*domain.PrinterConfig, error) {
	query := `SELECT ` + printerColumns + ` FROM Printers WHERE id = ?`

	p, err := scanPrinter(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("printer with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying printer by id: %w", err)
	}
	return p, nil
}

func (r *MySQLPrinterRepository) Save(ctx context.Context, p *domain.PrinterConfig) error {
	capabilities, mappings, err := printerJSON(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE Printers SET
			name = ?, connectionType = ?, address = ?, port = ?, capabilities = ?, active = ?, status = ?,
			totalJobs = ?, successfulJobs = ?, failedJobs = ?, lastError = ?, lastErrorAt = ?,
			lastPrintAt = ?, lastHealthCheckAt = ?, stationMappings = ?, updatedAt = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		p.Name, p.ConnectionType, p.Address, p.Port, capabilities, p.Active, p.Status,
		p.TotalJobs, p.SuccessfulJobs, p.FailedJobs, p.LastError, p.LastErrorAt,
		p.LastPrintAt, p.LastHealthCheckAt, mappings, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating printer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	// MySQL reports 0 for an update that changes nothing, so confirm the row.
	if rowsAffected == 0 {
		if _, err := r.Get(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListActive returns active printers ordered by id. An empty branch lists
// every branch.
func (r *MySQLPrinterRepository) ListActive(ctx context.Context, branchID string) ([]domain.PrinterConfig, error) {
	query := `SELECT ` + printerColumns + ` FROM Printers WHERE active = 1`
	var args []interface{}
	if branchID != "" {
		query += ` AND branchId = ?`
		args = append(args, branchID)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying active printers: %w", err)
	}
	defer rows.Close()

	var printers []domain.PrinterConfig
	for rows.Next() {
		p, err := scanPrinter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning printer: %w", err)
		}
		printers = append(printers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating printers: %w", err)
	}
	return printers, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
