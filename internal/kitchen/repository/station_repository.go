package repository

import (
	"context"
	"database/sql"
	"fmt"

	"kitchenops/internal/domain"
	"kitchenops/internal/errors"
)

type MySQLStationRepository struct {
	db *sql.DB
}

func NewMySQLStationRepository(db *sql.DB) *MySQLStationRepository {
	return &MySQLStationRepository{db: db}
}

const stationColumns = `
	id, branchId, name, defaultPrepTime, warningThreshold, criticalThreshold,
	displayOrder, autoPrint, printerId, active, createdAt, updatedAt`

func scanStation(row interface{ Scan(...interface{}) error }) (*domain.KitchenStationConfig, error) {
	var st domain.KitchenStationConfig
	var printerID sql.NullString
	err := row.Scan(
		&st.ID, &st.BranchID, &st.Name, &st.DefaultPrepTime, &st.WarningThreshold, &st.CriticalThreshold,
		&st.DisplayOrder, &st.AutoPrint, &printerID, &st.Active, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if printerID.Valid {
		st.PrinterID = &printerID.String
	}
	return &st, nil
}

func (r *MySQLStationRepository) Get(ctx context.Context, id string) (*domain.KitchenStationConfig, error) {
	query := `SELECT ` + stationColumns + ` FROM KitchenStations WHERE id = ?`

	st, err := scanStation(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("station with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying station by id: %w", err)
	}
	return st, nil
}

// ListActive returns active stations in display order. An empty branch lists
// every branch.
func (r *MySQLStationRepository) ListActive(ctx context.Context, branchID string) ([]domain.KitchenStationConfig, error) {
	query := `SELECT ` + stationColumns + ` FROM KitchenStations WHERE active = 1`
	var args []interface{}
	if branchID != "" {
		query += ` AND branchId = ?`
		args = append(args, branchID)
	}
	query += ` ORDER BY displayOrder ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying active stations: %w", err)
	}
	defer rows.Close()

	var stations []domain.KitchenStationConfig
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		stations = append(stations, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stations: %w", err)
	}
	return stations, nil
}
