package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kitchenops/internal/domain"
	"kitchenops/internal/errors"
)

type MySQLOrderRepository struct {
	db          *sql.DB
	maxAttempts int
	logger      *zap.Logger
}

func NewMySQLOrderRepository(db *sql.DB, maxAttempts int, logger *zap.Logger) *MySQLOrderRepository {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &MySQLOrderRepository{db: db, maxAttempts: maxAttempts, logger: logger}
}

const orderColumns = `
	id, number, branchId, tableId, serverId, serviceType, priority, status, paymentStatus,
	subtotal, tax, total, taxRate, guestCount, notes, cancellationReason,
	createdAt, updatedAt, confirmedAt, preparingAt, readyAt, servedAt, completedAt, cancelledAt, version`

const itemColumns = `
	id, orderId, productId, productName, quantity, unitPrice, subtotal, tax, total,
	stationId, course, status, seatNumber, modifiers, specialInstructions, notes,
	createdAt, sentToKitchenAt, startedPreparingAt, completedAt`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var tableID sql.NullString
	var confirmedAt, preparingAt, readyAt, servedAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.Number, &o.BranchID, &tableID, &o.ServerID, &o.ServiceType, &o.Priority, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.Tax, &o.Total, &o.TaxRate, &o.GuestCount, &o.Notes, &o.CancellationReason,
		&o.CreatedAt, &o.UpdatedAt, &confirmedAt, &preparingAt, &readyAt, &servedAt, &completedAt, &cancelledAt, &o.Version,
	)
	if err != nil {
		return nil, err
	}
	if tableID.Valid {
		o.TableID = &tableID.String
	}
	o.ConfirmedAt = timePtr(confirmedAt)
	o.PreparingAt = timePtr(preparingAt)
	o.ReadyAt = timePtr(readyAt)
	o.ServedAt = timePtr(servedAt)
	o.CompletedAt = timePtr(completedAt)
	o.CancelledAt = timePtr(cancelledAt)
	return &o, nil
}

func scanItem(row rowScanner) (domain.OrderItem, error) {
	var it domain.OrderItem
	var seat sql.NullInt64
	var modifiers []byte
	var sentAt, startedAt, completedAt sql.NullTime
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.Tax, &it.Total,
		&it.StationID, &it.Course, &it.Status, &seat, &modifiers, &it.SpecialInstructions, &it.Notes,
		&it.CreatedAt, &sentAt, &startedAt, &completedAt,
	)
	if err != nil {
		return it, err
	}
	if seat.Valid {
		n := int(seat.Int64)
		it.SeatNumber = &n
	}
	if len(modifiers) > 0 {
		if err := json.Unmarshal(modifiers, &it.Modifiers); err != nil {
			return it, fmt.Errorf("decoding modifiers of item %s: %w", it.ID, err)
		}
	}
	it.SentToKitchenAt = timePtr(sentAt)
	it.StartedPreparingAt = timePtr(startedAt)
	it.CompletedAt = timePtr(completedAt)
	return it, nil
}

func (r *MySQLOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO Orders (` + orderColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, query, orderArgs(order)...); err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}
		if err := upsertItems(ctx, tx, order.Items); err != nil {
			return err
		}
		return insertAudit(ctx, tx, order.ID, order.AuditLog)
	})
}

func (r *MySQLOrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM Orders WHERE id = ?`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("order with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying order by id: %w", err)
	}

	items, err := r.itemsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]

	audit, err := r.auditFor(ctx, id)
	if err != nil {
		return nil, err
	}
	order.AuditLog = audit
	return order, nil
}

func (r *MySQLOrderRepository) GetByItemID(ctx context.Context, itemID string) (*domain.Order, error) {
	var orderID string
	err := r.db.QueryRowContext(ctx, `SELECT orderId FROM OrderItems WHERE id = ?`, itemID).Scan(&orderID)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("item with id %s not found", itemID))
	}
	if err != nil {
		return nil, fmt.Errorf("querying item owner: %w", err)
	}
	return r.Get(ctx, orderID)
}

// Save writes the order, its items and any new audit entries in one
// transaction. The row is only updated when the stored version still matches
// order.Version; on success order.Version is advanced.
func (r *MySQLOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE Orders SET
				tableId = ?, serverId = ?, priority = ?, status = ?, paymentStatus = ?,
				subtotal = ?, tax = ?, total = ?, guestCount = ?, notes = ?, cancellationReason = ?,
				updatedAt = ?, confirmedAt = ?, preparingAt = ?, readyAt = ?, servedAt = ?,
				completedAt = ?, cancelledAt = ?, version = version + 1
			WHERE id = ? AND version = ?`

		result, err := tx.ExecContext(ctx, query,
			nullString(order.TableID), order.ServerID, order.Priority, order.Status, order.PaymentStatus,
			order.Subtotal, order.Tax, order.Total, order.GuestCount, order.Notes, order.CancellationReason,
			order.UpdatedAt, order.ConfirmedAt, order.PreparingAt, order.ReadyAt, order.ServedAt,
			order.CompletedAt, order.CancelledAt,
			order.ID, order.Version,
		)
		if err != nil {
			return fmt.Errorf("updating order: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM Orders WHERE id = ?`, order.ID).Scan(&exists)
			if err == sql.ErrNoRows {
				return errors.NewNotFoundError(fmt.Sprintf("order with id %s not found", order.ID))
			}
			if err != nil {
				return fmt.Errorf("checking order existence: %w", err)
			}
			return errors.NewConflictError("order was modified concurrently")
		}

		if err := upsertItems(ctx, tx, order.Items); err != nil {
			return err
		}
		return insertAudit(ctx, tx, order.ID, order.AuditLog)
	})
	if err != nil {
		return err
	}
	order.Version++
	return nil
}

// FindActive returns orders with their items. Audit logs are not loaded.
func (r *MySQLOrderRepository) FindActive(ctx context.Context, filter domain.ActiveOrderFilter) ([]domain.Order, error) {
	var where []string
	var args []interface{}
	if filter.BranchID != "" {
		where = append(where, "branchId = ?")
		args = append(args, filter.BranchID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}

	query := `SELECT ` + orderColumns + ` FROM Orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY createdAt ASC, id ASC"

	return r.queryOrders(ctx, query, args...)
}

func (r *MySQLOrderRepository) FindCreatedBetween(ctx context.Context, branchID string, from, to time.Time) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM Orders
		WHERE branchId = ? AND createdAt >= ? AND createdAt < ?
		ORDER BY createdAt ASC, id ASC`
	return r.queryOrders(ctx, query, branchID, from, to)
}

func (r *MySQLOrderRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *MySQLOrderRepository) itemsFor(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	query := `SELECT ` + itemColumns + ` FROM OrderItems
		WHERE orderId IN (` + placeholders(len(orderIDs)) + `)
		ORDER BY createdAt ASC, id ASC`
	args := make([]interface{}, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items[it.OrderID] = append(items[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}
	return items, nil
}

func (r *MySQLOrderRepository) auditFor(ctx context.Context, orderID string) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, timestamp, actor, action, beforeValue, afterValue, note
		FROM OrderAudit
		WHERE orderId = ?
		ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order audit: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Action, &e.Before, &e.After, &e.Note); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

func upsertItems(ctx context.Context, tx *sql.Tx, items []domain.OrderItem) error {
	query := `INSERT INTO OrderItems (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			quantity = VALUES(quantity), subtotal = VALUES(subtotal), tax = VALUES(tax), total = VALUES(total),
			status = VALUES(status), notes = VALUES(notes), sentToKitchenAt = VALUES(sentToKitchenAt),
			startedPreparingAt = VALUES(startedPreparingAt), completedAt = VALUES(completedAt)`

	for _, it := range items {
		modifiers, err := json.Marshal(it.Modifiers)
		if err != nil {
			return fmt.Errorf("encoding modifiers of item %s: %w", it.ID, err)
		}
		var seat interface{}
		if it.SeatNumber != nil {
			seat = *it.SeatNumber
		}
		_, err = tx.ExecContext(ctx, query,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.Subtotal, it.Tax, it.Total,
			it.StationID, it.Course, it.Status, seat, modifiers, it.SpecialInstructions, it.Notes,
			it.CreatedAt, it.SentToKitchenAt, it.StartedPreparingAt, it.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting order item %s: %w", it.ID, err)
		}
	}
	return nil
}

// insertAudit relies on INSERT IGNORE so entries already stored are skipped
// and existing rows are never rewritten.
func insertAudit(ctx context.Context, tx *sql.Tx, orderID string, entries []domain.AuditEntry) error {
	query := `
		INSERT IGNORE INTO OrderAudit (id, orderId, timestamp, actor, action, beforeValue, afterValue, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query, e.ID, orderID, e.Timestamp, e.Actor, e.Action, e.Before, e.After, e.Note); err != nil {
			return fmt.Errorf("inserting audit entry: %w", err)
		}
	}
	return nil
}

func orderArgs(o *domain.Order) []interface{} {
	return []interface{}{
		o.ID, o.Number, o.BranchID, nullString(o.TableID), o.ServerID, o.ServiceType, o.Priority, o.Status, o.PaymentStatus,
		o.Subtotal, o.Tax, o.Total, o.TaxRate, o.GuestCount, o.Notes, o.CancellationReason,
		o.CreatedAt, o.UpdatedAt, o.ConfirmedAt, o.PreparingAt, o.ReadyAt, o.ServedAt, o.CompletedAt, o.CancelledAt, o.Version,
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
