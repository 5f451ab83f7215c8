package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "kitchenops/internal/errors"
)

const (
	AuditActionStatusChange = "STATUS_CHANGE"
	AuditActionRecall       = "RECALL"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusServed, OrderStatusCancelled},
	OrderStatusServed:    {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

// forwardChain is the happy path walked by AdvanceTo.
var forwardChain = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusServed,
	OrderStatusCompleted,
}

func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady,
		OrderStatusServed, OrderStatusCompleted, OrderStatusCancelled,
	}
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func chainIndex(s OrderStatus) int {
	for i, c := range forwardChain {
		if c == s {
			return i
		}
	}
	return -1
}

// Transition applies one legal status change, stamps the status timestamp the
// first time it is entered, and appends an audit entry. For CANCELLED the note
// is the mandatory cancellation reason.
func (o *Order) Transition(to OrderStatus, actor, note string, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return apperrors.NewInvalidTransitionError("order", string(o.Status), string(to))
	}
	if to == OrderStatusCancelled && strings.TrimSpace(note) == "" {
		return apperrors.NewValidationError("cancellation reason is required", apperrors.ValidationDetail{
			Field:   "reason",
			Message: "reason must not be empty",
		})
	}

	from := o.Status
	o.Status = to
	o.stampStatus(to, now)
	o.applyItemEffects(to, now)
	if to == OrderStatusCancelled {
		o.CancellationReason = strings.TrimSpace(note)
	}
	o.UpdatedAt = now
	o.Audit(actor, AuditActionStatusChange, string(from), string(to), note, now)
	return nil
}

// AdvanceTo walks the forward chain one legal step at a time until target is
// reached. Reaching a status the order already has is a no-op.
func (o *Order) AdvanceTo(target OrderStatus, actor, note string, now time.Time) ([]OrderStatus, error) {
	if o.Status == target {
		return nil, nil
	}
	from, to := chainIndex(o.Status), chainIndex(target)
	if from < 0 || to < 0 || to < from {
		return nil, apperrors.NewInvalidTransitionError("order", string(o.Status), string(target))
	}

	var applied []OrderStatus
	for i := from + 1; i <= to; i++ {
		if err := o.Transition(forwardChain[i], actor, note, now); err != nil {
			return applied, err
		}
		applied = append(applied, forwardChain[i])
	}
	return applied, nil
}

// RollUp derives the order status from its live items: all READY or SERVED
// means READY, all SERVED means SERVED. It never moves an order backwards and
// repeated calls after the first are no-ops.
func (o *Order) RollUp(actor string, now time.Time) ([]OrderStatus, error) {
	if o.Status.IsTerminal() || o.Status == OrderStatusPending {
		return nil, nil
	}
	items := o.LiveItems()
	if len(items) == 0 {
		return nil, nil
	}

	allServed, allDone := true, true
	for _, item := range items {
		if item.Status != ItemStatusServed {
			allServed = false
		}
		if item.Status != ItemStatusServed && item.Status != ItemStatusReady {
			allDone = false
		}
	}

	var target OrderStatus
	switch {
	case allServed:
		target = OrderStatusServed
	case allDone:
		target = OrderStatusReady
	default:
		return nil, nil
	}
	if chainIndex(o.Status) >= chainIndex(target) {
		return nil, nil
	}
	return o.AdvanceTo(target, actor, "auto status roll-up", now)
}

// Recall undoes a premature bump: the order returns to PREPARING and every
// READY or SERVED item goes back to PREPARING. Original preparation
// timestamps are not restored.
func (o *Order) Recall(actor, note string, now time.Time) error {
	switch o.Status {
	case OrderStatusPreparing, OrderStatusReady, OrderStatusServed:
	default:
		return apperrors.NewInvalidTransitionError("order", string(o.Status), string(OrderStatusPreparing))
	}

	from := o.Status
	o.Status = OrderStatusPreparing
	for i := range o.Items {
		item := &o.Items[i]
		if item.Status == ItemStatusReady || item.Status == ItemStatusServed {
			item.Status = ItemStatusPreparing
			item.CompletedAt = nil
		}
	}
	o.UpdatedAt = now
	o.Audit(actor, AuditActionRecall, string(from), string(OrderStatusPreparing), note, now)
	return nil
}

func (o *Order) stampStatus(s OrderStatus, now time.Time) {
	t := now
	set := func(field **time.Time) {
		if *field == nil {
			*field = &t
		}
	}
	switch s {
	case OrderStatusConfirmed:
		set(&o.ConfirmedAt)
	case OrderStatusPreparing:
		set(&o.PreparingAt)
	case OrderStatusReady:
		set(&o.ReadyAt)
	case OrderStatusServed:
		set(&o.ServedAt)
	case OrderStatusCompleted:
		set(&o.CompletedAt)
	case OrderStatusCancelled:
		set(&o.CancelledAt)
	}
}

func (o *Order) applyItemEffects(s OrderStatus, now time.Time) {
	for i := range o.Items {
		item := &o.Items[i]
		switch s {
		case OrderStatusConfirmed:
			item.markSent(now)
		case OrderStatusPreparing:
			item.markSent(now)
			if item.Status == ItemStatusPending {
				item.Status = ItemStatusPreparing
				item.markStarted(now)
			}
		case OrderStatusCancelled:
			if item.Status != ItemStatusServed {
				item.Status = ItemStatusCancelled
			}
		}
	}
}

// Audit appends an entry to the append-only audit log.
func (o *Order) Audit(actor, action, before, after, note string, now time.Time) {
	o.AuditLog = append(o.AuditLog, AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: now,
		Actor:     actor,
		Action:    action,
		Before:    before,
		After:     after,
		Note:      note,
	})
}

func (i *OrderItem) markSent(now time.Time) {
	if i.SentToKitchenAt == nil {
		t := now
		i.SentToKitchenAt = &t
	}
}

func (i *OrderItem) markStarted(now time.Time) {
	if i.StartedPreparingAt == nil {
		t := now
		i.StartedPreparingAt = &t
	}
}

// Start moves a single item from PENDING to PREPARING.
func (i *OrderItem) Start(now time.Time) error {
	switch i.Status {
	case ItemStatusPending:
		i.Status = ItemStatusPreparing
		i.markSent(now)
		i.markStarted(now)
		return nil
	case ItemStatusPreparing:
		return apperrors.NewAlreadyInStateError("item", string(i.Status))
	}
	return apperrors.NewInvalidTransitionError("item", string(i.Status), string(ItemStatusPreparing))
}

func (i *OrderItem) MarkReady(notes string, now time.Time) error {
	switch i.Status {
	case ItemStatusReady:
		return apperrors.NewAlreadyInStateError("item", string(i.Status))
	case ItemStatusServed, ItemStatusCancelled:
		return apperrors.NewInvalidTransitionError("item", string(i.Status), string(ItemStatusReady))
	}
	i.Status = ItemStatusReady
	t := now
	i.CompletedAt = &t
	if strings.TrimSpace(notes) != "" {
		i.Notes = notes
	}
	return nil
}

// Bump marks the item SERVED. Only a recall can bring it back.
func (i *OrderItem) Bump(now time.Time) error {
	switch i.Status {
	case ItemStatusServed:
		return apperrors.NewAlreadyInStateError("item", string(i.Status))
	case ItemStatusCancelled:
		return apperrors.NewInvalidTransitionError("item", string(i.Status), string(ItemStatusServed))
	}
	i.Status = ItemStatusServed
	if i.CompletedAt == nil {
		t := now
		i.CompletedAt = &t
	}
	return nil
}
