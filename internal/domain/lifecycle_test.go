package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "kitchenops/internal/errors"
)

var baseTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newOrder(status OrderStatus, items ...OrderItem) *Order {
	return &Order{
		ID:          "order-1",
		Number:      "1042",
		BranchID:    "branch-1",
		ServiceType: ServiceTypeDineIn,
		Priority:    PriorityNormal,
		Status:      status,
		CreatedAt:   baseTime,
		Items:       items,
	}
}

func item(id string, status ItemStatus) OrderItem {
	return OrderItem{ID: id, OrderID: "order-1", Quantity: 1, Status: status, CreatedAt: baseTime}
}

func timestampFor(o *Order, s OrderStatus) *time.Time {
	switch s {
	case OrderStatusConfirmed:
		return o.ConfirmedAt
	case OrderStatusPreparing:
		return o.PreparingAt
	case OrderStatusReady:
		return o.ReadyAt
	case OrderStatusServed:
		return o.ServedAt
	case OrderStatusCompleted:
		return o.CompletedAt
	case OrderStatusCancelled:
		return o.CancelledAt
	}
	return nil
}

func countSet(o *Order) int {
	n := 0
	for _, s := range AllOrderStatuses() {
		if timestampFor(o, s) != nil {
			n++
		}
	}
	return n
}

func TestTransition_AllPairs(t *testing.T) {
	now := baseTime.Add(5 * time.Minute)

	for _, from := range AllOrderStatuses() {
		for _, to := range AllOrderStatuses() {
			o := newOrder(from)
			err := o.Transition(to, "chef", "reason", now)

			if CanTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, o.Status)
				require.NotNil(t, timestampFor(o, to))
				assert.Equal(t, now, *timestampFor(o, to))
				assert.Equal(t, 1, countSet(o), "only the entered status is stamped")
				require.Len(t, o.AuditLog, 1)
				assert.Equal(t, string(from), o.AuditLog[0].Before)
				assert.Equal(t, string(to), o.AuditLog[0].After)
				continue
			}

			ite, ok := apperrors.IsInvalidTransitionError(err)
			require.True(t, ok, "%s -> %s should be rejected", from, to)
			assert.Equal(t, string(from), ite.Current)
			assert.Equal(t, string(to), ite.Requested)
			assert.Equal(t, from, o.Status)
			assert.Equal(t, 0, countSet(o))
			assert.Empty(t, o.AuditLog)
		}
	}
}

func TestTransition_CancelRequiresReason(t *testing.T) {
	o := newOrder(OrderStatusConfirmed)

	err := o.Transition(OrderStatusCancelled, "manager", "   ", baseTime)

	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)
	assert.Equal(t, OrderStatusConfirmed, o.Status)
	assert.Empty(t, o.AuditLog)
}

func TestTransition_CancelCancelsOpenItems(t *testing.T) {
	o := newOrder(OrderStatusPreparing, item("a", ItemStatusPreparing), item("b", ItemStatusServed))

	require.NoError(t, o.Transition(OrderStatusCancelled, "manager", "customer left", baseTime))

	assert.Equal(t, "customer left", o.CancellationReason)
	assert.Equal(t, ItemStatusCancelled, o.Items[0].Status)
	assert.Equal(t, ItemStatusServed, o.Items[1].Status)
}

func TestTransition_TimestampSetOnce(t *testing.T) {
	o := newOrder(OrderStatusPreparing)
	first := baseTime.Add(time.Minute)

	require.NoError(t, o.Transition(OrderStatusReady, "chef", "", first))
	require.NoError(t, o.Recall("chef", "", first.Add(time.Minute)))
	require.NoError(t, o.Transition(OrderStatusReady, "chef", "", first.Add(2*time.Minute)))

	assert.Equal(t, first, *o.ReadyAt)
}

func TestTransition_PreparingStartsPendingItems(t *testing.T) {
	o := newOrder(OrderStatusConfirmed, item("a", ItemStatusPending))

	require.NoError(t, o.Transition(OrderStatusPreparing, "chef", "", baseTime))

	assert.Equal(t, ItemStatusPreparing, o.Items[0].Status)
	require.NotNil(t, o.Items[0].StartedPreparingAt)
	require.NotNil(t, o.Items[0].SentToKitchenAt)
}

func TestAdvanceTo_StepsThroughChain(t *testing.T) {
	o := newOrder(OrderStatusConfirmed)

	applied, err := o.AdvanceTo(OrderStatusReady, "system", "", baseTime)

	require.NoError(t, err)
	assert.Equal(t, []OrderStatus{OrderStatusPreparing, OrderStatusReady}, applied)
	assert.Len(t, o.AuditLog, 2)
}

func TestAdvanceTo_RejectsBackwards(t *testing.T) {
	o := newOrder(OrderStatusServed)

	_, err := o.AdvanceTo(OrderStatusReady, "system", "", baseTime)

	_, ok := apperrors.IsInvalidTransitionError(err)
	assert.True(t, ok)
}

func TestRollUp_ReadyExactlyOnce(t *testing.T) {
	o := newOrder(OrderStatusPreparing,
		item("a", ItemStatusPreparing),
		item("b", ItemStatusPreparing),
		item("c", ItemStatusPreparing),
	)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, o.Item(id).MarkReady("", baseTime))
		_, err := o.RollUp("chef", baseTime)
		require.NoError(t, err)
	}
	_, err := o.RollUp("chef", baseTime)
	require.NoError(t, err)

	assert.Equal(t, OrderStatusReady, o.Status)
	readyEntries := 0
	for _, e := range o.AuditLog {
		if e.After == string(OrderStatusReady) {
			readyEntries++
		}
	}
	assert.Equal(t, 1, readyEntries)
	assert.Len(t, o.AuditLog, 1)
}

func TestRollUp_IgnoresCancelledItems(t *testing.T) {
	o := newOrder(OrderStatusPreparing, item("a", ItemStatusServed), item("b", ItemStatusCancelled))

	applied, err := o.RollUp("chef", baseTime)

	require.NoError(t, err)
	assert.Equal(t, []OrderStatus{OrderStatusReady, OrderStatusServed}, applied)
}

func TestRollUp_NoopOnPendingAndTerminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled} {
		o := newOrder(s, item("a", ItemStatusServed))
		applied, err := o.RollUp("chef", baseTime)
		require.NoError(t, err)
		assert.Empty(t, applied)
		assert.Equal(t, s, o.Status)
	}
}

func TestRecall_RevertsItemsAndOrder(t *testing.T) {
	o := newOrder(OrderStatusPreparing, item("a", ItemStatusReady), item("b", ItemStatusPreparing))
	for _, id := range []string{"a", "b"} {
		_ = o.Item(id).Bump(baseTime)
	}
	_, err := o.RollUp("chef", baseTime)
	require.NoError(t, err)
	require.Equal(t, OrderStatusServed, o.Status)

	require.NoError(t, o.Recall("chef", "bumped by mistake", baseTime.Add(time.Minute)))

	assert.Equal(t, OrderStatusPreparing, o.Status)
	for _, it := range o.Items {
		assert.Equal(t, ItemStatusPreparing, it.Status)
		assert.Nil(t, it.CompletedAt)
	}
	assert.Equal(t, AuditActionRecall, o.AuditLog[len(o.AuditLog)-1].Action)
}

func TestRecall_RejectedForTerminalOrder(t *testing.T) {
	o := newOrder(OrderStatusCompleted)

	err := o.Recall("chef", "", baseTime)

	_, ok := apperrors.IsInvalidTransitionError(err)
	assert.True(t, ok)
}

func TestItem_MarkReadyTwice(t *testing.T) {
	it := item("a", ItemStatusPreparing)

	require.NoError(t, it.MarkReady("plated", baseTime))
	err := it.MarkReady("", baseTime)

	_, ok := apperrors.IsAlreadyInStateError(err)
	assert.True(t, ok)
	assert.Equal(t, "plated", it.Notes)
}

func TestItem_BumpCancelledRejected(t *testing.T) {
	it := item("a", ItemStatusCancelled)

	_, ok := apperrors.IsInvalidTransitionError(it.Bump(baseTime))
	assert.True(t, ok)
}

func TestItem_StartFromPending(t *testing.T) {
	it := item("a", ItemStatusPending)

	require.NoError(t, it.Start(baseTime))
	assert.Equal(t, ItemStatusPreparing, it.Status)

	_, ok := apperrors.IsAlreadyInStateError(it.Start(baseTime))
	assert.True(t, ok)
}
