package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenops/internal/commons"
	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/events"
	"kitchenops/internal/printing/routing"
	"kitchenops/internal/testutil"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type mockNotifier struct {
	NotifyOrderReadyFunc func(ctx context.Context, order *domain.Order, deviceID string) (*domain.NotificationRecord, error)
	notified             []string
}

func (m *mockNotifier) NotifyOrderReady(ctx context.Context, order *domain.Order, deviceID string) (*domain.NotificationRecord, error) {
	m.notified = append(m.notified, order.ID)
	if m.NotifyOrderReadyFunc != nil {
		return m.NotifyOrderReadyFunc(ctx, order, deviceID)
	}
	return &domain.NotificationRecord{ID: "n1"}, nil
}

type mockRouter struct {
	RouteFunc func(ctx context.Context, order *domain.Order, strategy routing.Strategy, opts routing.Options) ([]*domain.PrinterJob, error)
	routed    []routing.Options
}

func (m *mockRouter) RouteOrderToPrinters(ctx context.Context, order *domain.Order, strategy routing.Strategy, opts routing.Options) ([]*domain.PrinterJob, error) {
	m.routed = append(m.routed, opts)
	if m.RouteFunc != nil {
		return m.RouteFunc(ctx, order, strategy, opts)
	}
	return []*domain.PrinterJob{{ID: "job-1"}}, nil
}

type fixture struct {
	svc       *StatusService
	orders    *testutil.OrderStore
	tables    *testutil.TableCollaborator
	notifier  *mockNotifier
	router    *mockRouter
	publisher *events.Recorder
}

func newFixture(orders ...domain.Order) *fixture {
	f := &fixture{
		orders:    testutil.NewOrderStore(orders...),
		tables:    &testutil.TableCollaborator{},
		notifier:  &mockNotifier{},
		router:    &mockRouter{},
		publisher: &events.Recorder{},
	}
	f.svc = NewStatusService(f.orders, f.tables, f.notifier, f.router, commons.NewKeyedMutex(), f.publisher, routing.StrategyStationBased, zap.NewNop())
	f.svc.now = func() time.Time { return t0 }
	return f
}

func storedOrder(id string, status domain.OrderStatus, serviceType domain.ServiceType, items ...domain.OrderItem) domain.Order {
	table := "T4"
	return domain.Order{
		ID:          id,
		Number:      "42",
		BranchID:    "b1",
		TableID:     &table,
		ServiceType: serviceType,
		Priority:    domain.PriorityNormal,
		Status:      status,
		TaxRate:     decimal.RequireFromString("0.10"),
		CreatedAt:   t0.Add(-time.Hour),
		Items:       items,
	}
}

func pricedItem(id string, qty int, price string) domain.OrderItem {
	return domain.OrderItem{ID: id, Quantity: qty, UnitPrice: decimal.RequireFromString(price), Status: domain.ItemStatusPending}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture()

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		BranchID:    "b1",
		ServiceType: domain.ServiceTypeTakeout,
		TaxRate:     decimal.RequireFromString("0.08"),
		Items: []CreateItemRequest{
			{ProductName: "Burger", Quantity: 2, UnitPrice: decimal.RequireFromString("9.50"), StationID: "grill",
				Modifiers: []domain.Modifier{{Name: "Cheese", Option: "extra", PriceDelta: decimal.RequireFromString("1.00")}}},
			{ProductName: "Soda", Quantity: 1, UnitPrice: decimal.RequireFromString("2.25"), Course: domain.CourseBeverage},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PriorityNormal, order.Priority)
	assert.Len(t, order.Number, 6)
	assert.Equal(t, domain.CourseMainCourse, order.Items[0].Course)
	assert.Equal(t, "23.25", order.Subtotal.StringFixed(2))
	assert.Equal(t, "1.86", order.Tax.StringFixed(2))
	assert.Equal(t, "25.11", order.Total.StringFixed(2))
	assert.Equal(t, []string{events.TopicOrderUpdated}, f.publisher.Topics())

	_, err = f.orders.Get(context.Background(), order.ID)
	assert.NoError(t, err)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ServiceType: "BOAT",
		Items:       []CreateItemRequest{{Quantity: 0}},
	})

	ve, ok := apperrors.IsValidationError(err)
	require.True(t, ok)
	fields := make([]string, len(ve.Details))
	for i, d := range ve.Details {
		fields[i] = d.Field
	}
	assert.ElementsMatch(t, []string{"branchId", "serviceType", "items[0].quantity"}, fields)
}

func TestStartPreparing_AutoPrints(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusConfirmed, domain.ServiceTypeDineIn, pricedItem("a", 1, "5")))

	order, err := f.svc.StartPreparing(context.Background(), "o1", "chef")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPreparing, order.Status)
	assert.Equal(t, []routing.Options{{AutoPrintOnly: true}}, f.router.routed)
}

func TestStartPreparing_PrintFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusConfirmed, domain.ServiceTypeDineIn, pricedItem("a", 1, "5")))
	f.router.RouteFunc = func(context.Context, *domain.Order, routing.Strategy, routing.Options) ([]*domain.PrinterJob, error) {
		return nil, apperrors.NewNotFoundError("no active printers")
	}

	_, err := f.svc.StartPreparing(context.Background(), "o1", "chef")

	require.NoError(t, err)
	got, _ := f.orders.Get(context.Background(), "o1")
	assert.Equal(t, domain.OrderStatusPreparing, got.Status)
}

func TestMarkReady_NotifiesPickupOnly(t *testing.T) {
	f := newFixture(
		storedOrder("pickup", domain.OrderStatusPreparing, domain.ServiceTypePickup),
		storedOrder("dinein", domain.OrderStatusPreparing, domain.ServiceTypeDineIn),
	)
	ctx := context.Background()

	_, err := f.svc.MarkReady(ctx, "pickup", "chef")
	require.NoError(t, err)
	_, err = f.svc.MarkReady(ctx, "dinein", "chef")
	require.NoError(t, err)

	assert.Equal(t, []string{"pickup"}, f.notifier.notified)
}

func TestComplete_ReleasesTableForCleaning(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusServed, domain.ServiceTypeDineIn))

	_, err := f.svc.Complete(context.Background(), "o1", "server")

	require.NoError(t, err)
	assert.Equal(t, []testutil.TableRelease{{TableID: "T4", Status: domain.TableStatusNeedsCleaning}}, f.tables.Releases)
}

func TestCancel_ReleasesTableAvailable(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusConfirmed, domain.ServiceTypeDineIn, pricedItem("a", 1, "5")))

	order, err := f.svc.Cancel(context.Background(), "o1", "manager", "guest left")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.Equal(t, "guest left", order.CancellationReason)
	assert.Equal(t, domain.ItemStatusCancelled, order.Items[0].Status)
	assert.Equal(t, []testutil.TableRelease{{TableID: "T4", Status: domain.TableStatusAvailable}}, f.tables.Releases)
}

func TestCancel_TakeoutDoesNotTouchTables(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusConfirmed, domain.ServiceTypeTakeout))

	_, err := f.svc.Cancel(context.Background(), "o1", "manager", "duplicate")

	require.NoError(t, err)
	assert.Empty(t, f.tables.Releases)
}

func TestCancel_RequiresReason(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusConfirmed, domain.ServiceTypeDineIn))

	_, err := f.svc.Cancel(context.Background(), "o1", "manager", "")

	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)
	got, _ := f.orders.Get(context.Background(), "o1")
	assert.Equal(t, domain.OrderStatusConfirmed, got.Status)
	assert.Empty(t, f.publisher.Events)
}

func TestTransition_IllegalLeavesOrderUnchanged(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusPending, domain.ServiceTypeDineIn))

	_, err := f.svc.Serve(context.Background(), "o1", "server")

	ite, ok := apperrors.IsInvalidTransitionError(err)
	require.True(t, ok)
	assert.Equal(t, "PENDING", ite.Current)
	assert.Equal(t, "SERVED", ite.Requested)
	assert.Zero(t, f.orders.Saves)
}

func TestTableReleaseFailureIsLogged(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusServed, domain.ServiceTypeDineIn))
	f.tables.Err = errors.New("table service down")

	order, err := f.svc.Complete(context.Background(), "o1", "server")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
}

func TestUpdateItemQuantity(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusConfirmed, domain.ServiceTypeDineIn,
		pricedItem("a", 1, "4.00"),
		pricedItem("b", 1, "6.00"),
	))
	ctx := context.Background()

	order, err := f.svc.UpdateItemQuantity(ctx, "o1", "a", 3, "server")

	require.NoError(t, err)
	assert.Equal(t, 3, order.Item("a").Quantity)
	assert.Equal(t, "18.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "19.80", order.Total.StringFixed(2))
	assert.Equal(t, domain.AuditActionItemUpdated, order.AuditLog[0].Action)

	_, err = f.svc.UpdateItemQuantity(ctx, "o1", "a", 0, "server")
	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)
}

func TestUpdateItemQuantity_AfterPreparingConflicts(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusPreparing, domain.ServiceTypeDineIn, pricedItem("a", 1, "4.00")))

	_, err := f.svc.UpdateItemQuantity(context.Background(), "o1", "a", 2, "server")

	_, ok := apperrors.IsConflictError(err)
	assert.True(t, ok)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusPending, domain.ServiceTypeDineIn,
		pricedItem("a", 1, "4.00"),
		pricedItem("b", 2, "6.00"),
	))
	ctx := context.Background()

	order, err := f.svc.RemoveItem(ctx, "o1", "b", "server")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusCancelled, order.Item("b").Status)
	assert.Equal(t, "4.00", order.Subtotal.StringFixed(2))

	_, err = f.svc.RemoveItem(ctx, "o1", "a", "server")
	_, ok := apperrors.IsConflictError(err)
	assert.True(t, ok, "removing the last live item must be refused")

	_, err = f.svc.RemoveItem(ctx, "o1", "b", "server")
	_, ok = apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestRemoveItem_RollsUpWhenRestIsReady(t *testing.T) {
	ready := pricedItem("a", 1, "4.00")
	ready.Status = domain.ItemStatusReady
	f := newFixture(storedOrder("o1", domain.OrderStatusConfirmed, domain.ServiceTypePickup,
		ready,
		pricedItem("b", 2, "6.00"),
	))
	ctx := context.Background()

	order, err := f.svc.RemoveItem(ctx, "o1", "b", "server")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReady, order.Status)
	got, _ := f.orders.Get(ctx, "o1")
	assert.Equal(t, domain.OrderStatusReady, got.Status)
	assert.Len(t, f.router.routed, 1)
	assert.Equal(t, []string{"o1"}, f.notifier.notified)
}

func TestUpdateItemQuantity_NoRollUpWhileItemsPending(t *testing.T) {
	f := newFixture(storedOrder("o1", domain.OrderStatusConfirmed, domain.ServiceTypePickup,
		pricedItem("a", 1, "4.00"),
	))

	order, err := f.svc.UpdateItemQuantity(context.Background(), "o1", "a", 3, "server")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.Empty(t, f.router.routed)
	assert.Empty(t, f.notifier.notified)
}

func TestAfterTransition_RolledUpStatuses(t *testing.T) {
	f := newFixture()
	order := storedOrder("o1", domain.OrderStatusReady, domain.ServiceTypeDriveThru)

	f.svc.AfterTransition(context.Background(), &order, []domain.OrderStatus{domain.OrderStatusPreparing, domain.OrderStatusReady})

	assert.Len(t, f.router.routed, 1)
	assert.Equal(t, []string{"o1"}, f.notifier.notified)
}
