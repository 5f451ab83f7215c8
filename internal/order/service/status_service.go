package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/events"
	"kitchenops/internal/printing/routing"
)

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	Save(ctx context.Context, order *domain.Order) error
}

type TableCollaborator interface {
	Release(ctx context.Context, tableID string, status domain.TableStatus) error
}

type ReadyNotifier interface {
	NotifyOrderReady(ctx context.Context, order *domain.Order, deviceID string) (*domain.NotificationRecord, error)
}

type PrintRouter interface {
	RouteOrderToPrinters(ctx context.Context, order *domain.Order, strategy routing.Strategy, opts routing.Options) ([]*domain.PrinterJob, error)
}

type OrderLocker interface {
	Lock(key string) func()
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{})
}

type CreateItemRequest struct {
	ProductID           string            `json:"productId"`
	ProductName         string            `json:"productName"`
	Quantity            int               `json:"quantity"`
	UnitPrice           decimal.Decimal   `json:"unitPrice"`
	StationID           string            `json:"stationId"`
	Course              domain.Course     `json:"course"`
	SeatNumber          *int              `json:"seatNumber,omitempty"`
	Modifiers           []domain.Modifier `json:"modifiers,omitempty"`
	SpecialInstructions string            `json:"specialInstructions,omitempty"`
}

type CreateOrderRequest struct {
	Number      string              `json:"number"`
	BranchID    string              `json:"branchId"`
	TableID     *string             `json:"tableId,omitempty"`
	ServerID    string              `json:"serverId"`
	ServiceType domain.ServiceType  `json:"serviceType"`
	Priority    domain.Priority     `json:"priority"`
	GuestCount  int                 `json:"guestCount"`
	Notes       string              `json:"notes"`
	TaxRate     decimal.Decimal     `json:"taxRate"`
	Items       []CreateItemRequest `json:"items"`
}

type StatusService struct {
	orders    OrderStore
	tables    TableCollaborator
	notifier  ReadyNotifier
	router    PrintRouter
	locker    OrderLocker
	publisher EventPublisher
	strategy  routing.Strategy
	logger    *zap.Logger
	now       func() time.Time
}

func NewStatusService(
	orders OrderStore,
	tables TableCollaborator,
	notifier ReadyNotifier,
	router PrintRouter,
	locker OrderLocker,
	publisher EventPublisher,
	strategy routing.Strategy,
	logger *zap.Logger,
) *StatusService {
	return &StatusService{
		orders:    orders,
		tables:    tables,
		notifier:  notifier,
		router:    router,
		locker:    locker,
		publisher: publisher,
		strategy:  strategy,
		logger:    logger,
		now:       time.Now,
	}
}

func lockKey(orderID string) string {
	return "order:" + orderID
}

func (s *StatusService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := s.now()
	order := &domain.Order{
		ID:            uuid.New().String(),
		Number:        req.Number,
		BranchID:      req.BranchID,
		TableID:       req.TableID,
		ServerID:      req.ServerID,
		ServiceType:   req.ServiceType,
		Priority:      req.Priority,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		TaxRate:       req.TaxRate,
		GuestCount:    req.GuestCount,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if order.Number == "" {
		order.Number = strings.ToUpper(order.ID[:6])
	}
	if order.Priority == "" {
		order.Priority = domain.PriorityNormal
	}
	for _, it := range req.Items {
		course := it.Course
		if course == "" {
			course = domain.CourseMainCourse
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:                  uuid.New().String(),
			OrderID:             order.ID,
			ProductID:           it.ProductID,
			ProductName:         it.ProductName,
			Quantity:            it.Quantity,
			UnitPrice:           it.UnitPrice,
			StationID:           it.StationID,
			Course:              course,
			Status:              domain.ItemStatusPending,
			SeatNumber:          it.SeatNumber,
			Modifiers:           it.Modifiers,
			SpecialInstructions: it.SpecialInstructions,
			CreatedAt:           now,
		})
	}
	order.RecalculateTotals()

	if err := s.orders.Create(ctx, order); err != nil {
		s.logger.Error("failed to create order", zap.String("branchId", req.BranchID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("orderId", order.ID),
		zap.String("number", order.Number),
		zap.Int("itemCount", len(order.Items)),
		zap.String("total", order.Total.StringFixed(2)),
	)
	s.publish(ctx, order, "CREATED")
	return order, nil
}

func validateCreate(req CreateOrderRequest) error {
	var details []apperrors.ValidationDetail
	if req.BranchID == "" {
		details = append(details, apperrors.ValidationDetail{Field: "branchId", Message: "branchId is required"})
	}
	switch req.ServiceType {
	case domain.ServiceTypeDineIn, domain.ServiceTypeTakeout, domain.ServiceTypePickup, domain.ServiceTypeDelivery, domain.ServiceTypeDriveThru:
	default:
		details = append(details, apperrors.ValidationDetail{Field: "serviceType", Message: "serviceType is invalid"})
	}
	if req.Priority != "" && !req.Priority.Valid() {
		details = append(details, apperrors.ValidationDetail{Field: "priority", Message: "priority is invalid"})
	}
	if req.TaxRate.IsNegative() {
		details = append(details, apperrors.ValidationDetail{Field: "taxRate", Message: "taxRate must not be negative"})
	}
	if len(req.Items) == 0 {
		details = append(details, apperrors.ValidationDetail{Field: "items", Message: "at least one item is required"})
	}
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			details = append(details, apperrors.ValidationDetail{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "quantity must be greater than zero",
			})
		}
		if it.UnitPrice.IsNegative() {
			details = append(details, apperrors.ValidationDetail{
				Field:   fmt.Sprintf("items[%d].unitPrice", i),
				Message: "unitPrice must not be negative",
			})
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("validation failed", details...)
	}
	return nil
}

func (s *StatusService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *StatusService) Confirm(ctx context.Context, id, actor string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusConfirmed, actor, "")
}

func (s *StatusService) StartPreparing(ctx context.Context, id, actor string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusPreparing, actor, "")
}

func (s *StatusService) MarkReady(ctx context.Context, id, actor string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusReady, actor, "")
}

func (s *StatusService) Serve(ctx context.Context, id, actor string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusServed, actor, "")
}

func (s *StatusService) Complete(ctx context.Context, id, actor string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusCompleted, actor, "")
}

func (s *StatusService) Cancel(ctx context.Context, id, actor, reason string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.OrderStatusCancelled, actor, reason)
}

func (s *StatusService) transition(ctx context.Context, id string, to domain.OrderStatus, actor, note string) (*domain.Order, error) {
	unlock := s.locker.Lock(lockKey(id))
	defer unlock()

	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if err := order.Transition(to, actor, note, s.now()); err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		s.logger.Error("failed to save order transition", zap.String("orderId", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.String("orderId", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
	)
	s.publish(ctx, order, domain.AuditActionStatusChange)
	s.AfterTransition(ctx, order, []domain.OrderStatus{to})
	return order, nil
}

// AfterTransition runs the collaborator side effects of statuses the order
// has just entered. Each commit stands alone: a failing collaborator is
// logged and never rolls the order back.
func (s *StatusService) AfterTransition(ctx context.Context, order *domain.Order, applied []domain.OrderStatus) {
	for _, status := range applied {
		switch status {
		case domain.OrderStatusPreparing:
			s.autoPrint(ctx, order)
		case domain.OrderStatusReady:
			if order.ServiceType.IsPickupStyle() {
				if _, err := s.notifier.NotifyOrderReady(ctx, order, ""); err != nil {
					s.logger.Warn("ready notification failed", zap.String("orderId", order.ID), zap.Error(err))
				}
			}
		case domain.OrderStatusCompleted:
			s.releaseTable(ctx, order, domain.TableStatusNeedsCleaning)
		case domain.OrderStatusCancelled:
			s.releaseTable(ctx, order, domain.TableStatusAvailable)
		}
	}
}

func (s *StatusService) autoPrint(ctx context.Context, order *domain.Order) {
	jobs, err := s.router.RouteOrderToPrinters(ctx, order, s.strategy, routing.Options{AutoPrintOnly: true})
	if err != nil {
		s.logger.Warn("auto print failed", zap.String("orderId", order.ID), zap.Error(err))
		return
	}
	s.logger.Info("order routed to printers", zap.String("orderId", order.ID), zap.Int("jobCount", len(jobs)))
}

func (s *StatusService) releaseTable(ctx context.Context, order *domain.Order, status domain.TableStatus) {
	if !order.IsDineIn() || order.TableID == nil {
		return
	}
	if err := s.tables.Release(ctx, *order.TableID, status); err != nil {
		s.logger.Warn("table release failed",
			zap.String("orderId", order.ID),
			zap.String("tableId", *order.TableID),
			zap.Error(err),
		)
	}
}

// UpdateItemQuantity changes a live item's quantity before the kitchen starts
// on the order and recomputes the totals.
func (s *StatusService) UpdateItemQuantity(ctx context.Context, orderID, itemID string, quantity int, actor string) (*domain.Order, error) {
	if quantity <= 0 {
		return nil, apperrors.NewValidationError("validation failed", apperrors.ValidationDetail{
			Field:   "quantity",
			Message: "quantity must be greater than zero",
		})
	}

	return s.editItem(ctx, orderID, itemID, actor, func(order *domain.Order, item *domain.OrderItem, now time.Time) error {
		before := item.Quantity
		item.Quantity = quantity
		order.Audit(actor, domain.AuditActionItemUpdated,
			fmt.Sprintf("%s x%d", item.ID, before),
			fmt.Sprintf("%s x%d", item.ID, quantity), "", now)
		return nil
	})
}

// RemoveItem cancels a single item. The last live item cannot be removed;
// the order has to be cancelled instead. When every remaining item is
// already done the order rolls up with them.
func (s *StatusService) RemoveItem(ctx context.Context, orderID, itemID, actor string) (*domain.Order, error) {
	return s.editItem(ctx, orderID, itemID, actor, func(order *domain.Order, item *domain.OrderItem, now time.Time) error {
		if len(order.LiveItems()) == 1 {
			return apperrors.NewConflictError("cannot remove the last item, cancel the order instead")
		}
		before := item.Status
		item.Status = domain.ItemStatusCancelled
		order.Audit(actor, domain.AuditActionItemRemoved, string(before), string(item.Status), item.ID, now)
		return nil
	})
}

func (s *StatusService) editItem(ctx context.Context, orderID, itemID, actor string, fn func(order *domain.Order, item *domain.OrderItem, now time.Time) error) (*domain.Order, error) {
	unlock := s.locker.Lock(lockKey(orderID))
	defer unlock()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.ItemsEditable() {
		return nil, apperrors.NewConflictError(fmt.Sprintf("items cannot be changed while the order is %s", order.Status))
	}
	item := order.Item(itemID)
	if item == nil || item.Status == domain.ItemStatusCancelled {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("item %s not found in order %s", itemID, orderID))
	}

	now := s.now()
	if err := fn(order, item, now); err != nil {
		return nil, err
	}
	order.RecalculateTotals()
	action := order.AuditLog[len(order.AuditLog)-1].Action
	applied, err := order.RollUp(actor, now)
	if err != nil {
		return nil, err
	}
	order.UpdatedAt = now

	if err := s.orders.Save(ctx, order); err != nil {
		return nil, err
	}
	s.publish(ctx, order, action)
	if len(applied) > 0 {
		s.logger.Info("order rolled up after item change",
			zap.String("orderId", order.ID),
			zap.String("status", string(order.Status)),
		)
		s.publish(ctx, order, domain.AuditActionStatusChange)
		s.AfterTransition(ctx, order, applied)
	}
	return order, nil
}

func (s *StatusService) publish(ctx context.Context, order *domain.Order, action string) {
	s.publisher.Publish(ctx, events.TopicOrderUpdated, events.OrderUpdated{
		OrderID:  order.ID,
		BranchID: order.BranchID,
		Number:   order.Number,
		Status:   string(order.Status),
		Action:   action,
		At:       order.UpdatedAt,
	})
}
