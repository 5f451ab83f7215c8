package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/events"
	"kitchenops/internal/timing"
)

type OrderStore interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetByItemID(ctx context.Context, itemID string) (*domain.Order, error)
	Save(ctx context.Context, order *domain.Order) error
	FindActive(ctx context.Context, filter domain.ActiveOrderFilter) ([]domain.Order, error)
	FindCreatedBetween(ctx context.Context, branchID string, from, to time.Time) ([]domain.Order, error)
}

type StationStore interface {
	Get(ctx context.Context, id string) (*domain.KitchenStationConfig, error)
	ListActive(ctx context.Context, branchID string) ([]domain.KitchenStationConfig, error)
}

// OrderLocker serializes mutations of one order across services.
type OrderLocker interface {
	Lock(key string) func()
}

// TransitionEffects runs the side effects of order status changes made here,
// such as notifying a pickup customer once the order rolls up to READY.
type TransitionEffects interface {
	AfterTransition(ctx context.Context, order *domain.Order, applied []domain.OrderStatus)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{})
}

type Service struct {
	orders    OrderStore
	stations  StationStore
	locker    OrderLocker
	effects   TransitionEffects
	publisher EventPublisher
	defaults  timing.Thresholds
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(orders OrderStore, stations StationStore, locker OrderLocker, effects TransitionEffects, publisher EventPublisher, defaults timing.Thresholds, logger *zap.Logger) *Service {
	return &Service{
		orders:    orders,
		stations:  stations,
		locker:    locker,
		effects:   effects,
		publisher: publisher,
		defaults:  defaults,
		logger:    logger,
		now:       time.Now,
	}
}

func OrderLockKey(orderID string) string {
	return "order:" + orderID
}

func (s *Service) MarkItemReady(ctx context.Context, itemID, notes, actor string) (*domain.Order, error) {
	return s.mutateItem(ctx, itemID, actor, func(item *domain.OrderItem, now time.Time) error {
		return item.MarkReady(notes, now)
	})
}

// StartItem moves one PENDING item to PREPARING. A CONFIRMED order enters
// PREPARING with it, which starts the rest of its pending items as well.
func (s *Service) StartItem(ctx context.Context, itemID, actor string) (*domain.Order, error) {
	return s.mutateItem(ctx, itemID, actor, func(item *domain.OrderItem, now time.Time) error {
		return item.Start(now)
	})
}

func (s *Service) BumpOrderItem(ctx context.Context, itemID, actor string) (*domain.Order, error) {
	return s.mutateItem(ctx, itemID, actor, func(item *domain.OrderItem, now time.Time) error {
		return item.Bump(now)
	})
}

// BumpOrder serves the given items, or every live item when itemIDs is empty.
// Items that are already served are left alone.
func (s *Service) BumpOrder(ctx context.Context, orderID string, itemIDs []string, actor string) (*domain.Order, error) {
	unlock := s.locker.Lock(OrderLockKey(orderID))
	defer unlock()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransitionError("order", string(order.Status), string(domain.OrderStatusServed))
	}

	var targets []*domain.OrderItem
	if len(itemIDs) == 0 {
		targets = order.LiveItems()
	} else {
		for _, id := range itemIDs {
			item := order.Item(id)
			if item == nil {
				return nil, apperrors.NewNotFoundError(fmt.Sprintf("item %s not found in order %s", id, orderID))
			}
			targets = append(targets, item)
		}
	}

	now := s.now()
	var bumped []*domain.OrderItem
	for _, item := range targets {
		if item.Status == domain.ItemStatusServed {
			continue
		}
		if err := item.Bump(now); err != nil {
			return nil, err
		}
		bumped = append(bumped, item)
	}

	return s.commit(ctx, order, actor, now, bumped...)
}

// RecallOrder undoes a premature bump.
func (s *Service) RecallOrder(ctx context.Context, orderID, actor, note string) (*domain.Order, error) {
	unlock := s.locker.Lock(OrderLockKey(orderID))
	defer unlock()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := order.Recall(actor, note, now); err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order recalled", zap.String("orderId", order.ID), zap.String("actor", actor))
	s.publishOrder(ctx, order, domain.AuditActionRecall, now)
	for i := range order.Items {
		s.publishItem(ctx, order, &order.Items[i], now)
	}
	return order, nil
}

// mutateItem locks the owning order, reloads it under the lock, applies fn to
// the item and rolls the order status up.
func (s *Service) mutateItem(ctx context.Context, itemID, actor string, fn func(item *domain.OrderItem, now time.Time) error) (*domain.Order, error) {
	owner, err := s.orders.GetByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(OrderLockKey(owner.ID))
	defer unlock()

	order, err := s.orders.Get(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	item := order.Item(itemID)
	if item == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("item %s not found", itemID))
	}

	now := s.now()
	if err := fn(item, now); err != nil {
		return nil, err
	}
	if item.Status == domain.ItemStatusPreparing && order.Status == domain.OrderStatusConfirmed {
		if err := order.Transition(domain.OrderStatusPreparing, actor, "item started", now); err != nil {
			return nil, err
		}
		if err := s.commitWith(ctx, order, actor, now, []domain.OrderStatus{domain.OrderStatusPreparing}, item); err != nil {
			return nil, err
		}
		return order, nil
	}
	return s.commit(ctx, order, actor, now, item)
}

func (s *Service) commit(ctx context.Context, order *domain.Order, actor string, now time.Time, changed ...*domain.OrderItem) (*domain.Order, error) {
	applied, err := order.RollUp(actor, now)
	if err != nil {
		return nil, err
	}
	if err := s.commitWith(ctx, order, actor, now, applied, changed...); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) commitWith(ctx context.Context, order *domain.Order, actor string, now time.Time, applied []domain.OrderStatus, changed ...*domain.OrderItem) error {
	order.UpdatedAt = now
	if err := s.orders.Save(ctx, order); err != nil {
		return err
	}

	for _, item := range changed {
		s.publishItem(ctx, order, item, now)
	}
	if len(applied) > 0 {
		s.logger.Info("order status rolled up",
			zap.String("orderId", order.ID),
			zap.String("status", string(order.Status)),
			zap.String("actor", actor),
		)
		s.publishOrder(ctx, order, domain.AuditActionStatusChange, now)
		if s.effects != nil {
			s.effects.AfterTransition(ctx, order, applied)
		}
	}
	return nil
}

func (s *Service) publishOrder(ctx context.Context, order *domain.Order, action string, now time.Time) {
	s.publisher.Publish(ctx, events.TopicOrderUpdated, events.OrderUpdated{
		OrderID:  order.ID,
		BranchID: order.BranchID,
		Number:   order.Number,
		Status:   string(order.Status),
		Action:   action,
		At:       now,
	})
}

func (s *Service) publishItem(ctx context.Context, order *domain.Order, item *domain.OrderItem, now time.Time) {
	s.publisher.Publish(ctx, events.TopicItemUpdated, events.ItemUpdated{
		OrderID:  order.ID,
		ItemID:   item.ID,
		BranchID: order.BranchID,
		Status:   string(item.Status),
		At:       now,
	})
}

// thresholds resolves per-station timing with the service defaults for
// items whose station has no config.
func (s *Service) thresholds(stations map[string]*domain.KitchenStationConfig, stationID string) timing.Thresholds {
	if st, ok := stations[stationID]; ok {
		return timing.ForStation(st)
	}
	return s.defaults
}

func (s *Service) stationIndex(ctx context.Context, branchID string) (map[string]*domain.KitchenStationConfig, error) {
	list, err := s.stations.ListActive(ctx, branchID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*domain.KitchenStationConfig, len(list))
	for i := range list {
		index[list[i].ID] = &list[i]
	}
	return index, nil
}
