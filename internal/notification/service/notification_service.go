package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/events"
)

// deviceTimeouts is how long a notification stays actionable per device type.
var deviceTimeouts = map[domain.DeviceType]time.Duration{
	domain.DeviceTypePager:   10 * time.Minute,
	domain.DeviceTypeBuzzer:  5 * time.Minute,
	domain.DeviceTypeDisplay: 15 * time.Minute,
	domain.DeviceTypeSMS:     30 * time.Minute,
}

const defaultDeviceTimeout = 10 * time.Minute

func ExpiryFor(t domain.DeviceType) time.Duration {
	if d, ok := deviceTimeouts[t]; ok {
		return d
	}
	return defaultDeviceTimeout
}

func ReadyMessage(orderNumber string) string {
	return fmt.Sprintf("Order #%s is ready for pickup", orderNumber)
}

type DeviceStore interface {
	Get(ctx context.Context, id string) (*domain.NotificationDevice, error)
	ListActive(ctx context.Context, branchID string) ([]domain.NotificationDevice, error)
}

type NotificationStore interface {
	Get(ctx context.Context, id string) (*domain.NotificationRecord, error)
	Create(ctx context.Context, record *domain.NotificationRecord) error
	Save(ctx context.Context, record *domain.NotificationRecord) error
	FindExpired(ctx context.Context, now time.Time) ([]domain.NotificationRecord, error)
	List(ctx context.Context, branchID string, status domain.NotificationStatus) ([]domain.NotificationRecord, error)
}

type Transport interface {
	Send(ctx context.Context, device *domain.NotificationDevice, message string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{})
}

type SendRequest struct {
	BranchID string  `json:"branchId"`
	DeviceID string  `json:"deviceId"`
	OrderID  *string `json:"orderId,omitempty"`
	Message  string  `json:"message"`
}

type Service struct {
	devices     DeviceStore
	records     NotificationStore
	transport   Transport
	publisher   EventPublisher
	maxRetries  int
	sendTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(devices DeviceStore, records NotificationStore, transport Transport, publisher EventPublisher, maxRetries int, sendTimeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		devices:     devices,
		records:     records,
		transport:   transport,
		publisher:   publisher,
		maxRetries:  maxRetries,
		sendTimeout: sendTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// NotifyOrderReady pages the customer of a pickup-style order. It returns
// nil without error when the order does not need a notification or the
// branch has no device.
func (s *Service) NotifyOrderReady(ctx context.Context, order *domain.Order, deviceID string) (*domain.NotificationRecord, error) {
	if !order.ServiceType.IsPickupStyle() {
		return nil, nil
	}

	var device *domain.NotificationDevice
	if deviceID != "" {
		d, err := s.devices.Get(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		device = d
	} else {
		devices, err := s.devices.ListActive(ctx, order.BranchID)
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			s.logger.Info("no notification device for branch", zap.String("branchId", order.BranchID), zap.String("orderId", order.ID))
			return nil, nil
		}
		device = &devices[0]
	}

	orderID := order.ID
	return s.dispatch(ctx, device, &orderID, ReadyMessage(order.Number))
}

func (s *Service) Send(ctx context.Context, req SendRequest) (*domain.NotificationRecord, error) {
	if req.DeviceID == "" || req.Message == "" {
		var details []apperrors.ValidationDetail
		if req.DeviceID == "" {
			details = append(details, apperrors.ValidationDetail{Field: "deviceId", Message: "deviceId is required"})
		}
		if req.Message == "" {
			details = append(details, apperrors.ValidationDetail{Field: "message", Message: "message is required"})
		}
		return nil, apperrors.NewValidationError("validation failed", details...)
	}

	device, err := s.devices.Get(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, device, req.OrderID, req.Message)
}

func (s *Service) dispatch(ctx context.Context, device *domain.NotificationDevice, orderID *string, message string) (*domain.NotificationRecord, error) {
	now := s.now()
	record := &domain.NotificationRecord{
		ID:         uuid.New().String(),
		BranchID:   device.BranchID,
		DeviceID:   device.ID,
		OrderID:    orderID,
		Message:    message,
		Status:     domain.NotificationPending,
		MaxRetries: s.maxRetries,
		ExpiresAt:  now.Add(ExpiryFor(device.Type)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, err
	}

	s.attempt(ctx, device, record)
	if err := s.records.Save(ctx, record); err != nil {
		return nil, err
	}
	s.publish(ctx, record)
	return record, nil
}

// attempt hands the record to the transport. Failures are recorded on the
// record, never returned.
func (s *Service) attempt(ctx context.Context, device *domain.NotificationDevice, record *domain.NotificationRecord) {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err := s.transport.Send(sendCtx, device, record.Message)
	cancel()

	now := s.now()
	record.UpdatedAt = now
	if err == nil {
		record.Status = domain.NotificationSent
		record.SentAt = &now
		record.LastError = ""
		s.logger.Info("notification sent", zap.String("notificationId", record.ID), zap.String("deviceId", device.ID))
		return
	}

	record.RetryCount++
	record.LastError = err.Error()
	if record.RetryCount >= record.MaxRetries {
		record.Status = domain.NotificationFailed
		s.logger.Error("notification failed permanently", zap.String("notificationId", record.ID), zap.Error(err))
		return
	}
	record.Status = domain.NotificationPending
	s.logger.Warn("notification send failed", zap.String("notificationId", record.ID), zap.Int("retryCount", record.RetryCount), zap.Error(err))
}

// Acknowledge is accepted from any non-terminal state.
func (s *Service) Acknowledge(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case record.Status == domain.NotificationAcknowledged:
		return nil, apperrors.NewAlreadyInStateError("notification", string(record.Status))
	case record.Status.IsTerminal():
		return nil, apperrors.NewInvalidTransitionError("notification", string(record.Status), string(domain.NotificationAcknowledged))
	}

	now := s.now()
	record.Status = domain.NotificationAcknowledged
	record.AcknowledgedAt = &now
	record.UpdatedAt = now
	return s.save(ctx, record)
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case record.Status == domain.NotificationCancelled:
		return record, nil
	case record.Status.IsTerminal():
		return nil, apperrors.NewInvalidTransitionError("notification", string(record.Status), string(domain.NotificationCancelled))
	}

	record.Status = domain.NotificationCancelled
	record.UpdatedAt = s.now()
	return s.save(ctx, record)
}

// Retry resends a PENDING or FAILED record. Without retries left it fails
// with RetryExhausted.
func (s *Service) Retry(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.NotificationPending && record.Status != domain.NotificationFailed {
		return nil, apperrors.NewInvalidTransitionError("notification", string(record.Status), string(domain.NotificationSent))
	}
	if record.RetryCount >= record.MaxRetries {
		return nil, apperrors.NewRetryExhaustedError("notification has no retries left", record.RetryCount, record.MaxRetries)
	}

	device, err := s.devices.Get(ctx, record.DeviceID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if record.ExpiresAt.Before(now) {
		record.ExpiresAt = now.Add(ExpiryFor(device.Type))
	}
	s.attempt(ctx, device, record)
	return s.save(ctx, record)
}

// ExpireNotifications marks PENDING and SENT records past their expiry as
// EXPIRED.
func (s *Service) ExpireNotifications(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.records.FindExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	n := 0
	for i := range expired {
		record := &expired[i]
		if record.Status.IsTerminal() || !record.ExpiresAt.Before(now) {
			continue
		}
		record.Status = domain.NotificationExpired
		record.UpdatedAt = now
		if _, err := s.save(ctx, record); err != nil {
			s.logger.Warn("failed to expire notification", zap.String("notificationId", record.ID), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("notifications expired", zap.Int("count", n))
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, branchID string, status domain.NotificationStatus) ([]domain.NotificationRecord, error) {
	return s.records.List(ctx, branchID, status)
}

func (s *Service) save(ctx context.Context, record *domain.NotificationRecord) (*domain.NotificationRecord, error) {
	if err := s.records.Save(ctx, record); err != nil {
		return nil, err
	}
	s.publish(ctx, record)
	return record, nil
}

func (s *Service) publish(ctx context.Context, record *domain.NotificationRecord) {
	s.publisher.Publish(ctx, events.TopicNotificationUpdated, events.NotificationUpdated{
		NotificationID: record.ID,
		DeviceID:       record.DeviceID,
		BranchID:       record.BranchID,
		Status:         string(record.Status),
		At:             record.UpdatedAt,
	})
}
