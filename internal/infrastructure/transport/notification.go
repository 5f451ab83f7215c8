package transport

import (
	"context"

	"go.uber.org/zap"

	"kitchenops/internal/domain"
)

// LogNotificationTransport stands in for the pager broker when none is
// configured. Every send succeeds.
type LogNotificationTransport struct {
	logger *zap.Logger
}

func NewLogNotificationTransport(logger *zap.Logger) *LogNotificationTransport {
	return &LogNotificationTransport{logger: logger}
}

func (t *LogNotificationTransport) Send(_ context.Context, device *domain.NotificationDevice, message string) error {
	t.logger.Info("notification delivered to log",
		zap.String("deviceId", device.ID),
		zap.String("deviceType", string(device.Type)),
		zap.String("message", message),
	)
	return nil
}
