package notification

import (
	"database/sql"

	"go.uber.org/zap"

	"kitchenops/internal/config"
	"kitchenops/internal/notification/controller"
	notifrepo "kitchenops/internal/notification/repository"
	"kitchenops/internal/notification/service"
)

type Module struct {
	Service    *service.Service
	Controller *controller.NotificationController
}

func NewModule(db *sql.DB, cfg *config.Config, transport service.Transport, publisher service.EventPublisher, logger *zap.Logger) *Module {
	svc := service.NewService(
		notifrepo.NewMySQLDeviceRepository(db),
		notifrepo.NewMySQLNotificationRepository(db),
		transport,
		publisher,
		cfg.Notification.MaxRetries,
		cfg.Notification.SendTimeout,
		logger,
	)

	return &Module{
		Service:    svc,
		Controller: controller.NewNotificationController(svc, logger),
	}
}
