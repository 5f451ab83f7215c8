package order

import (
	"database/sql"

	"go.uber.org/zap"

	"kitchenops/internal/config"
	"kitchenops/internal/order/controller"
	orderrepo "kitchenops/internal/order/repository"
	"kitchenops/internal/order/service"
	"kitchenops/internal/printing/routing"
)

type Module struct {
	Repository *orderrepo.MySQLOrderRepository
	Service    *service.StatusService
	Controller *controller.OrderController
}

func NewModule(
	db *sql.DB,
	cfg *config.Config,
	notifier service.ReadyNotifier,
	router service.PrintRouter,
	locker service.OrderLocker,
	publisher service.EventPublisher,
	logger *zap.Logger,
) *Module {
	orderRepo := orderrepo.NewMySQLOrderRepository(db, cfg.Order.MaxRetryAttempts, logger)
	tableRepo := orderrepo.NewMySQLTableRepository(db)

	statusSvc := service.NewStatusService(
		orderRepo,
		tableRepo,
		notifier,
		router,
		locker,
		publisher,
		routing.Strategy(cfg.Printing.DefaultStrategy),
		logger,
	)

	return &Module{
		Repository: orderRepo,
		Service:    statusSvc,
		Controller: controller.NewOrderController(statusSvc, logger),
	}
}
