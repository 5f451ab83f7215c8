package printing

import (
	"database/sql"

	"go.uber.org/zap"

	"kitchenops/internal/config"
	"kitchenops/internal/printing/controller"
	printrepo "kitchenops/internal/printing/repository"
	"kitchenops/internal/printing/routing"
	"kitchenops/internal/printing/service"
	"kitchenops/internal/printing/worker"
)

// PrinterTransport is the physical side of a printer: printing and probing.
type PrinterTransport interface {
	worker.Transport
	service.HealthChecker
}

type Module struct {
	Queue    *service.QueueService
	Printers *service.PrinterService
	Engine   *routing.Engine
	Pool     *worker.Pool

	strategy routing.Strategy
	logger   *zap.Logger
}

func NewModule(
	db *sql.DB,
	cfg *config.Config,
	stations routing.StationStore,
	rotator routing.Rotator,
	locker worker.Locker,
	transport PrinterTransport,
	publisher service.EventPublisher,
	logger *zap.Logger,
) *Module {
	printerRepo := printrepo.NewMySQLPrinterRepository(db)
	jobRepo := printrepo.NewMySQLJobRepository(db)

	queue := service.NewQueueService(jobRepo, printerRepo, publisher, service.QueueConfig{
		BaseRetryDelay:    cfg.Printing.BaseRetryDelay,
		BackoffMultiplier: cfg.Printing.BackoffMultiplier,
		MaxRetries:        cfg.Printing.MaxRetries,
		CleanupMaxAge:     cfg.Printing.CleanupMaxAge,
		PrintTimeout:      cfg.Printing.PrintTimeout,
		StaleAfter:        3*cfg.Printing.PrintTimeout + cfg.Printing.PollInterval,
	}, logger)

	printers := service.NewPrinterService(printerRepo, transport, queue, cfg.Printing.PrintTimeout, cfg.Printing.TicketWidth, logger)
	engine := routing.NewEngine(printerRepo, stations, queue, rotator, cfg.Printing.TicketWidth, logger)
	pool := worker.NewPool(queue, printerRepo, transport, locker, worker.Config{
		PollInterval: cfg.Printing.PollInterval,
		PrintTimeout: cfg.Printing.PrintTimeout,
	}, logger)

	return &Module{
		Queue:    queue,
		Printers: printers,
		Engine:   engine,
		Pool:     pool,
		strategy: routing.Strategy(cfg.Printing.DefaultStrategy),
		logger:   logger,
	}
}

// Controller is built separately because routing an order on demand needs
// the order module, which itself depends on this module's engine.
func (m *Module) Controller(orders controller.OrderReader) *controller.PrintingController {
	return controller.NewPrintingController(m.Queue, m.Printers, m.Engine, orders, m.strategy, m.logger)
}
