package kitchen

import (
	"go.uber.org/zap"

	"kitchenops/internal/config"
	"kitchenops/internal/kitchen/controller"
	"kitchenops/internal/kitchen/service"
	"kitchenops/internal/timing"
)

type Module struct {
	Service    *service.Service
	Controller *controller.KitchenController
}

// NewModule shares the order store and lock with the order module so kitchen
// and front-of-house mutations of one order are serialized.
func NewModule(
	cfg *config.Config,
	orders service.OrderStore,
	stations service.StationStore,
	locker service.OrderLocker,
	effects service.TransitionEffects,
	publisher service.EventPublisher,
	logger *zap.Logger,
) *Module {
	defaults := timing.DefaultThresholds()
	if cfg.Kitchen.DefaultPrepTime > 0 {
		defaults.PrepTime = cfg.Kitchen.DefaultPrepTime
	}
	if cfg.Kitchen.DefaultWarningThreshold > 0 {
		defaults.Warning = cfg.Kitchen.DefaultWarningThreshold
	}
	if cfg.Kitchen.DefaultCriticalThreshold > 0 {
		defaults.Critical = cfg.Kitchen.DefaultCriticalThreshold
	}

	svc := service.NewService(orders, stations, locker, effects, publisher, defaults, logger)

	return &Module{
		Service:    svc,
		Controller: controller.NewKitchenController(svc, logger),
	}
}
