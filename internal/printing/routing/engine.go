package routing

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/printing/service"
	"kitchenops/internal/printing/ticket"
)

type Strategy string

const (
	StrategyStationBased Strategy = "STATION_BASED"
	StrategyRoundRobin   Strategy = "ROUND_ROBIN"
	StrategyLoadBalanced Strategy = "LOAD_BALANCED"
	StrategyManual       Strategy = "MANUAL"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyStationBased, StrategyRoundRobin, StrategyLoadBalanced, StrategyManual:
		return true
	}
	return false
}

type Options struct {
	// SpecificPrinterIDs overrides the strategy: every listed printer gets a
	// ticket for the whole order.
	SpecificPrinterIDs []string
	Copies             int
	// AutoPrintOnly skips stations whose config has auto-print disabled.
	AutoPrintOnly bool
}

type PrinterStore interface {
	Get(ctx context.Context, id string) (*domain.PrinterConfig, error)
	ListActive(ctx context.Context, branchID string) ([]domain.PrinterConfig, error)
}

type StationStore interface {
	Get(ctx context.Context, id string) (*domain.KitchenStationConfig, error)
}

type JobCreator interface {
	CreateJob(ctx context.Context, req service.CreateJobRequest) (*domain.PrinterJob, error)
}

type Engine struct {
	printers    PrinterStore
	stations    StationStore
	jobs        JobCreator
	rotator     Rotator
	ticketWidth int
	logger      *zap.Logger
}

func NewEngine(printers PrinterStore, stations StationStore, jobs JobCreator, rotator Rotator, ticketWidth int, logger *zap.Logger) *Engine {
	return &Engine{
		printers:    printers,
		stations:    stations,
		jobs:        jobs,
		rotator:     rotator,
		ticketWidth: ticketWidth,
		logger:      logger,
	}
}

// RouteOrderToPrinters renders tickets for order and queues one job per
// ticket. It returns the jobs it created.
func (e *Engine) RouteOrderToPrinters(ctx context.Context, order *domain.Order, strategy Strategy, opts Options) ([]*domain.PrinterJob, error) {
	if len(opts.SpecificPrinterIDs) > 0 {
		return e.routeManual(ctx, order, opts)
	}

	switch strategy {
	case StrategyStationBased:
		return e.routeByStation(ctx, order, opts)
	case StrategyRoundRobin:
		return e.routeRoundRobin(ctx, order, opts)
	case StrategyLoadBalanced:
		return e.routeLoadBalanced(ctx, order, opts)
	case StrategyManual:
		return nil, apperrors.NewValidationError("manual routing needs printer ids", apperrors.ValidationDetail{
			Field:   "printerIds",
			Message: "printerIds must not be empty for MANUAL routing",
		})
	}
	return nil, apperrors.NewValidationError("unknown routing strategy", apperrors.ValidationDetail{
		Field:   "strategy",
		Message: "strategy must be STATION_BASED, ROUND_ROBIN, LOAD_BALANCED or MANUAL",
	})
}

func (e *Engine) routeManual(ctx context.Context, order *domain.Order, opts Options) ([]*domain.PrinterJob, error) {
	content := ticket.Render(order, order.LiveItems(), ticket.Options{Width: e.ticketWidth})
	var jobs []*domain.PrinterJob
	for _, id := range opts.SpecificPrinterIDs {
		job, err := e.queue(ctx, order, id, nil, content, opts)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (e *Engine) routeByStation(ctx context.Context, order *domain.Order, opts Options) ([]*domain.PrinterJob, error) {
	groups := make(map[string][]*domain.OrderItem)
	var stationIDs []string
	for _, item := range order.LiveItems() {
		if item.StationID == "" {
			e.logger.Warn("item has no station, not printed", zap.String("orderId", order.ID), zap.String("itemId", item.ID))
			continue
		}
		if _, ok := groups[item.StationID]; !ok {
			stationIDs = append(stationIDs, item.StationID)
		}
		groups[item.StationID] = append(groups[item.StationID], item)
	}
	sort.Strings(stationIDs)

	printers, err := e.printers.ListActive(ctx, order.BranchID)
	if err != nil {
		return nil, err
	}

	var jobs []*domain.PrinterJob
	for _, stationID := range stationIDs {
		station := e.station(ctx, stationID)
		if opts.AutoPrintOnly && station != nil && !station.AutoPrint {
			continue
		}

		printerID := pickStationPrinter(printers, stationID)
		if printerID == "" && station != nil && station.PrinterID != nil {
			printerID = *station.PrinterID
		}
		if printerID == "" {
			e.logger.Warn("no printer mapped to station, skipping",
				zap.String("orderId", order.ID),
				zap.String("stationId", stationID),
			)
			continue
		}

		title := stationID
		if station != nil && station.Name != "" {
			title = station.Name
		}
		content := ticket.Render(order, groups[stationID], ticket.Options{Title: title, Width: e.ticketWidth})
		sid := stationID
		job, err := e.queue(ctx, order, printerID, &sid, content, opts)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// pickStationPrinter prefers the primary printer for the station and falls
// back to the first mapped one.
func pickStationPrinter(printers []domain.PrinterConfig, stationID string) string {
	first := ""
	for i := range printers {
		mapped, primary := printers[i].ServesStation(stationID)
		if !mapped {
			continue
		}
		if primary {
			return printers[i].ID
		}
		if first == "" {
			first = printers[i].ID
		}
	}
	return first
}

func (e *Engine) routeRoundRobin(ctx context.Context, order *domain.Order, opts Options) ([]*domain.PrinterJob, error) {
	printers, err := e.activePrinters(ctx, order.BranchID)
	if err != nil {
		return nil, err
	}
	sort.Slice(printers, func(i, j int) bool { return printers[i].ID < printers[j].ID })

	idx, err := e.rotator.Next(ctx, order.BranchID, len(printers))
	if err != nil {
		return nil, err
	}
	return e.routeWhole(ctx, order, printers[idx].ID, opts)
}

// routeLoadBalanced sends the order to the printer with the best success
// rate, fewest jobs breaking ties.
func (e *Engine) routeLoadBalanced(ctx context.Context, order *domain.Order, opts Options) ([]*domain.PrinterJob, error) {
	printers, err := e.activePrinters(ctx, order.BranchID)
	if err != nil {
		return nil, err
	}

	best := &printers[0]
	for i := 1; i < len(printers); i++ {
		p := &printers[i]
		rp, rb := p.SuccessRate(), best.SuccessRate()
		switch {
		case rp > rb:
			best = p
		case rp == rb && p.TotalJobs < best.TotalJobs:
			best = p
		case rp == rb && p.TotalJobs == best.TotalJobs && p.ID < best.ID:
			best = p
		}
	}
	return e.routeWhole(ctx, order, best.ID, opts)
}

func (e *Engine) routeWhole(ctx context.Context, order *domain.Order, printerID string, opts Options) ([]*domain.PrinterJob, error) {
	content := ticket.Render(order, order.LiveItems(), ticket.Options{Width: e.ticketWidth})
	job, err := e.queue(ctx, order, printerID, nil, content, opts)
	if err != nil {
		return nil, err
	}
	return []*domain.PrinterJob{job}, nil
}

func (e *Engine) activePrinters(ctx context.Context, branchID string) ([]domain.PrinterConfig, error) {
	printers, err := e.printers.ListActive(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if len(printers) == 0 {
		return nil, apperrors.NewNotFoundError("no active printers for branch " + branchID)
	}
	return printers, nil
}

func (e *Engine) station(ctx context.Context, id string) *domain.KitchenStationConfig {
	if e.stations == nil {
		return nil
	}
	st, err := e.stations.Get(ctx, id)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); !ok {
			e.logger.Warn("station lookup failed", zap.String("stationId", id), zap.Error(err))
		}
		return nil
	}
	return st
}

func (e *Engine) queue(ctx context.Context, order *domain.Order, printerID string, stationID *string, content string, opts Options) (*domain.PrinterJob, error) {
	orderID := order.ID
	return e.jobs.CreateJob(ctx, service.CreateJobRequest{
		PrinterID: printerID,
		OrderID:   &orderID,
		StationID: stationID,
		Content:   content,
		Copies:    opts.Copies,
		Priority:  order.Priority,
	})
}
