package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/printing/ticket"
)

type HealthChecker interface {
	Check(ctx context.Context, printer *domain.PrinterConfig) error
}

type PrinterRegistry interface {
	PrinterStore
	Create(ctx context.Context, printer *domain.PrinterConfig) error
}

type JobQueue interface {
	CreateJob(ctx context.Context, req CreateJobRequest) (*domain.PrinterJob, error)
}

type RegisterPrinterRequest struct {
	BranchID        string                     `json:"branchId"`
	Name            string                     `json:"name"`
	ConnectionType  domain.ConnectionType      `json:"connectionType"`
	Address         string                     `json:"address"`
	Port            int                        `json:"port"`
	Capabilities    domain.PrinterCapabilities `json:"capabilities"`
	StationMappings []domain.StationMapping    `json:"stationMappings"`
}

type PrinterService struct {
	printers     PrinterRegistry
	checker      HealthChecker
	queue        JobQueue
	checkTimeout time.Duration
	ticketWidth  int
	logger       *zap.Logger
	now          func() time.Time
}

func NewPrinterService(printers PrinterRegistry, checker HealthChecker, queue JobQueue, checkTimeout time.Duration, ticketWidth int, logger *zap.Logger) *PrinterService {
	return &PrinterService{
		printers:     printers,
		checker:      checker,
		queue:        queue,
		checkTimeout: checkTimeout,
		ticketWidth:  ticketWidth,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *PrinterService) Register(ctx context.Context, req RegisterPrinterRequest) (*domain.PrinterConfig, error) {
	var details []apperrors.ValidationDetail
	if strings.TrimSpace(req.BranchID) == "" {
		details = append(details, apperrors.ValidationDetail{Field: "branchId", Message: "branchId is required"})
	}
	if strings.TrimSpace(req.Name) == "" {
		details = append(details, apperrors.ValidationDetail{Field: "name", Message: "name is required"})
	}
	switch req.ConnectionType {
	case domain.ConnectionNetwork:
		if req.Address == "" {
			details = append(details, apperrors.ValidationDetail{Field: "address", Message: "address is required for NETWORK printers"})
		}
	case domain.ConnectionUSB, domain.ConnectionBluetooth, domain.ConnectionCloud:
	default:
		details = append(details, apperrors.ValidationDetail{Field: "connectionType", Message: "connectionType must be NETWORK, USB, BLUETOOTH or CLOUD"})
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("validation failed", details...)
	}

	now := s.now()
	printer := &domain.PrinterConfig{
		ID:              uuid.New().String(),
		BranchID:        req.BranchID,
		Name:            req.Name,
		ConnectionType:  req.ConnectionType,
		Address:         req.Address,
		Port:            req.Port,
		Capabilities:    req.Capabilities,
		Active:          true,
		Status:          domain.PrinterStatusUnknown,
		StationMappings: req.StationMappings,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.printers.Create(ctx, printer); err != nil {
		return nil, err
	}
	s.logger.Info("printer registered", zap.String("printerId", printer.ID), zap.String("branchId", printer.BranchID))
	return printer, nil
}

func (s *PrinterService) Get(ctx context.Context, id string) (*domain.PrinterConfig, error) {
	return s.printers.Get(ctx, id)
}

func (s *PrinterService) ListActive(ctx context.Context, branchID string) ([]domain.PrinterConfig, error) {
	return s.printers.ListActive(ctx, branchID)
}

// HealthCheck probes the printer and records the result. An unreachable
// printer is marked OFFLINE and the transport error is returned.
func (s *PrinterService) HealthCheck(ctx context.Context, id string) (*domain.PrinterConfig, error) {
	printer, err := s.printers.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	checkErr := s.checker.Check(checkCtx, printer)
	cancel()

	now := s.now()
	printer.LastHealthCheckAt = &now
	printer.UpdatedAt = now
	if checkErr != nil {
		printer.Status = domain.PrinterStatusOffline
		printer.LastError = checkErr.Error()
		printer.LastErrorAt = &now
	} else {
		printer.Status = domain.PrinterStatusOnline
	}

	if err := s.printers.Save(ctx, printer); err != nil {
		return nil, err
	}

	if checkErr != nil {
		s.logger.Warn("printer health check failed", zap.String("printerId", id), zap.Error(checkErr))
		if _, ok := apperrors.IsTransportError(checkErr); !ok {
			checkErr = apperrors.NewTransportError("HEALTH_CHECK_FAILED", "printer "+printer.Name+" is unreachable", checkErr)
		}
		return printer, checkErr
	}
	return printer, nil
}

// HealthCheckAll checks every active printer of a branch ("" for all) and
// returns how many are online. Individual failures are only logged.
func (s *PrinterService) HealthCheckAll(ctx context.Context, branchID string) (int, error) {
	printers, err := s.printers.ListActive(ctx, branchID)
	if err != nil {
		return 0, err
	}

	online := 0
	for _, p := range printers {
		if ctx.Err() != nil {
			return online, ctx.Err()
		}
		if _, err := s.HealthCheck(ctx, p.ID); err != nil {
			if _, ok := apperrors.IsTransportError(err); !ok {
				s.logger.Error("health check aborted", zap.String("printerId", p.ID), zap.Error(err))
			}
			continue
		}
		online++
	}
	s.logger.Info("printer health sweep finished", zap.Int("checked", len(printers)), zap.Int("online", online))
	return online, nil
}

// TestPrint queues the fixed test ticket at HIGH priority.
func (s *PrinterService) TestPrint(ctx context.Context, id string) (*domain.PrinterJob, error) {
	printer, err := s.printers.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.queue.CreateJob(ctx, CreateJobRequest{
		PrinterID: printer.ID,
		Content:   ticket.RenderTest(printer, s.now(), s.ticketWidth),
		Copies:    1,
		Priority:  domain.PriorityHigh,
	})
}
