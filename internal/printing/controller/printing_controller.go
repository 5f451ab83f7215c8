package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitchenops/internal/commons"
	"kitchenops/internal/domain"
	"kitchenops/internal/dto"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/printing/routing"
	"kitchenops/internal/printing/service"
)

type JobService interface {
	CreateJob(ctx context.Context, req service.CreateJobRequest) (*domain.PrinterJob, error)
	GetJob(ctx context.Context, id string) (*domain.PrinterJob, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) (*service.JobPage, error)
	RetryJob(ctx context.Context, id string, force bool) (*domain.PrinterJob, error)
	CancelJob(ctx context.Context, id string) (*domain.PrinterJob, error)
	GetStatistics(ctx context.Context, branchID string) (*service.QueueStatistics, error)
}

type PrinterService interface {
	Register(ctx context.Context, req service.RegisterPrinterRequest) (*domain.PrinterConfig, error)
	Get(ctx context.Context, id string) (*domain.PrinterConfig, error)
	ListActive(ctx context.Context, branchID string) ([]domain.PrinterConfig, error)
	HealthCheck(ctx context.Context, id string) (*domain.PrinterConfig, error)
	TestPrint(ctx context.Context, id string) (*domain.PrinterJob, error)
}

type OrderRouter interface {
	RouteOrderToPrinters(ctx context.Context, order *domain.Order, strategy routing.Strategy, opts routing.Options) ([]*domain.PrinterJob, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
}

type PrintingController struct {
	jobs            JobService
	printers        PrinterService
	router          OrderRouter
	orders          OrderReader
	defaultStrategy routing.Strategy
	logger          *zap.Logger
}

func NewPrintingController(jobs JobService, printers PrinterService, router OrderRouter, orders OrderReader, defaultStrategy routing.Strategy, logger *zap.Logger) *PrintingController {
	return &PrintingController{
		jobs:            jobs,
		printers:        printers,
		router:          router,
		orders:          orders,
		defaultStrategy: defaultStrategy,
		logger:          logger,
	}
}

func (c *PrintingController) RegisterRoutes(r chi.Router) {
	r.Route("/print", func(r chi.Router) {
		r.Post("/jobs", c.CreateJob)
		r.Get("/jobs", c.ListJobs)
		r.Get("/jobs/statistics", c.GetStatistics)
		r.Get("/jobs/{jobId}", c.GetJob)
		r.Post("/jobs/{jobId}/retry", c.RetryJob)
		r.Post("/jobs/{jobId}/cancel", c.CancelJob)

		r.Get("/printers", c.ListPrinters)
		r.Post("/printers", c.RegisterPrinter)
		r.Get("/printers/{printerId}", c.GetPrinter)
		r.Post("/printers/{printerId}/health-check", c.HealthCheck)
		r.Post("/printers/{printerId}/test-print", c.TestPrint)

		r.Post("/orders/{orderId}/route", c.RouteOrder)
	})
}

func (c *PrintingController) CreateJob(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req dto.CreateJobRequest
	if err := commons.DecodeJSON(r, &req); err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	job, err := c.jobs.CreateJob(r.Context(), service.CreateJobRequest{
		PrinterID:  req.PrinterID,
		OrderID:    req.OrderID,
		StationID:  req.StationID,
		Content:    req.Content,
		Copies:     req.Copies,
		Priority:   req.Priority,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusCreated, dto.NewJobResponse(job), c.logger)
}

func (c *PrintingController) ListJobs(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	q := r.URL.Query()

	filter := domain.JobFilter{
		BranchID:  q.Get("branchId"),
		PrinterID: q.Get("printerId"),
		OrderID:   q.Get("orderId"),
		Status:    domain.JobStatus(q.Get("status")),
		Page:      1,
		Limit:     50,
	}
	var details []apperrors.ValidationDetail
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			details = append(details, apperrors.ValidationDetail{Field: "page", Message: "page must be a positive integer"})
		}
		filter.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			details = append(details, apperrors.ValidationDetail{Field: "limit", Message: "limit must be a positive integer"})
		}
		filter.Limit = n
	}
	if len(details) > 0 {
		commons.WriteError(w, traceID, apperrors.NewValidationError("invalid job filter", details...), c.logger)
		return
	}

	page, err := c.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	resp := dto.JobPageResponse{
		Jobs:  make([]dto.JobResponse, len(page.Jobs)),
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
	}
	for i := range page.Jobs {
		resp.Jobs[i] = dto.NewJobResponse(&page.Jobs[i])
	}
	commons.WriteJSON(w, http.StatusOK, resp, c.logger)
}

func (c *PrintingController) GetStatistics(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	stats, err := c.jobs.GetStatistics(r.Context(), r.URL.Query().Get("branchId"))
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, stats, c.logger)
}

func (c *PrintingController) GetJob(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	job, err := c.jobs.GetJob(r.Context(), chi.URLParam(r, "jobId"))
	c.writeJob(w, traceID, job, err)
}

func (c *PrintingController) RetryJob(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req dto.RetryJobRequest
	if r.ContentLength != 0 {
		if err := commons.DecodeJSON(r, &req); err != nil {
			commons.WriteError(w, traceID, err, c.logger)
			return
		}
	}

	job, err := c.jobs.RetryJob(r.Context(), chi.URLParam(r, "jobId"), req.Force)
	c.writeJob(w, traceID, job, err)
}

func (c *PrintingController) CancelJob(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	job, err := c.jobs.CancelJob(r.Context(), chi.URLParam(r, "jobId"))
	c.writeJob(w, traceID, job, err)
}

func (c *PrintingController) writeJob(w http.ResponseWriter, traceID string, job *domain.PrinterJob, err error) {
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, dto.NewJobResponse(job), c.logger)
}

func (c *PrintingController) ListPrinters(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	printers, err := c.printers.ListActive(r.Context(), r.URL.Query().Get("branchId"))
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	resp := make([]dto.PrinterResponse, len(printers))
	for i := range printers {
		resp[i] = dto.NewPrinterResponse(&printers[i])
	}
	commons.WriteJSON(w, http.StatusOK, resp, c.logger)
}

func (c *PrintingController) RegisterPrinter(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req service.RegisterPrinterRequest
	if err := commons.DecodeJSON(r, &req); err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	printer, err := c.printers.Register(r.Context(), req)
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusCreated, dto.NewPrinterResponse(printer), c.logger)
}

func (c *PrintingController) GetPrinter(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	printer, err := c.printers.Get(r.Context(), chi.URLParam(r, "printerId"))
	c.writePrinter(w, traceID, printer, err)
}

// HealthCheck answers 200 with the printer whether or not it is reachable;
// the outcome is in the printer status.
func (c *PrintingController) HealthCheck(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	printer, err := c.printers.HealthCheck(r.Context(), chi.URLParam(r, "printerId"))
	c.writePrinter(w, traceID, printer, err)
}

func (c *PrintingController) writePrinter(w http.ResponseWriter, traceID string, printer *domain.PrinterConfig, err error) {
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, dto.NewPrinterResponse(printer), c.logger)
}

func (c *PrintingController) TestPrint(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	job, err := c.printers.TestPrint(r.Context(), chi.URLParam(r, "printerId"))
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusCreated, dto.NewJobResponse(job), c.logger)
}

// RouteOrder prints an order on demand with the requested strategy, or the
// configured default.
func (c *PrintingController) RouteOrder(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	var req dto.RouteOrderRequest
	if r.ContentLength != 0 {
		if err := commons.DecodeJSON(r, &req); err != nil {
			commons.WriteError(w, traceID, err, c.logger)
			return
		}
	}

	strategy := c.defaultStrategy
	if req.Strategy != "" {
		strategy = routing.Strategy(req.Strategy)
	}

	order, err := c.orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	jobs, err := c.router.RouteOrderToPrinters(r.Context(), order, strategy, routing.Options{
		SpecificPrinterIDs: req.PrinterIDs,
		Copies:             req.Copies,
	})
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	logger.Info("order routed to printers",
		zap.String("orderId", order.ID),
		zap.String("strategy", string(strategy)),
		zap.Int("jobs", len(jobs)),
	)
	commons.WriteJSON(w, http.StatusCreated, dto.NewJobResponses(jobs), c.logger)
}
