package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitchenops/internal/commons"
	"kitchenops/internal/domain"
	"kitchenops/internal/dto"
	"kitchenops/internal/notification/service"
)

type NotificationService interface {
	Send(ctx context.Context, req service.SendRequest) (*domain.NotificationRecord, error)
	Acknowledge(ctx context.Context, id string) (*domain.NotificationRecord, error)
	Cancel(ctx context.Context, id string) (*domain.NotificationRecord, error)
	Retry(ctx context.Context, id string) (*domain.NotificationRecord, error)
	List(ctx context.Context, branchID string, status domain.NotificationStatus) ([]domain.NotificationRecord, error)
}

type NotificationController struct {
	service NotificationService
	logger  *zap.Logger
}

func NewNotificationController(service NotificationService, logger *zap.Logger) *NotificationController {
	return &NotificationController{
		service: service,
		logger:  logger,
	}
}

func (c *NotificationController) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", c.Send)
		r.Get("/", c.List)
		r.Post("/{notificationId}/acknowledge", c.record(c.service.Acknowledge))
		r.Post("/{notificationId}/cancel", c.record(c.service.Cancel))
		r.Post("/{notificationId}/retry", c.record(c.service.Retry))
	})
}

// Send answers 201 even when the transport failed; the record carries the
// failure and the retry budget.
func (c *NotificationController) Send(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req service.SendRequest
	if err := commons.DecodeJSON(r, &req); err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	record, err := c.service.Send(r.Context(), req)
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusCreated, dto.NewNotificationResponse(record), c.logger)
}

func (c *NotificationController) List(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	q := r.URL.Query()

	records, err := c.service.List(r.Context(), q.Get("branchId"), domain.NotificationStatus(q.Get("status")))
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	resp := make([]dto.NotificationResponse, len(records))
	for i := range records {
		resp[i] = dto.NewNotificationResponse(&records[i])
	}
	commons.WriteJSON(w, http.StatusOK, resp, c.logger)
}

func (c *NotificationController) record(fn func(ctx context.Context, id string) (*domain.NotificationRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := uuid.New().String()

		record, err := fn(r.Context(), chi.URLParam(r, "notificationId"))
		if err != nil {
			commons.WriteError(w, traceID, err, c.logger)
			return
		}
		commons.WriteJSON(w, http.StatusOK, dto.NewNotificationResponse(record), c.logger)
	}
}
