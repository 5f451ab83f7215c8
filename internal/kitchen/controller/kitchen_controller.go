package controller

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitchenops/internal/commons"
	"kitchenops/internal/domain"
	"kitchenops/internal/dto"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/kitchen/service"
)

type KitchenService interface {
	GetQueue(ctx context.Context, filter service.QueueFilter) (*service.QueuePage, error)
	MarkItemReady(ctx context.Context, itemID, notes, actor string) (*domain.Order, error)
	StartItem(ctx context.Context, itemID, actor string) (*domain.Order, error)
	BumpOrderItem(ctx context.Context, itemID, actor string) (*domain.Order, error)
	BumpOrder(ctx context.Context, orderID string, itemIDs []string, actor string) (*domain.Order, error)
	RecallOrder(ctx context.Context, orderID, actor, note string) (*domain.Order, error)
	GetOrdersByCourseSequence(ctx context.Context, branchID string) ([]service.TableGroup, error)
	GetPerformanceMetrics(ctx context.Context, branchID string, from, to time.Time) (*service.PerformanceMetrics, error)
}

const defaultMetricsWindow = 24 * time.Hour

type KitchenController struct {
	service KitchenService
	logger  *zap.Logger
	now     func() time.Time
}

func NewKitchenController(service KitchenService, logger *zap.Logger) *KitchenController {
	return &KitchenController{
		service: service,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *KitchenController) RegisterRoutes(r chi.Router) {
	r.Route("/kitchen", func(r chi.Router) {
		r.Get("/queue", c.GetQueue)
		r.Get("/course-sequence", c.GetCourseSequence)
		r.Get("/metrics", c.GetMetrics)
		r.Post("/items/{itemId}/start", c.StartItem)
		r.Post("/items/{itemId}/ready", c.MarkItemReady)
		r.Post("/items/{itemId}/bump", c.BumpItem)
		r.Post("/orders/{orderId}/bump", c.BumpOrder)
		r.Post("/orders/{orderId}/recall", c.RecallOrder)
	})
}

func (c *KitchenController) GetQueue(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	filter, err := parseQueueFilter(r.URL.Query())
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	page, err := c.service.GetQueue(r.Context(), filter)
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, page, c.logger)
}

func parseQueueFilter(q url.Values) (service.QueueFilter, error) {
	var details []apperrors.ValidationDetail
	filter := service.QueueFilter{
		BranchID:    q.Get("branchId"),
		StationID:   q.Get("stationId"),
		Priority:    domain.Priority(q.Get("priority")),
		Course:      domain.Course(q.Get("course")),
		OverdueOnly: q.Get("overdue") == "true",
		WarningOnly: q.Get("warning") == "true",
		SortBy:      service.SortKey(q.Get("sortBy")),
		Descending:  strings.EqualFold(q.Get("order"), "desc"),
	}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.OrderStatus(strings.TrimSpace(s)))
		}
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		details = append(details, apperrors.ValidationDetail{Field: "priority", Message: "unknown priority"})
	}
	if filter.Course != "" && filter.Course.Rank() > domain.CourseBeverage.Rank() {
		details = append(details, apperrors.ValidationDetail{Field: "course", Message: "unknown course"})
	}
	switch filter.SortBy {
	case "", service.SortByPriority, service.SortByAge, service.SortByPrepTime, service.SortByCreatedAt:
	default:
		details = append(details, apperrors.ValidationDetail{Field: "sortBy", Message: "sortBy must be priority, age, prepTime or createdAt"})
	}

	var err error
	if filter.Page, err = intParam(q, "page", 1); err != nil || filter.Page < 1 {
		details = append(details, apperrors.ValidationDetail{Field: "page", Message: "page must be a positive integer"})
	}
	if filter.Limit, err = intParam(q, "limit", 50); err != nil || filter.Limit < 1 {
		details = append(details, apperrors.ValidationDetail{Field: "limit", Message: "limit must be a positive integer"})
	} else if filter.Limit > maxQueueLimit {
		filter.Limit = maxQueueLimit
	}

	if len(details) > 0 {
		return filter, apperrors.NewValidationError("invalid queue filter", details...)
	}
	return filter, nil
}

const maxQueueLimit = 200

func intParam(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (c *KitchenController) GetCourseSequence(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	groups, err := c.service.GetOrdersByCourseSequence(r.Context(), r.URL.Query().Get("branchId"))
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	if groups == nil {
		groups = []service.TableGroup{}
	}
	commons.WriteJSON(w, http.StatusOK, groups, c.logger)
}

// GetMetrics defaults to the last 24 hours when the window is not given.
func (c *KitchenController) GetMetrics(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	q := r.URL.Query()

	to := c.now().UTC()
	var from time.Time
	var details []apperrors.ValidationDetail
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			details = append(details, apperrors.ValidationDetail{Field: "to", Message: "to must be an RFC3339 timestamp"})
		}
		to = t
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			details = append(details, apperrors.ValidationDetail{Field: "from", Message: "from must be an RFC3339 timestamp"})
		}
		from = t
	} else {
		from = to.Add(-defaultMetricsWindow)
	}
	if len(details) > 0 {
		commons.WriteError(w, traceID, apperrors.NewValidationError("invalid metrics window", details...), c.logger)
		return
	}

	metrics, err := c.service.GetPerformanceMetrics(r.Context(), q.Get("branchId"), from, to)
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, metrics, c.logger)
}

func (c *KitchenController) StartItem(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	order, err := c.service.StartItem(r.Context(), chi.URLParam(r, "itemId"), commons.Actor(r))
	c.writeOrder(w, traceID, order, err)
}

func (c *KitchenController) MarkItemReady(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req dto.MarkItemReadyRequest
	if r.ContentLength != 0 {
		if err := commons.DecodeJSON(r, &req); err != nil {
			commons.WriteError(w, traceID, err, c.logger)
			return
		}
	}

	order, err := c.service.MarkItemReady(r.Context(), chi.URLParam(r, "itemId"), req.Notes, commons.Actor(r))
	c.writeOrder(w, traceID, order, err)
}

func (c *KitchenController) BumpItem(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	order, err := c.service.BumpOrderItem(r.Context(), chi.URLParam(r, "itemId"), commons.Actor(r))
	c.writeOrder(w, traceID, order, err)
}

// BumpOrder bumps every live item when the body names none.
func (c *KitchenController) BumpOrder(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req dto.BumpOrderRequest
	if r.ContentLength != 0 {
		if err := commons.DecodeJSON(r, &req); err != nil {
			commons.WriteError(w, traceID, err, c.logger)
			return
		}
	}

	order, err := c.service.BumpOrder(r.Context(), chi.URLParam(r, "orderId"), req.ItemIDs, commons.Actor(r))
	c.writeOrder(w, traceID, order, err)
}

func (c *KitchenController) RecallOrder(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req dto.RecallOrderRequest
	if r.ContentLength != 0 {
		if err := commons.DecodeJSON(r, &req); err != nil {
			commons.WriteError(w, traceID, err, c.logger)
			return
		}
	}

	order, err := c.service.RecallOrder(r.Context(), chi.URLParam(r, "orderId"), commons.Actor(r), req.Note)
	c.writeOrder(w, traceID, order, err)
}

func (c *KitchenController) writeOrder(w http.ResponseWriter, traceID string, order *domain.Order, err error) {
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, dto.NewOrderResponse(order), c.logger)
}
