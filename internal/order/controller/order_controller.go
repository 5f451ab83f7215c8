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
	"kitchenops/internal/order/service"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	Confirm(ctx context.Context, id, actor string) (*domain.Order, error)
	StartPreparing(ctx context.Context, id, actor string) (*domain.Order, error)
	MarkReady(ctx context.Context, id, actor string) (*domain.Order, error)
	Serve(ctx context.Context, id, actor string) (*domain.Order, error)
	Complete(ctx context.Context, id, actor string) (*domain.Order, error)
	Cancel(ctx context.Context, id, actor, reason string) (*domain.Order, error)
	UpdateItemQuantity(ctx context.Context, orderID, itemID string, quantity int, actor string) (*domain.Order, error)
	RemoveItem(ctx context.Context, orderID, itemID, actor string) (*domain.Order, error)
}

type OrderController struct {
	service OrderService
	logger  *zap.Logger
}

func NewOrderController(service OrderService, logger *zap.Logger) *OrderController {
	return &OrderController{
		service: service,
		logger:  logger,
	}
}

func (c *OrderController) RegisterRoutes(r chi.Router) {
	r.Post("/orders", c.Create)
	r.Get("/orders/{orderId}", c.Get)
	r.Post("/orders/{orderId}/confirm", c.transition(c.service.Confirm))
	r.Post("/orders/{orderId}/start", c.transition(c.service.StartPreparing))
	r.Post("/orders/{orderId}/ready", c.transition(c.service.MarkReady))
	r.Post("/orders/{orderId}/serve", c.transition(c.service.Serve))
	r.Post("/orders/{orderId}/complete", c.transition(c.service.Complete))
	r.Post("/orders/{orderId}/cancel", c.Cancel)
	r.Patch("/orders/{orderId}/items/{itemId}", c.UpdateItemQuantity)
	r.Delete("/orders/{orderId}/items/{itemId}", c.RemoveItem)
}

func (c *OrderController) Create(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req service.CreateOrderRequest
	if err := commons.DecodeJSON(r, &req); err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	order, err := c.service.CreateOrder(r.Context(), req)
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	c.logger.Info("order created",
		zap.String("traceId", traceID),
		zap.String("orderId", order.ID),
		zap.Int("items", len(order.Items)),
	)
	commons.WriteJSON(w, http.StatusCreated, dto.NewOrderResponse(order), c.logger)
}

func (c *OrderController) Get(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	order, err := c.service.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, dto.NewOrderResponse(order), c.logger)
}

type transitionFunc func(ctx context.Context, id, actor string) (*domain.Order, error)

func (c *OrderController) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := uuid.New().String()

		order, err := fn(r.Context(), chi.URLParam(r, "orderId"), commons.Actor(r))
		if err != nil {
			commons.WriteError(w, traceID, err, c.logger)
			return
		}
		commons.WriteJSON(w, http.StatusOK, dto.NewOrderResponse(order), c.logger)
	}
}

func (c *OrderController) Cancel(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req dto.StatusChangeRequest
	if err := commons.DecodeJSON(r, &req); err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	order, err := c.service.Cancel(r.Context(), chi.URLParam(r, "orderId"), commons.Actor(r), req.Reason)
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, dto.NewOrderResponse(order), c.logger)
}

func (c *OrderController) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	var req dto.UpdateItemQuantityRequest
	if err := commons.DecodeJSON(r, &req); err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}

	order, err := c.service.UpdateItemQuantity(r.Context(),
		chi.URLParam(r, "orderId"), chi.URLParam(r, "itemId"), req.Quantity, commons.Actor(r))
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, dto.NewOrderResponse(order), c.logger)
}

func (c *OrderController) RemoveItem(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	order, err := c.service.RemoveItem(r.Context(),
		chi.URLParam(r, "orderId"), chi.URLParam(r, "itemId"), commons.Actor(r))
	if err != nil {
		commons.WriteError(w, traceID, err, c.logger)
		return
	}
	commons.WriteJSON(w, http.StatusOK, dto.NewOrderResponse(order), c.logger)
}
