package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenops/internal/commons"
	"kitchenops/internal/domain"
	"kitchenops/internal/dto"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/order/service"
)

type mockOrderService struct {
	CreateOrderFunc        func(ctx context.Context, req service.CreateOrderRequest) (*domain.Order, error)
	TransitionFunc         func(ctx context.Context, id, actor string) (*domain.Order, error)
	CancelFunc             func(ctx context.Context, id, actor, reason string) (*domain.Order, error)
	UpdateItemQuantityFunc func(ctx context.Context, orderID, itemID string, quantity int, actor string) (*domain.Order, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*domain.Order, error) {
	return m.CreateOrderFunc(ctx, req)
}

func (m *mockOrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return m.TransitionFunc(ctx, id, "")
}

func (m *mockOrderService) Confirm(ctx context.Context, id, actor string) (*domain.Order, error) {
	return m.TransitionFunc(ctx, id, actor)
}

func (m *mockOrderService) StartPreparing(ctx context.Context, id, actor string) (*domain.Order, error) {
	return m.TransitionFunc(ctx, id, actor)
}

func (m *mockOrderService) MarkReady(ctx context.Context, id, actor string) (*domain.Order, error) {
	return m.TransitionFunc(ctx, id, actor)
}

func (m *mockOrderService) Serve(ctx context.Context, id, actor string) (*domain.Order, error) {
	return m.TransitionFunc(ctx, id, actor)
}

func (m *mockOrderService) Complete(ctx context.Context, id, actor string) (*domain.Order, error) {
	return m.TransitionFunc(ctx, id, actor)
}

func (m *mockOrderService) Cancel(ctx context.Context, id, actor, reason string) (*domain.Order, error) {
	return m.CancelFunc(ctx, id, actor, reason)
}

func (m *mockOrderService) UpdateItemQuantity(ctx context.Context, orderID, itemID string, quantity int, actor string) (*domain.Order, error) {
	return m.UpdateItemQuantityFunc(ctx, orderID, itemID, quantity, actor)
}

func (m *mockOrderService) RemoveItem(ctx context.Context, orderID, itemID, actor string) (*domain.Order, error) {
	return m.TransitionFunc(ctx, orderID, actor)
}

func newRouter(svc OrderService) http.Handler {
	r := chi.NewRouter()
	NewOrderController(svc, zap.NewNop()).RegisterRoutes(r)
	return r
}

func TestOrderController_ConfirmPassesActor(t *testing.T) {
	var gotID, gotActor string
	svc := &mockOrderService{
		TransitionFunc: func(_ context.Context, id, actor string) (*domain.Order, error) {
			gotID, gotActor = id, actor
			return &domain.Order{ID: id, Status: domain.OrderStatusConfirmed}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/o1/confirm", nil)
	req.Header.Set(commons.ActorHeader, "host-2")
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "o1", gotID)
	assert.Equal(t, "host-2", gotActor)

	var body dto.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.OrderStatusConfirmed, body.Status)
}

func TestOrderController_InvalidTransitionIs409(t *testing.T) {
	svc := &mockOrderService{
		TransitionFunc: func(context.Context, string, string) (*domain.Order, error) {
			return nil, apperrors.NewInvalidTransitionError("order", "COMPLETED", "READY")
		},
	}

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/o1/ready", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	var body commons.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_TRANSITION", body.Code)
	assert.Equal(t, "COMPLETED", body.Current)
	assert.NotEmpty(t, body.TraceID)
}

func TestOrderController_CancelReadsReason(t *testing.T) {
	var gotReason string
	svc := &mockOrderService{
		CancelFunc: func(_ context.Context, id, _, reason string) (*domain.Order, error) {
			gotReason = reason
			return &domain.Order{ID: id, Status: domain.OrderStatusCancelled, CancellationReason: reason}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/o1/cancel", strings.NewReader(`{"reason":"walked out"}`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "walked out", gotReason)
}

func TestOrderController_CreateRejectsMalformedBody(t *testing.T) {
	svc := &mockOrderService{
		CreateOrderFunc: func(context.Context, service.CreateOrderRequest) (*domain.Order, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("{")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderController_UpdateItemQuantity(t *testing.T) {
	svc := &mockOrderService{
		UpdateItemQuantityFunc: func(_ context.Context, orderID, itemID string, quantity int, _ string) (*domain.Order, error) {
			assert.Equal(t, "o1", orderID)
			assert.Equal(t, "i1", itemID)
			assert.Equal(t, 3, quantity)
			return &domain.Order{ID: orderID}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/orders/o1/items/i1", strings.NewReader(`{"quantity":3}`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
