package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenops/internal/domain"
	"kitchenops/internal/dto"
	"kitchenops/internal/events"
	"kitchenops/internal/notification/service"
	"kitchenops/internal/testutil"
)

type failingTransport struct{}

func (failingTransport) Send(context.Context, *domain.NotificationDevice, string) error {
	return errors.New("pager offline")
}

func newHandler(records ...domain.NotificationRecord) http.Handler {
	devices := testutil.NewDeviceStore(domain.NotificationDevice{
		ID: "pager-1", BranchID: "b1", Type: domain.DeviceTypePager, Active: true,
	})
	svc := service.NewService(devices, testutil.NewNotificationStore(records...), failingTransport{}, events.Nop{}, 3, time.Second, zap.NewNop())

	r := chi.NewRouter()
	NewNotificationController(svc, zap.NewNop()).RegisterRoutes(r)
	return r
}

func TestNotificationController_SendRecordsTransportFailure(t *testing.T) {
	body := `{"branchId":"b1","deviceId":"pager-1","message":"Table 4 ready"}`
	rec := httptest.NewRecorder()
	newHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notifications/", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp dto.NotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.NotificationPending, resp.Status)
	assert.Equal(t, 1, resp.RetryCount)
	assert.Equal(t, "pager offline", resp.LastError)
}

func TestNotificationController_AcknowledgeTwice(t *testing.T) {
	now := time.Now()
	h := newHandler(domain.NotificationRecord{
		ID: "n1", BranchID: "b1", DeviceID: "pager-1", Status: domain.NotificationSent,
		MaxRetries: 3, ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notifications/n1/acknowledge", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notifications/n1/acknowledge", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestNotificationController_UnknownIs404(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notifications/nope/cancel", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
