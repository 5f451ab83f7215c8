package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
)

type mockChannel struct {
	PublishFunc func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.PublishFunc(ctx, exchange, key, mandatory, immediate, msg)
}

var pager = &domain.NotificationDevice{ID: "d1", BranchID: "b1", Type: domain.DeviceTypePager, Address: "17"}

func TestSend_PublishesToExchange(t *testing.T) {
	var exchange string
	var body PagerMessage
	transport := NewPagerTransport(&mockChannel{PublishFunc: func(_ context.Context, ex, _ string, _, _ bool, msg amqp.Publishing) error {
		exchange = ex
		assert.Equal(t, "application/json", msg.ContentType)
		assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
		return json.Unmarshal(msg.Body, &body)
	}}, "pager_notifications", zap.NewNop())

	err := transport.Send(context.Background(), pager, "Order #12 is ready for pickup")

	require.NoError(t, err)
	assert.Equal(t, "pager_notifications", exchange)
	assert.Equal(t, "d1", body.DeviceID)
	assert.Equal(t, "PAGER", body.DeviceType)
	assert.Equal(t, "Order #12 is ready for pickup", body.Message)
}

func TestSend_FailureIsTransportError(t *testing.T) {
	cause := errors.New("channel closed")
	transport := NewPagerTransport(&mockChannel{PublishFunc: func(context.Context, string, string, bool, bool, amqp.Publishing) error {
		return cause
	}}, "pager_notifications", zap.NewNop())

	err := transport.Send(context.Background(), pager, "x")

	te, ok := apperrors.IsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, CodePublishFailed, te.Code)
	assert.ErrorIs(t, err, cause)
}
