package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"kitchenops/internal/config"
	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
)

const CodePublishFailed = "PUBLISH_FAILED"

type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type PagerMessage struct {
	DeviceID   string    `json:"deviceId"`
	DeviceType string    `json:"deviceType"`
	Address    string    `json:"address"`
	BranchID   string    `json:"branchId"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sentAt"`
}

// PagerTransport hands notifications to the device drivers listening on a
// fanout exchange. A broker confirm is treated as the device ack.
type PagerTransport struct {
	channel  Channel
	exchange string
	logger   *zap.Logger
}

func NewPagerTransport(channel Channel, exchange string, logger *zap.Logger) *PagerTransport {
	return &PagerTransport{channel: channel, exchange: exchange, logger: logger}
}

func (t *PagerTransport) Send(ctx context.Context, device *domain.NotificationDevice, message string) error {
	body, err := json.Marshal(PagerMessage{
		DeviceID:   device.ID,
		DeviceType: string(device.Type),
		Address:    device.Address,
		BranchID:   device.BranchID,
		Message:    message,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding pager message: %w", err)
	}

	err = t.channel.PublishWithContext(ctx, t.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return apperrors.NewTransportError(CodePublishFailed, "publishing to device "+device.ID, err)
	}

	t.logger.Debug("pager message published", zap.String("deviceId", device.ID), zap.String("exchange", t.exchange))
	return nil
}

// Connection owns the AMQP connection and the channel the transport publishes on.
type Connection struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

func Connect(cfg config.RabbitMQConfig, logger *zap.Logger) (*Connection, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening rabbitmq channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"fanout",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info("rabbitmq connected", zap.String("exchange", cfg.Exchange))
	return &Connection{Conn: conn, Channel: ch}, nil
}

func (c *Connection) Close() {
	if c.Channel != nil {
		c.Channel.Close()
	}
	if c.Conn != nil {
		c.Conn.Close()
	}
}
