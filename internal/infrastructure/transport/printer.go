package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
)

const (
	DefaultRawPort = 9100

	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeUnsupported      = "UNSUPPORTED_CONNECTION"
)

// PrinterTransport delivers rendered tickets to NETWORK printers over a raw
// TCP socket. Other connection types are driven by local agents and are
// reported as unsupported here.
type PrinterTransport struct {
	dialer *net.Dialer
	logger *zap.Logger
}

func NewPrinterTransport(logger *zap.Logger) *PrinterTransport {
	return &PrinterTransport{
		dialer: &net.Dialer{Timeout: 5 * time.Second},
		logger: logger,
	}
}

func (t *PrinterTransport) Send(ctx context.Context, printer *domain.PrinterConfig, content string, copies int) error {
	conn, err := t.connect(ctx, printer)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if copies < 1 {
		copies = 1
	}
	payload := []byte(content)
	for i := 0; i < copies; i++ {
		if _, err := conn.Write(payload); err != nil {
			return apperrors.NewTransportError(CodeWriteFailed, "writing to printer "+printer.Name, err)
		}
	}

	t.logger.Debug("ticket sent", zap.String("printerId", printer.ID), zap.Int("copies", copies), zap.Int("bytes", len(payload)))
	return nil
}

// Check opens and closes a connection to confirm the printer is reachable.
func (t *PrinterTransport) Check(ctx context.Context, printer *domain.PrinterConfig) error {
	conn, err := t.connect(ctx, printer)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (t *PrinterTransport) connect(ctx context.Context, printer *domain.PrinterConfig) (net.Conn, error) {
	if printer.ConnectionType != domain.ConnectionNetwork {
		return nil, apperrors.NewTransportError(CodeUnsupported,
			fmt.Sprintf("connection type %s is not handled by this server", printer.ConnectionType), nil)
	}
	port := printer.Port
	if port == 0 {
		port = DefaultRawPort
	}
	addr := net.JoinHostPort(printer.Address, strconv.Itoa(port))
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperrors.NewTransportError(CodeConnectionFailed, "connecting to printer "+printer.Name, err)
	}
	return conn, nil
}
