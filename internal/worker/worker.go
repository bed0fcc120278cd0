package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rental-payments/internal/broker"
	"rental-payments/internal/models"
	"rental-payments/internal/redisclient"
	"rental-payments/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Mailer sends customer-facing notification mail. Template rendering
// lives outside this service.
type Mailer interface {
	SendPaymentReceipt(ctx context.Context, email, name, orderID string, amount int64) error
	SendDepositNotice(ctx context.Context, email, orderID string, amount int64) error
}

// InvoiceIssuer requests invoice issuance for a paid order.
type InvoiceIssuer interface {
	Issue(ctx context.Context, orderID string, amount int64, email string) error
}

// NotificationWorker consumes lifecycle events and drives the email and
// invoice side effects. Event handling is idempotent: each event id is
// marked in redis before the side effects run; a marked event is skipped.
type NotificationWorker struct {
	consumer *broker.Consumer
	mailer   Mailer
	invoicer InvoiceIssuer
	redis    *redisclient.Client
	logger   *zap.Logger
}

// NewNotificationWorker creates the worker.
func NewNotificationWorker(consumer *broker.Consumer, mailer Mailer, invoicer InvoiceIssuer, redis *redisclient.Client) *NotificationWorker {
	return &NotificationWorker{
		consumer: consumer,
		mailer:   mailer,
		invoicer: invoicer,
		redis:    redis,
		logger:   util.GetLogger(),
	}
}

// Start consumes until the context is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker.
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	if w.redis != nil {
		first, err := w.redis.MarkEventProcessed(ctx, baseEvent.EventID, 7*24*time.Hour)
		if err != nil {
			w.logger.Warn("Processed-event check unavailable, handling anyway",
				zap.String("event_id", baseEvent.EventID),
				zap.Error(err))
		} else if !first {
			w.logger.Info("Event already processed, skipping",
				zap.String("event_id", baseEvent.EventID))
			return nil
		}
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderPaid:
		var event models.OrderPaidEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal OrderPaid event: %w", err)
		}
		return w.handleOrderPaid(ctx, &event)

	case models.EventTypeDepositHeld:
		var event models.DepositHeldEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal DepositHeld event: %w", err)
		}
		if err := w.mailer.SendDepositNotice(ctx, event.CustomerEmail, event.OrderID, event.Amount); err != nil {
			w.logger.Error("Failed to send deposit notice",
				zap.String("order_id", event.OrderID),
				zap.Error(err))
		}
		return nil

	default:
		w.logger.Debug("Unhandled event type",
			zap.String("event_type", baseEvent.EventType))
		return nil
	}
}

// handleOrderPaid runs the two independent side effects of the first PAID
// transition. Each failure is logged; neither blocks the other and neither
// propagates back to the payment state.
func (w *NotificationWorker) handleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	if err := w.invoicer.Issue(ctx, event.OrderID, event.Amount, event.CustomerEmail); err != nil {
		w.logger.Error("Invoice issuance failed",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	}

	if err := w.mailer.SendPaymentReceipt(ctx, event.CustomerEmail, event.CustomerName,
		event.OrderID, event.Amount); err != nil {
		w.logger.Error("Receipt mail failed",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	}

	return nil
}

// LogMailer is the default Mailer; delivery backends hook in behind the
// same interface.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{logger: util.GetLogger()}
}

func (m *LogMailer) SendPaymentReceipt(_ context.Context, email, name, orderID string, amount int64) error {
	m.logger.Info("Payment receipt mail",
		zap.String("email", email),
		zap.String("name", name),
		zap.String("order_id", orderID),
		zap.Int64("amount", amount))
	return nil
}

func (m *LogMailer) SendDepositNotice(_ context.Context, email, orderID string, amount int64) error {
	m.logger.Info("Deposit notice mail",
		zap.String("email", email),
		zap.String("order_id", orderID),
		zap.Int64("amount", amount))
	return nil
}

// LogInvoicer is the default InvoiceIssuer.
type LogInvoicer struct {
	logger *zap.Logger
}

func NewLogInvoicer() *LogInvoicer {
	return &LogInvoicer{logger: util.GetLogger()}
}

func (i *LogInvoicer) Issue(_ context.Context, orderID string, amount int64, email string) error {
	i.logger.Info("Invoice issuance requested",
		zap.String("order_id", orderID),
		zap.Int64("amount", amount),
		zap.String("email", email))
	return nil
}
