// Package notify is the boundary between the lifecycle engine and its
// side effects. The engine calls the Dispatcher on specific transitions;
// dispatch failures are logged by the caller and never roll a transition
// back.
package notify

import (
	"context"
	"time"

	"rental-payments/internal/broker"
	"rental-payments/internal/models"

	"github.com/google/uuid"
)

// Dispatcher is invoked by the state machine on notable transitions.
type Dispatcher interface {
	OrderPaid(ctx context.Context, order *models.Order, gatewayTradeNo string) error
	OrderPaymentFailed(ctx context.Context, order *models.Order, reason string) error
	DepositHeld(ctx context.Context, order *models.Order, dep *models.Deposit) error
	DepositCaptured(ctx context.Context, dep *models.Deposit) error
	DepositVoided(ctx context.Context, dep *models.Deposit) error
}

// EventPublisher dispatches transitions as Kafka events; the notification
// worker consumes them and drives the mailer and invoice issuer.
type EventPublisher struct {
	producer *broker.Producer
}

// NewEventPublisher creates a Kafka-backed dispatcher.
func NewEventPublisher(producer *broker.Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func base(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func (ep *EventPublisher) OrderPaid(ctx context.Context, order *models.Order, gatewayTradeNo string) error {
	return ep.producer.PublishEvent(ctx, order.OrderID, &models.OrderPaidEvent{
		BaseEvent:      base(models.EventTypeOrderPaid),
		OrderID:        order.OrderID,
		Amount:         order.FinalAmount,
		GatewayTradeNo: gatewayTradeNo,
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
	})
}

func (ep *EventPublisher) OrderPaymentFailed(ctx context.Context, order *models.Order, reason string) error {
	return ep.producer.PublishEvent(ctx, order.OrderID, &models.OrderFailedEvent{
		BaseEvent: base(models.EventTypeOrderFailed),
		OrderID:   order.OrderID,
		Reason:    reason,
	})
}

func (ep *EventPublisher) DepositHeld(ctx context.Context, order *models.Order, dep *models.Deposit) error {
	return ep.producer.PublishEvent(ctx, dep.OrderID, &models.DepositHeldEvent{
		BaseEvent:      base(models.EventTypeDepositHeld),
		OrderID:        dep.OrderID,
		TradeNo:        dep.TradeNo,
		GatewayTradeNo: dep.GatewayTradeNo,
		Amount:         dep.Amount,
		CustomerEmail:  order.CustomerEmail,
	})
}

func (ep *EventPublisher) DepositCaptured(ctx context.Context, dep *models.Deposit) error {
	return ep.producer.PublishEvent(ctx, dep.OrderID, &models.DepositCapturedEvent{
		BaseEvent:      base(models.EventTypeDepositCaptured),
		OrderID:        dep.OrderID,
		CapturedAmount: dep.CapturedAmount,
		Amount:         dep.Amount,
		Status:         dep.Status,
	})
}

func (ep *EventPublisher) DepositVoided(ctx context.Context, dep *models.Deposit) error {
	return ep.producer.PublishEvent(ctx, dep.OrderID, &models.DepositVoidedEvent{
		BaseEvent: base(models.EventTypeDepositVoided),
		OrderID:   dep.OrderID,
		TradeNo:   dep.TradeNo,
	})
}
