package models

import "time"

// Event types
const (
	EventTypeOrderPaid       = "ORDER_PAID"
	EventTypeOrderFailed     = "ORDER_PAYMENT_FAILED"
	EventTypeDepositHeld     = "DEPOSIT_HELD"
	EventTypeDepositCaptured = "DEPOSIT_CAPTURED"
	EventTypeDepositVoided   = "DEPOSIT_VOIDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPaidEvent published on the first transition to PAID. The worker
// issues the invoice and sends the receipt mail off this event.
type OrderPaidEvent struct {
	BaseEvent
	OrderID        string `json:"order_id"`
	Amount         int64  `json:"amount"`
	GatewayTradeNo string `json:"gateway_trade_no"`
	CustomerName   string `json:"customer_name"`
	CustomerEmail  string `json:"customer_email"`
}

// OrderFailedEvent published when a payment callback reports failure.
type OrderFailedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// DepositHeldEvent published when a pre-authorization is confirmed held.
type DepositHeldEvent struct {
	BaseEvent
	OrderID        string `json:"order_id"`
	TradeNo        string `json:"trade_no"`
	GatewayTradeNo string `json:"gateway_trade_no"`
	Amount         int64  `json:"amount"`
	CustomerEmail  string `json:"customer_email"`
}

// DepositCapturedEvent published after a successful capture.
type DepositCapturedEvent struct {
	BaseEvent
	OrderID        string `json:"order_id"`
	CapturedAmount int64  `json:"captured_amount"`
	Amount         int64  `json:"amount"`
	Status         string `json:"status"`
}

// DepositVoidedEvent published after a successful void.
type DepositVoidedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	TradeNo string `json:"trade_no"`
}
