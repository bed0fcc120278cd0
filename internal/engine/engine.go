package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rental-payments/internal/gateway"
	"rental-payments/internal/ledger"
	"rental-payments/internal/models"
	"rental-payments/internal/notify"
	"rental-payments/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway is the outbound payment-gateway surface the engine drives.
type Gateway interface {
	CreatePayment(env gateway.Environment, req gateway.CheckoutRequest) *gateway.CheckoutForm
	CreatePreAuth(env gateway.Environment, req gateway.CheckoutRequest) *gateway.CheckoutForm
	Capture(ctx context.Context, env gateway.Environment, tradeNo, gatewayTradeNo string, amount int64) (*gateway.ActionResult, error)
	VoidRelease(ctx context.Context, env gateway.Environment, tradeNo, gatewayTradeNo string, amount int64) (*gateway.ActionResult, error)
	QueryTrade(ctx context.Context, env gateway.Environment, tradeNo string) (*gateway.TradeInfo, error)
}

// Locker provides advisory per-order locks. May be nil; the engine then
// relies on the optimistic re-read alone.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// Engine is the order state machine. Every operation re-reads current
// ledger state immediately before transitioning; nothing is cached across
// calls.
type Engine struct {
	ledger     ledger.Store
	gateway    Gateway
	envs       *gateway.Registry
	locks      Locker
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

// New creates the lifecycle engine.
func New(store ledger.Store, gw Gateway, envs *gateway.Registry, locks Locker, dispatcher notify.Dispatcher) *Engine {
	return &Engine{
		ledger:     store,
		gateway:    gw,
		envs:       envs,
		locks:      locks,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}
}

// CreateOrderRequest is a booking request.
type CreateOrderRequest struct {
	CustomerName  string `json:"customer_name" binding:"required"`
	CustomerPhone string `json:"customer_phone" binding:"required"`
	CustomerEmail string `json:"customer_email" binding:"required,email"`
	FinalAmount   int64  `json:"final_amount" binding:"required,min=1"`
}

// CreateOrder records a booking with payment PENDING.
func (e *Engine) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Engine.CreateOrder")
	defer span.End()

	order := &models.Order{
		OrderID:       newOrderID(),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		FinalAmount:   req.FinalAmount,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := e.ledger.PutOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	e.logger.Info("Order created",
		zap.String("order_id", order.OrderID),
		zap.Int64("final_amount", order.FinalAmount))
	return order, nil
}

// newOrderID generates a booking id that also serves as the gateway
// MerchantTradeNo for the rental payment, so it must stay within the
// gateway's 20-character alphanumeric limit.
func newOrderID() string {
	return "RNT" + time.Now().Format("060102150405") +
		strings.ToUpper(uuid.New().String()[:5])
}

// GetOrder retrieves an order.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return e.ledger.GetOrder(ctx, orderID)
}

// GetDeposit retrieves the deposit for an order.
func (e *Engine) GetDeposit(ctx context.Context, orderID string) (*models.Deposit, error) {
	return e.ledger.GetDeposit(ctx, orderID)
}

// Checkout builds the browser-redirect form for the rental payment itself.
// No local state changes; the outcome arrives on the payment callback.
func (e *Engine) Checkout(ctx context.Context, orderID string) (*gateway.CheckoutForm, error) {
	ctx, span := util.StartSpan(ctx, "Engine.Checkout")
	defer span.End()

	order, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, guardf("order %s is already paid", orderID)
	}

	form := e.gateway.CreatePayment(e.envs.Default(), gateway.CheckoutRequest{
		TradeNo:     order.OrderID,
		Amount:      order.FinalAmount,
		Description: "phone rental payment",
		ItemName:    fmt.Sprintf("Phone rental %s", order.OrderID),
	})
	return form, nil
}

// DepositIntent is the result of creating a deposit pre-authorization.
type DepositIntent struct {
	Deposit *models.Deposit
	Form    *gateway.CheckoutForm
}

// CreateDeposit creates a security-deposit pre-authorization for a paid
// order. The deposit row is written PENDING before the gateway confirms;
// the HELD transition arrives on the deposit callback.
func (e *Engine) CreateDeposit(ctx context.Context, orderID string, amount int64) (*DepositIntent, error) {
	ctx, span := util.StartSpan(ctx, "Engine.CreateDeposit")
	defer span.End()

	order, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != models.PaymentStatusPaid {
		return nil, guardf("order %s is not paid (status %s); deposit requires a paid order",
			orderID, order.PaymentStatus)
	}
	if amount <= 0 {
		return nil, guardf("deposit amount must be positive, got %d", amount)
	}

	if existing, err := e.ledger.GetDeposit(ctx, orderID); err == nil {
		// A failed pre-auth never reached HELD; a fresh attempt replaces it
		// under a new trade number. Anything else is a duplicate.
		if existing.Status != models.DepositStatusPreauthFailed {
			return nil, ErrDepositExists
		}
		e.logger.Info("Retrying failed deposit pre-authorization",
			zap.String("order_id", orderID),
			zap.String("previous_trade_no", existing.TradeNo))
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	dep := &models.Deposit{
		OrderID: orderID,
		TradeNo: gateway.PreAuthTradeNo(orderID, time.Now()),
		Amount:  amount,
		Status:  models.DepositStatusPending,
	}

	form := e.gateway.CreatePreAuth(e.envs.Default(), gateway.CheckoutRequest{
		TradeNo:     dep.TradeNo,
		Amount:      amount,
		Description: "phone rental security deposit",
		ItemName:    fmt.Sprintf("Security deposit %s", orderID),
	})

	if err := e.ledger.PutDeposit(ctx, dep); err != nil {
		return nil, fmt.Errorf("failed to write deposit: %w", err)
	}

	util.DepositsCreatedTotal.Inc()
	e.logger.Info("Deposit pre-authorization created",
		zap.String("order_id", orderID),
		zap.String("trade_no", dep.TradeNo),
		zap.Int64("amount", amount))

	return &DepositIntent{Deposit: dep, Form: form}, nil
}

// Capture closes part or all of a held deposit. Guards run before any
// gateway call; the write-back re-reads the row and aborts on concurrent
// change.
func (e *Engine) Capture(ctx context.Context, orderID string, amount int64) (*models.Deposit, error) {
	ctx, span := util.StartSpan(ctx, "Engine.Capture")
	defer span.End()

	unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dep, err := e.ledger.GetDeposit(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if dep.ReconcileRequired {
		return nil, guardf("order %s has an unresolved gateway outcome; reconcile before retrying", orderID)
	}
	if !models.CanCapture(dep.Status) {
		return nil, guardf("deposit in status %s cannot be captured", dep.Status)
	}
	if amount <= 0 {
		return nil, guardf("capture amount must be positive, got %d", amount)
	}
	if amount > dep.Remaining() {
		return nil, guardf("capture %d exceeds remaining capturable amount %d",
			amount, dep.Remaining())
	}

	res, err := e.gateway.Capture(ctx, e.envs.Default(), dep.TradeNo, dep.GatewayTradeNo, amount)
	if err != nil {
		e.logger.Error("Capture outcome unknown",
			zap.String("order_id", orderID),
			zap.String("trade_no", dep.TradeNo),
			zap.Error(err))
		util.CapturesFailedTotal.WithLabelValues("unknown_outcome").Inc()
		e.flagReconcileRequired(ctx, orderID)
		return nil, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
	}

	if !res.Success {
		util.CapturesFailedTotal.WithLabelValues("gateway_declined").Inc()
		if err := e.markFailed(ctx, orderID, models.DepositStatusCaptureFailed); err != nil {
			e.logger.Error("Failed to record capture failure", zap.Error(err))
		}
		return nil, &DeclinedError{Code: res.Code, Message: res.Message}
	}

	// The gateway applied the capture; re-read before writing back.
	fresh, err := e.ledger.GetDeposit(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if fresh.CapturedAmount != dep.CapturedAmount || fresh.Status != dep.Status {
		e.logger.Error("Deposit row changed during capture; write aborted, reconcile required",
			zap.String("order_id", orderID),
			zap.Int64("read_captured", dep.CapturedAmount),
			zap.Int64("current_captured", fresh.CapturedAmount))
		return nil, ErrConflict
	}

	fresh.CapturedAmount += amount
	if fresh.CapturedAmount == fresh.Amount {
		fresh.Status = models.DepositStatusCaptured
	} else {
		fresh.Status = models.DepositStatusPartialCaptured
	}
	if err := e.ledger.PutDeposit(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to write captured deposit: %w", err)
	}

	util.CapturesTotal.Inc()
	e.logger.Info("Deposit captured",
		zap.String("order_id", orderID),
		zap.Int64("amount", amount),
		zap.Int64("captured_total", fresh.CapturedAmount),
		zap.String("status", fresh.Status))

	e.dispatch("DepositCaptured", func() error {
		return e.dispatcher.DepositCaptured(ctx, fresh)
	})
	return fresh, nil
}

// Void releases an uncaptured hold. Rejected outright while any amount is
// captured, regardless of gateway availability.
func (e *Engine) Void(ctx context.Context, orderID string) (*models.Deposit, error) {
	ctx, span := util.StartSpan(ctx, "Engine.Void")
	defer span.End()

	unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dep, err := e.ledger.GetDeposit(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if dep.ReconcileRequired {
		return nil, guardf("order %s has an unresolved gateway outcome; reconcile before retrying", orderID)
	}
	if dep.CapturedAmount > 0 {
		return nil, guardf("deposit has %d captured; a hold with captures cannot be voided",
			dep.CapturedAmount)
	}
	if !models.CanVoid(dep.Status) {
		return nil, guardf("deposit in status %s cannot be voided", dep.Status)
	}

	res, err := e.gateway.VoidRelease(ctx, e.envs.Default(), dep.TradeNo, dep.GatewayTradeNo, dep.Amount)
	if err != nil {
		e.logger.Error("Void outcome unknown",
			zap.String("order_id", orderID),
			zap.String("trade_no", dep.TradeNo),
			zap.Error(err))
		util.VoidsFailedTotal.WithLabelValues("unknown_outcome").Inc()
		e.flagReconcileRequired(ctx, orderID)
		return nil, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
	}

	if !res.Success {
		util.VoidsFailedTotal.WithLabelValues("gateway_declined").Inc()
		if err := e.markFailed(ctx, orderID, models.DepositStatusVoidFailed); err != nil {
			e.logger.Error("Failed to record void failure", zap.Error(err))
		}
		return nil, &DeclinedError{Code: res.Code, Message: res.Message}
	}

	fresh, err := e.ledger.GetDeposit(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if fresh.CapturedAmount != 0 || fresh.Status != dep.Status {
		e.logger.Error("Deposit row changed during void; write aborted, reconcile required",
			zap.String("order_id", orderID))
		return nil, ErrConflict
	}

	fresh.Status = models.DepositStatusVoid
	if err := e.ledger.PutDeposit(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to write voided deposit: %w", err)
	}

	util.VoidsTotal.Inc()
	e.logger.Info("Deposit voided", zap.String("order_id", orderID))

	e.dispatch("DepositVoided", func() error {
		return e.dispatcher.DepositVoided(ctx, fresh)
	})
	return fresh, nil
}

// ReconcileResult reports what the gateway holds as authoritative state
// and whether the ledger was updated from it.
type ReconcileResult struct {
	Deposit     *models.Deposit `json:"deposit"`
	TradeStatus string          `json:"trade_status"`
	Applied     bool            `json:"applied"`
}

// Reconcile queries the gateway for the deposit trade and folds the
// authoritative answer into the ledger. After an unknown-outcome capture
// or void it is the only way to clear the reconcile-required marker and
// unblock further mutation.
func (e *Engine) Reconcile(ctx context.Context, orderID string) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "Engine.Reconcile")
	defer span.End()

	dep, err := e.ledger.GetDeposit(ctx, orderID)
	if err != nil {
		return nil, err
	}

	info, err := e.gateway.QueryTrade(ctx, e.envs.Default(), dep.TradeNo)
	if err != nil {
		return nil, fmt.Errorf("trade query failed: %w", err)
	}

	result := &ReconcileResult{Deposit: dep, TradeStatus: info.TradeStatus}

	switch {
	case dep.Status == models.DepositStatusPending && info.TradeStatus == gateway.TradeStatusHeld:
		// Lost or not-yet-delivered hold callback.
		dep.Status = models.DepositStatusHeld
		dep.GatewayTradeNo = info.TradeNo
		if err := e.ledger.PutDeposit(ctx, dep); err != nil {
			return nil, fmt.Errorf("failed to write reconciled deposit: %w", err)
		}
		result.Applied = true
		e.logger.Info("Reconciled pending deposit to HELD",
			zap.String("order_id", orderID),
			zap.String("gateway_trade_no", info.TradeNo))

	case dep.ReconcileRequired:
		// The interrupted capture or void may or may not have been applied
		// by the gateway; its answer is authoritative either way.
		if info.ClosedAmt != dep.CapturedAmount {
			dep.CapturedAmount = info.ClosedAmt
			if dep.CapturedAmount == dep.Amount {
				dep.Status = models.DepositStatusCaptured
			} else {
				dep.Status = models.DepositStatusPartialCaptured
			}
			result.Applied = true
		}
		if info.TradeStatus != gateway.TradeStatusHeld && info.ClosedAmt == 0 {
			dep.Status = models.DepositStatusVoid
			result.Applied = true
		}
		dep.ReconcileRequired = false
		if err := e.ledger.PutDeposit(ctx, dep); err != nil {
			return nil, fmt.Errorf("failed to write reconciled deposit: %w", err)
		}
		e.logger.Info("Reconciled deposit after unknown outcome",
			zap.String("order_id", orderID),
			zap.String("status", dep.Status),
			zap.Int64("captured_amount", dep.CapturedAmount),
			zap.Bool("changed", result.Applied))
	}

	return result, nil
}

// flagReconcileRequired stamps the deposit row after an unknown-outcome
// gateway call so capture and void stay blocked until reconciled. Status
// and captured amount are left untouched.
func (e *Engine) flagReconcileRequired(ctx context.Context, orderID string) {
	fresh, err := e.ledger.GetDeposit(ctx, orderID)
	if err == nil {
		fresh.ReconcileRequired = true
		err = e.ledger.PutDeposit(ctx, fresh)
	}
	if err != nil {
		e.logger.Error("Failed to flag deposit for reconciliation",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

// markFailed re-reads and stamps a _FAILED status without touching the
// captured amount, so the operator sees the failure and can retry.
func (e *Engine) markFailed(ctx context.Context, orderID, status string) error {
	fresh, err := e.ledger.GetDeposit(ctx, orderID)
	if err != nil {
		return err
	}
	if !models.CanTransitionDeposit(fresh.Status, status) {
		return guardf("cannot mark %s from status %s", status, fresh.Status)
	}
	fresh.Status = status
	return e.ledger.PutDeposit(ctx, fresh)
}

// lockOrder takes the advisory per-order lock. Lock contention is a
// conflict; a lock backend failure degrades to the optimistic re-read.
func (e *Engine) lockOrder(ctx context.Context, orderID string) (func(), error) {
	if e.locks == nil {
		return func() {}, nil
	}

	ok, err := e.locks.AcquireLock(ctx, "order:"+orderID, 30*time.Second)
	if err != nil {
		e.logger.Warn("Advisory lock unavailable, proceeding unlocked",
			zap.String("order_id", orderID),
			zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: another operation holds the order lock", ErrConflict)
	}
	return func() {
		if err := e.locks.ReleaseLock(context.Background(), "order:"+orderID); err != nil {
			e.logger.Warn("Failed to release order lock",
				zap.String("order_id", orderID),
				zap.Error(err))
		}
	}, nil
}

// dispatch runs a notification side effect; failure is logged, never
// rolled back into the state transition.
func (e *Engine) dispatch(name string, fn func() error) {
	if e.dispatcher == nil {
		return
	}
	if err := fn(); err != nil {
		e.logger.Error("Notification dispatch failed",
			zap.String("event", name),
			zap.Error(err))
	}
}
