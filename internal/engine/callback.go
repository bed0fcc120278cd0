package engine

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"rental-payments/internal/gateway"
	"rental-payments/internal/ledger"
	"rental-payments/internal/models"
	"rental-payments/internal/util"

	"go.uber.org/zap"
)

// Rejection is a webhook rejection. The HTTP adapter renders it as
// "0|<reason>" with the given status; a nil rejection renders "1|OK".
// The gateway redelivers on anything but "1|OK".
type Rejection struct {
	Status int
	Reason string
}

const (
	callbackKindPayment = "payment"
	callbackKindDeposit = "deposit"
)

// HandlePaymentCallback applies an inbound payment-result callback to the
// order row. Safe to invoke repeatedly for the same MerchantTradeNo:
// re-applying a terminal status is a no-op.
func (e *Engine) HandlePaymentCallback(ctx context.Context, form url.Values) *Rejection {
	ctx, span := util.StartSpan(ctx, "Engine.HandlePaymentCallback")
	defer span.End()

	notice, rej := e.authenticate(form, callbackKindPayment)
	if rej != nil {
		return rej
	}
	if gateway.IsPreAuthTradeNo(notice.MerchantTradeNo) {
		return e.reject(callbackKindPayment, http.StatusBadRequest,
			"wrong transaction type", form)
	}

	order, err := e.ledger.FindOrderByField(ctx, "order_id", notice.MerchantTradeNo)
	if errors.Is(err, ledger.ErrNotFound) {
		// Usually a correlation-id mismatch between systems, not a
		// genuine absence. Reject loudly.
		e.logger.Error("Payment callback for unknown order",
			zap.String("merchant_trade_no", notice.MerchantTradeNo),
			zap.Any("form", form))
		return e.reject(callbackKindPayment, http.StatusNotFound, "order not found", form)
	}
	if err != nil {
		return e.reject(callbackKindPayment, http.StatusInternalServerError,
			"ledger read failed", form)
	}

	if notice.Success() {
		switch order.PaymentStatus {
		case models.PaymentStatusPending:
			order.PaymentStatus = models.PaymentStatusPaid
			if err := e.ledger.PutOrder(ctx, order); err != nil {
				return e.reject(callbackKindPayment, http.StatusInternalServerError,
					"ledger write failed", form)
			}
			util.OrdersPaidTotal.Inc()
			e.logger.Info("Order paid",
				zap.String("order_id", order.OrderID),
				zap.String("gateway_trade_no", notice.TradeNo))

			// Invoice issuance and customer email, fire-and-forget.
			e.dispatch("OrderPaid", func() error {
				return e.dispatcher.OrderPaid(ctx, order, notice.TradeNo)
			})
		case models.PaymentStatusPaid:
			e.logger.Info("Duplicate payment success callback, no-op",
				zap.String("order_id", order.OrderID))
		default:
			e.logger.Warn("Success callback for order in terminal failure, ignoring",
				zap.String("order_id", order.OrderID),
				zap.String("payment_status", order.PaymentStatus))
		}
	} else {
		switch order.PaymentStatus {
		case models.PaymentStatusPending:
			order.PaymentStatus = models.PaymentStatusFailed
			if err := e.ledger.PutOrder(ctx, order); err != nil {
				return e.reject(callbackKindPayment, http.StatusInternalServerError,
					"ledger write failed", form)
			}
			util.OrdersPaymentFailedTotal.Inc()
			e.logger.Warn("Order payment failed",
				zap.String("order_id", order.OrderID),
				zap.String("rtn_code", notice.RtnCode),
				zap.String("rtn_msg", notice.RtnMsg))

			e.dispatch("OrderPaymentFailed", func() error {
				return e.dispatcher.OrderPaymentFailed(ctx, order, notice.RtnMsg)
			})
		default:
			e.logger.Info("Failure callback for non-pending order, no-op",
				zap.String("order_id", order.OrderID),
				zap.String("payment_status", order.PaymentStatus))
		}
	}

	util.CallbacksVerifiedTotal.WithLabelValues(callbackKindPayment).Inc()
	return nil
}

// HandleDepositCallback applies an inbound pre-authorization callback to
// the deposit row, correlating by the deposit trade-number column.
func (e *Engine) HandleDepositCallback(ctx context.Context, form url.Values) *Rejection {
	ctx, span := util.StartSpan(ctx, "Engine.HandleDepositCallback")
	defer span.End()

	notice, rej := e.authenticate(form, callbackKindDeposit)
	if rej != nil {
		return rej
	}
	if !gateway.IsPreAuthTradeNo(notice.MerchantTradeNo) {
		return e.reject(callbackKindDeposit, http.StatusBadRequest,
			"wrong transaction type", form)
	}

	dep, err := e.ledger.FindDepositByField(ctx, "trade_no", notice.MerchantTradeNo)
	if errors.Is(err, ledger.ErrNotFound) {
		e.logger.Error("Deposit callback for unknown trade number",
			zap.String("merchant_trade_no", notice.MerchantTradeNo),
			zap.Any("form", form))
		return e.reject(callbackKindDeposit, http.StatusNotFound, "deposit not found", form)
	}
	if err != nil {
		return e.reject(callbackKindDeposit, http.StatusInternalServerError,
			"ledger read failed", form)
	}

	if notice.Success() {
		switch dep.Status {
		case models.DepositStatusPending:
			dep.Status = models.DepositStatusHeld
			dep.GatewayTradeNo = notice.TradeNo
			if err := e.ledger.PutDeposit(ctx, dep); err != nil {
				return e.reject(callbackKindDeposit, http.StatusInternalServerError,
					"ledger write failed", form)
			}
			util.DepositsHeldTotal.Inc()
			e.logger.Info("Deposit held",
				zap.String("order_id", dep.OrderID),
				zap.String("trade_no", dep.TradeNo),
				zap.String("gateway_trade_no", dep.GatewayTradeNo))

			e.dispatch("DepositHeld", func() error {
				order, err := e.ledger.GetOrder(ctx, dep.OrderID)
				if err != nil {
					return err
				}
				return e.dispatcher.DepositHeld(ctx, order, dep)
			})
		case models.DepositStatusHeld:
			e.logger.Info("Duplicate deposit success callback, no-op",
				zap.String("order_id", dep.OrderID))
		default:
			e.logger.Warn("Deposit success callback in unexpected status, ignoring",
				zap.String("order_id", dep.OrderID),
				zap.String("status", dep.Status))
		}
	} else {
		switch dep.Status {
		case models.DepositStatusPending:
			dep.Status = models.DepositStatusPreauthFailed
			if err := e.ledger.PutDeposit(ctx, dep); err != nil {
				return e.reject(callbackKindDeposit, http.StatusInternalServerError,
					"ledger write failed", form)
			}
			e.logger.Warn("Deposit pre-authorization failed",
				zap.String("order_id", dep.OrderID),
				zap.String("rtn_code", notice.RtnCode),
				zap.String("rtn_msg", notice.RtnMsg))
		default:
			e.logger.Info("Deposit failure callback in non-pending status, no-op",
				zap.String("order_id", dep.OrderID),
				zap.String("status", dep.Status))
		}
	}

	util.CallbacksVerifiedTotal.WithLabelValues(callbackKindDeposit).Inc()
	return nil
}

// authenticate parses the form, resolves the signing environment from the
// inbound MerchantID and verifies the CheckMacValue. No state is touched
// on any rejection.
func (e *Engine) authenticate(form url.Values, kind string) (*gateway.Notice, *Rejection) {
	notice, err := gateway.ParseNotice(form)
	if err != nil {
		return nil, e.reject(kind, http.StatusBadRequest, err.Error(), form)
	}

	env, err := e.envs.ByMerchantID(notice.MerchantID)
	if err != nil {
		return nil, e.reject(kind, http.StatusBadRequest, "unknown merchant id", form)
	}

	if !gateway.VerifyMac(form, env) {
		// Full payload kept for forensic replay.
		e.logger.Error("Callback signature mismatch",
			zap.String("kind", kind),
			zap.String("merchant_id", notice.MerchantID),
			zap.String("merchant_trade_no", notice.MerchantTradeNo),
			zap.Any("form", form))
		return nil, e.reject(kind, http.StatusBadRequest, "CheckMacValue mismatch", form)
	}

	return notice, nil
}

func (e *Engine) reject(kind string, status int, reason string, form url.Values) *Rejection {
	util.CallbacksRejectedTotal.WithLabelValues(kind, reason).Inc()
	e.logger.Warn("Callback rejected",
		zap.String("kind", kind),
		zap.Int("status", status),
		zap.String("reason", reason),
		zap.Any("form", form))
	return &Rejection{Status: status, Reason: reason}
}
