package models

import "time"

// Order represents a rental booking and its payment state.
type Order struct {
	OrderID       string    `db:"order_id" json:"order_id"`
	CustomerName  string    `db:"customer_name" json:"customer_name"`
	CustomerPhone string    `db:"customer_phone" json:"customer_phone"`
	CustomerEmail string    `db:"customer_email" json:"customer_email"`
	FinalAmount   int64     `db:"final_amount" json:"final_amount"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Deposit represents a security-deposit pre-authorization held against an order.
type Deposit struct {
	OrderID        string `db:"order_id" json:"order_id"`
	TradeNo        string `db:"trade_no" json:"trade_no"`
	GatewayTradeNo string `db:"gateway_trade_no" json:"gateway_trade_no"`
	Amount         int64  `db:"amount" json:"amount"`
	CapturedAmount int64  `db:"captured_amount" json:"captured_amount"`
	Status         string `db:"status" json:"status"`

	// ReconcileRequired is set when a gateway call failed with an unknown
	// outcome. Capture and void are refused until a reconciliation folds
	// the gateway's authoritative state back in and clears it.
	ReconcileRequired bool `db:"reconcile_required" json:"reconcile_required"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Remaining returns the amount still capturable against the hold.
func (d *Deposit) Remaining() int64 {
	return d.Amount - d.CapturedAmount
}

// Payment statuses
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
)

// Deposit statuses
const (
	DepositStatusNone            = ""
	DepositStatusPending         = "PENDING"
	DepositStatusHeld            = "HELD"
	DepositStatusPreauthFailed   = "PREAUTH_FAILED"
	DepositStatusPartialCaptured = "PARTIAL_CAPTURED"
	DepositStatusCaptured        = "CAPTURED"
	DepositStatusVoid            = "VOID"
	DepositStatusVoidFailed      = "VOID_FAILED"
	DepositStatusCaptureFailed   = "CAPTURE_FAILED"
)

// StatusPhase classifies a deposit status for mutation and retry decisions.
type StatusPhase int

const (
	PhaseActive StatusPhase = iota
	PhaseTerminal
	PhaseFailed
)

type statusClass struct {
	Phase     StatusPhase
	Retryable bool
}

var depositStatusClasses = map[string]statusClass{
	DepositStatusPending:         {Phase: PhaseActive},
	DepositStatusHeld:            {Phase: PhaseActive},
	DepositStatusPartialCaptured: {Phase: PhaseActive},
	DepositStatusCaptured:        {Phase: PhaseTerminal},
	DepositStatusVoid:            {Phase: PhaseTerminal},
	DepositStatusPreauthFailed:   {Phase: PhaseFailed, Retryable: false},
	DepositStatusVoidFailed:      {Phase: PhaseFailed, Retryable: true},
	DepositStatusCaptureFailed:   {Phase: PhaseFailed, Retryable: true},
}

// DepositPhase returns the phase classification of a deposit status.
func DepositPhase(status string) StatusPhase {
	return depositStatusClasses[status].Phase
}

// DepositRetryable reports whether a failed deposit status may be retried.
func DepositRetryable(status string) bool {
	return depositStatusClasses[status].Retryable
}

// allowedDepositTransitions defines the valid deposit state transitions.
// The key is the current status, the value the set of legal next statuses.
// Re-entering the same status covers idempotent callback redelivery.
var allowedDepositTransitions = map[string][]string{
	DepositStatusNone:    {DepositStatusPending},
	DepositStatusPending: {DepositStatusHeld, DepositStatusPreauthFailed},
	DepositStatusHeld: {
		DepositStatusHeld,
		DepositStatusPartialCaptured,
		DepositStatusCaptured,
		DepositStatusVoid,
		DepositStatusVoidFailed,
		DepositStatusCaptureFailed,
	},
	DepositStatusPartialCaptured: {
		DepositStatusPartialCaptured,
		DepositStatusCaptured,
		DepositStatusCaptureFailed,
	},
	// A declined capture leaves the hold intact, so releasing it must stay
	// possible while nothing has been captured.
	DepositStatusCaptureFailed: {
		DepositStatusPartialCaptured,
		DepositStatusCaptured,
		DepositStatusCaptureFailed,
		DepositStatusVoid,
		DepositStatusVoidFailed,
	},
	DepositStatusVoidFailed: {DepositStatusVoid, DepositStatusVoidFailed},
	DepositStatusCaptured:   {},
	DepositStatusVoid:       {},
	// A failed pre-auth admits a fresh attempt under a new trade number.
	DepositStatusPreauthFailed: {DepositStatusPending},
}

// CanTransitionDeposit checks whether a deposit status transition is allowed.
func CanTransitionDeposit(from, to string) bool {
	for _, s := range allowedDepositTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanCapture reports whether a capture may be attempted from the given status.
func CanCapture(status string) bool {
	return CanTransitionDeposit(status, DepositStatusCaptured)
}

// CanVoid reports whether a void may be attempted from the given status.
func CanVoid(status string) bool {
	return CanTransitionDeposit(status, DepositStatusVoid)
}
