package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDepositExists rejects duplicate deposit creation for an order.
	ErrDepositExists = errors.New("deposit already exists for order")

	// ErrUnknownOutcome means a gateway call failed in transport after the
	// gateway may have applied the operation. Local state is left at its
	// pre-call status; the operator must reconcile before retrying.
	ErrUnknownOutcome = errors.New("gateway outcome unknown, reconcile before retrying")

	// ErrConflict means the ledger row changed between the pre-call read
	// and the write-back. The write is aborted.
	ErrConflict = errors.New("ledger row changed concurrently")
)

// GuardError is a pre-gateway invariant violation. The gateway is never
// called when a guard fails.
type GuardError struct {
	Reason string
}

func (e *GuardError) Error() string {
	return e.Reason
}

func guardf(format string, args ...interface{}) error {
	return &GuardError{Reason: fmt.Sprintf(format, args...)}
}

// DeclinedError carries a gateway-level business failure. The message is
// the gateway's reason verbatim for operator visibility.
type DeclinedError struct {
	Code    string
	Message string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("gateway declined (code %s): %s", e.Code, e.Message)
}
