package ledger

import (
	"context"
	"errors"

	"rental-payments/internal/models"
)

// ErrNotFound is returned when no row matches. Callers must treat it as a
// loud correlation failure, never as silent success: a missing row usually
// means a trade-number mismatch between systems, not a genuine absence.
var ErrNotFound = errors.New("ledger: record not found")

// Store is the narrow interface over the row-oriented ledger. The backing
// table offers no transactions and no compare-and-swap; every write is a
// whole-row, last-writer-wins replacement. Callers do read-modify-write
// with a re-read immediately before writing to narrow lost-update races.
type Store interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	PutOrder(ctx context.Context, order *models.Order) error
	// FindOrderByField scans the given column for an exact value match.
	FindOrderByField(ctx context.Context, field, value string) (*models.Order, error)

	GetDeposit(ctx context.Context, orderID string) (*models.Deposit, error)
	PutDeposit(ctx context.Context, dep *models.Deposit) error
	FindDepositByField(ctx context.Context, field, value string) (*models.Deposit, error)

	Close() error
}
