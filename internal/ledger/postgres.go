package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rental-payments/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore implements Store on a pair of plain row tables. Writes are
// deliberate whole-row upserts without transactions, mirroring the
// spreadsheet's last-writer-wins semantics; a transactional implementation
// can replace this behind the same interface.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to the ledger database.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Whitelisted scan columns; FindByField must never interpolate caller input.
var orderFields = map[string]bool{
	"order_id":       true,
	"payment_status": true,
	"customer_email": true,
}

var depositFields = map[string]bool{
	"order_id":         true,
	"trade_no":         true,
	"gateway_trade_no": true,
	"status":           true,
}

// GetOrder retrieves an order row by order id.
func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.FindOrderByField(ctx, "order_id", orderID)
}

// PutOrder writes the whole order row back, inserting if absent.
func (s *PostgresStore) PutOrder(ctx context.Context, order *models.Order) error {
	order.UpdatedAt = time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = order.UpdatedAt
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO orders (order_id, customer_name, customer_phone, customer_email,
			final_amount, payment_status, created_at, updated_at)
		VALUES (:order_id, :customer_name, :customer_phone, :customer_email,
			:final_amount, :payment_status, :created_at, :updated_at)
		ON CONFLICT (order_id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			customer_phone = EXCLUDED.customer_phone,
			customer_email = EXCLUDED.customer_email,
			final_amount = EXCLUDED.final_amount,
			payment_status = EXCLUDED.payment_status,
			updated_at = EXCLUDED.updated_at`, order)
	return err
}

// FindOrderByField scans a whitelisted order column for an exact match.
func (s *PostgresStore) FindOrderByField(ctx context.Context, field, value string) (*models.Order, error) {
	if !orderFields[field] {
		return nil, fmt.Errorf("unknown order field: %s", field)
	}
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		fmt.Sprintf("SELECT * FROM orders WHERE %s = $1 LIMIT 1", field), value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetDeposit retrieves the deposit row for an order.
func (s *PostgresStore) GetDeposit(ctx context.Context, orderID string) (*models.Deposit, error) {
	return s.FindDepositByField(ctx, "order_id", orderID)
}

// PutDeposit writes the whole deposit row back, inserting if absent.
func (s *PostgresStore) PutDeposit(ctx context.Context, dep *models.Deposit) error {
	dep.UpdatedAt = time.Now()
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = dep.UpdatedAt
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO deposits (order_id, trade_no, gateway_trade_no, amount,
			captured_amount, status, reconcile_required, created_at, updated_at)
		VALUES (:order_id, :trade_no, :gateway_trade_no, :amount,
			:captured_amount, :status, :reconcile_required, :created_at, :updated_at)
		ON CONFLICT (order_id) DO UPDATE SET
			trade_no = EXCLUDED.trade_no,
			gateway_trade_no = EXCLUDED.gateway_trade_no,
			amount = EXCLUDED.amount,
			captured_amount = EXCLUDED.captured_amount,
			status = EXCLUDED.status,
			reconcile_required = EXCLUDED.reconcile_required,
			updated_at = EXCLUDED.updated_at`, dep)
	return err
}

// FindDepositByField scans a whitelisted deposit column for an exact match.
func (s *PostgresStore) FindDepositByField(ctx context.Context, field, value string) (*models.Deposit, error) {
	if !depositFields[field] {
		return nil, fmt.Errorf("unknown deposit field: %s", field)
	}
	var dep models.Deposit
	err := s.db.GetContext(ctx, &dep,
		fmt.Sprintf("SELECT * FROM deposits WHERE %s = $1 LIMIT 1", field), value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dep, nil
}
