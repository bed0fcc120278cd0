package ledger

import (
	"context"
	"sync"
	"time"

	"rental-payments/internal/models"
)

// MemoryStore is an in-memory Store for tests and local development. Finds
// are linear scans, matching the row-store it stands in for.
type MemoryStore struct {
	mu       sync.Mutex
	orders   []models.Order
	deposits []models.Deposit
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	return s.findOrder("order_id", orderID)
}

func (s *MemoryStore) PutOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.UpdatedAt = time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = order.UpdatedAt
	}
	for i := range s.orders {
		if s.orders[i].OrderID == order.OrderID {
			s.orders[i] = *order
			return nil
		}
	}
	s.orders = append(s.orders, *order)
	return nil
}

func (s *MemoryStore) FindOrderByField(_ context.Context, field, value string) (*models.Order, error) {
	return s.findOrder(field, value)
}

func (s *MemoryStore) findOrder(field, value string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if orderField(&s.orders[i], field) == value {
			o := s.orders[i]
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetDeposit(_ context.Context, orderID string) (*models.Deposit, error) {
	return s.findDeposit("order_id", orderID)
}

func (s *MemoryStore) PutDeposit(_ context.Context, dep *models.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dep.UpdatedAt = time.Now()
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = dep.UpdatedAt
	}
	for i := range s.deposits {
		if s.deposits[i].OrderID == dep.OrderID {
			s.deposits[i] = *dep
			return nil
		}
	}
	s.deposits = append(s.deposits, *dep)
	return nil
}

func (s *MemoryStore) FindDepositByField(_ context.Context, field, value string) (*models.Deposit, error) {
	return s.findDeposit(field, value)
}

func (s *MemoryStore) findDeposit(field, value string) (*models.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.deposits {
		if depositField(&s.deposits[i], field) == value {
			d := s.deposits[i]
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func orderField(o *models.Order, field string) string {
	switch field {
	case "order_id":
		return o.OrderID
	case "payment_status":
		return o.PaymentStatus
	case "customer_email":
		return o.CustomerEmail
	}
	return ""
}

func depositField(d *models.Deposit, field string) string {
	switch field {
	case "order_id":
		return d.OrderID
	case "trade_no":
		return d.TradeNo
	case "gateway_trade_no":
		return d.GatewayTradeNo
	case "status":
		return d.Status
	}
	return ""
}
