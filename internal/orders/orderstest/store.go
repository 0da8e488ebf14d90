// Package orderstest provides an in-memory orders.Store for tests.
package orderstest

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/domain"
)

type stockKey struct {
	product uuid.UUID
	size    string
}

// Store mirrors the transactional guarantees of the CockroachDB adapter:
// inserts decrement stock atomically and status updates compare-and-set.
type Store struct {
	mu     sync.Mutex
	orders map[uuid.UUID]domain.Order
	stock  map[stockKey]int

	// FailInsert, FailUpdate inject store errors.
	FailInsert error
	FailUpdate error
}

func NewStore() *Store {
	return &Store{orders: make(map[uuid.UUID]domain.Order), stock: make(map[stockKey]int)}
}

func (s *Store) SetStock(productID uuid.UUID, size string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[stockKey{productID, size}] = quantity
}

func (s *Store) Stock(productID uuid.UUID, size string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[stockKey{productID, size}]
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) InsertOrder(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return s.FailInsert
	}
	if _, ok := s.orders[order.ID]; ok {
		return domain.ErrConflict
	}
	for _, o := range s.orders {
		if o.PickupCode == order.PickupCode {
			return domain.ErrConflict
		}
	}

	need := make(map[stockKey]int)
	for _, item := range order.Items {
		need[stockKey{item.ProductID, item.Size}] += item.Quantity
	}
	for k, n := range need {
		if s.stock[k] < n {
			return errors.Wrapf(domain.ErrSoldOut, "%s/%s", k.product, k.size)
		}
	}
	for k, n := range need {
		s.stock[k] -= n
	}
	s.orders[order.ID] = clone(order)
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return clone(o), nil
}

func (s *Store) GetOrderByPickupCode(ctx context.Context, code string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.PickupCode == code {
			return clone(o), nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return s.filter(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) ListOrdersByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Order, error) {
	return s.filter(func(o domain.Order) bool { return o.MerchantID == merchantID }), nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdate != nil {
		return s.FailUpdate
	}
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != from {
		return errors.Wrapf(domain.ErrInvalidTransition, "%s is %s", id, o.Status)
	}
	if to == domain.StatusCancelled {
		for _, item := range o.Items {
			s.stock[stockKey{item.ProductID, item.Size}] += item.Quantity
		}
	}
	o.Status = to
	o.UpdatedAt = at
	s.orders[id] = o
	return nil
}

func (s *Store) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, o := range s.orders {
		if o.Status == domain.StatusPendingPickup && o.CreatedAt.Before(cutoff) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) filter(keep func(domain.Order) bool) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, clone(o))
		}
	}
	return out
}

func clone(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

// Cache is an in-memory orders.Cache.
type Cache struct {
	mu     sync.Mutex
	orders map[uuid.UUID]domain.Order
}

func NewCache() *Cache {
	return &Cache{orders: make(map[uuid.UUID]domain.Order)}
}

func (c *Cache) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	return clone(o), ok, nil
}

func (c *Cache) SetOrder(ctx context.Context, order domain.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[order.ID] = clone(order)
	return nil
}
