// Package orders owns the order lifecycle after checkout: persistence,
// status transitions and the read paths for fans and merchants.
package orders

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/robertarktes/merchpit/internal/observability"
)

// Store is the authoritative order storage. Insert must decrement inventory
// for every item in the same transaction and fail with domain.ErrSoldOut when
// any size is short. UpdateStatus must only apply when the stored status still
// equals from, returning domain.ErrInvalidTransition otherwise.
type Store interface {
	InsertOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	GetOrderByPickupCode(ctx context.Context, code string) (domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
	ListOrdersByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type Cache interface {
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, bool, error)
	SetOrder(ctx context.Context, order domain.Order) error
}

// Refunder returns a captured charge to the buyer.
type Refunder interface {
	Refund(ctx context.Context, token string) error
}

type Manager struct {
	store    Store
	cache    Cache
	refunder Refunder
	logger   observability.Logger
	now      func() time.Time
}

func NewManager(store Store, cache Cache, logger observability.Logger) *Manager {
	return &Manager{store: store, cache: cache, logger: logger, now: time.Now}
}

// WithRefunds makes Cancel refund the order's payment once the cancellation
// is stored.
func (m *Manager) WithRefunds(r Refunder) *Manager {
	m.refunder = r
	return m
}

// CreateOrder persists a freshly built order under a new ID and returns the ID.
func (m *Manager) CreateOrder(ctx context.Context, order domain.Order) (uuid.UUID, error) {
	if err := order.Validate(); err != nil {
		observability.OrdersCreated.WithLabelValues("invalid").Inc()
		return uuid.Nil, err
	}

	order.ID = uuid.New()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = m.now().UTC()
	}
	order.UpdatedAt = order.CreatedAt

	if err := m.store.InsertOrder(ctx, order); err != nil {
		if errors.Is(err, domain.ErrSoldOut) {
			observability.OrdersCreated.WithLabelValues("sold_out").Inc()
			return uuid.Nil, err
		}
		observability.OrdersCreated.WithLabelValues("error").Inc()
		return uuid.Nil, errors.Wrap(err, "insert order")
	}
	observability.OrdersCreated.WithLabelValues("created").Inc()

	m.cacheOrder(ctx, order)
	return order.ID, nil
}

func (m *Manager) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	if m.cache != nil {
		order, ok, err := m.cache.GetOrder(ctx, id)
		if err != nil {
			m.logger.WithField("order_id", id).WithError(err).Warn("order cache read failed")
		} else if ok {
			return order, nil
		}
	}

	order, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	m.cacheOrder(ctx, order)
	return order, nil
}

func (m *Manager) FindByPickupCode(ctx context.Context, code string) (domain.Order, error) {
	return m.store.GetOrderByPickupCode(ctx, code)
}

// FetchOrdersForUser returns the user's orders, newest first.
func (m *Manager) FetchOrdersForUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	orders, err := m.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	newestFirst(orders)
	return orders, nil
}

// FetchOrdersForMerchant returns orders placed with the merchant, newest first.
func (m *Manager) FetchOrdersForMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Order, error) {
	orders, err := m.store.ListOrdersByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	newestFirst(orders)
	return orders, nil
}

// UpdateStatus moves an order along the lifecycle. The cache is refreshed only
// once the store has accepted the change.
func (m *Manager) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.OrderStatus) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, errors.Wrapf(domain.ErrInvalidInput, "unknown status %q", to)
	}

	current, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransition(current.Status, to) {
		observability.StatusTransitions.WithLabelValues(string(to), "rejected").Inc()
		return domain.Order{}, errors.Wrapf(domain.ErrInvalidTransition, "%s -> %s", current.Status, to)
	}

	at := m.now().UTC()
	if err := m.store.UpdateOrderStatus(ctx, id, current.Status, to, at); err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrInvalidTransition) {
			outcome = "rejected"
		}
		observability.StatusTransitions.WithLabelValues(string(to), outcome).Inc()
		return domain.Order{}, err
	}
	observability.StatusTransitions.WithLabelValues(string(to), "applied").Inc()

	current.Status = to
	current.UpdatedAt = at
	m.cacheOrder(ctx, current)
	return current, nil
}

// Cancel cancels the order and refunds its payment. A failed refund is logged
// and does not undo the cancellation; the stock is already back on sale.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	order, err := m.UpdateStatus(ctx, id, domain.StatusCancelled)
	if err != nil {
		return domain.Order{}, err
	}
	if m.refunder != nil && order.PaymentToken != "" {
		if err := m.refunder.Refund(ctx, order.PaymentToken); err != nil {
			m.logger.WithField("order_id", id).WithError(err).Error("refund after cancel failed")
		}
	}
	return order, nil
}

func (m *Manager) MarkPickedUp(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return m.UpdateStatus(ctx, id, domain.StatusPickedUp)
}

const expireBatch = 100

// ExpireStale cancels pending orders created before cutoff. Orders that change
// state concurrently are skipped.
func (m *Manager) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := m.store.ListPendingBefore(ctx, cutoff, expireBatch)
	if err != nil {
		return 0, errors.Wrap(err, "list stale orders")
	}

	cancelled := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return cancelled, err
		}
		if _, err := m.Cancel(ctx, id); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return cancelled, errors.Wrapf(err, "cancel order %s", id)
		}
		cancelled++
	}
	return cancelled, nil
}

func (m *Manager) cacheOrder(ctx context.Context, order domain.Order) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SetOrder(ctx, order); err != nil {
		m.logger.WithField("order_id", order.ID).WithError(err).Warn("order cache write failed")
	}
}

func newestFirst(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
