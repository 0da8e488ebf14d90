package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/merchpit/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	orderColumns   = `id, user_id, merchant_id, event_id, amount_cents, status, pickup_code, payment_token, created_at, updated_at`
	orderListLimit = 200
	itemLoaders    = 8
)

type sizeKey struct {
	product uuid.UUID
	size    string
}

// InsertOrder reserves stock for every item and stores the order with its
// items and an order.created outbox row, all in one transaction.
func (r *Repository) InsertOrder(ctx context.Context, order domain.Order) error {
	need := make(map[sizeKey]int)
	var keys []sizeKey
	for _, item := range order.Items {
		k := sizeKey{item.ProductID, item.Size}
		if _, ok := need[k]; !ok {
			keys = append(keys, k)
		}
		need[k] += item.Quantity
	}

	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for _, k := range keys {
			result, err := tx.Exec(ctx, `
				UPDATE product_inventory SET quantity = quantity - $3
				WHERE product_id = $1 AND size = $2 AND quantity >= $3
				AND EXISTS (SELECT 1 FROM products WHERE id = $1 AND merchant_id = $4 AND active)
			`, k.product, k.size, need[k], order.MerchantID)
			if err != nil {
				return err
			}
			if result.RowsAffected() == 0 {
				return errors.Wrapf(domain.ErrSoldOut, "%s/%s", k.product, k.size)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, order.ID, order.UserID, order.MerchantID, order.EventID, domain.ToCents(order.Amount),
			string(order.Status), order.PickupCode, order.PaymentToken, order.CreatedAt, order.UpdatedAt)
		if isUniqueViolation(err) {
			return errors.Wrap(domain.ErrConflict, "duplicate order id or pickup code")
		}
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, item := range order.Items {
			batch.Queue(`
				INSERT INTO order_items (order_id, line, product_id, size, quantity, title, price_cents)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, order.ID, i, item.ProductID, item.Size, item.Quantity, item.Title, domain.ToCents(item.Price))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		return r.InsertOutbox(ctx, tx, orderEvent("order.created", order, order.CreatedAt))
	})
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, notFound(err, "order "+id.String())
	}
	if order.Items, err = r.orderItems(ctx, r.pool, id); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *Repository) GetOrderByPickupCode(ctx context.Context, code string) (domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE pickup_code = $1`, code))
	if err != nil {
		return domain.Order{}, notFound(err, "pickup code")
	}
	if order.Items, err = r.orderItems(ctx, r.pool, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *Repository) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID)
}

func (r *Repository) ListOrdersByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE merchant_id = $1 ORDER BY created_at DESC LIMIT $2`, merchantID)
}

// UpdateOrderStatus applies from -> to only if the order is still in from.
// Cancelling puts the reserved stock back.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		order, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "order "+id.String())
		}
		if order.Status != from {
			return errors.Wrapf(domain.ErrInvalidTransition, "order %s is %s", id, order.Status)
		}

		_, err = tx.Exec(ctx, `
			UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2
		`, id, string(from), string(to), at)
		if err != nil {
			return err
		}

		if order.Items, err = r.orderItems(ctx, tx, id); err != nil {
			return err
		}
		if to == domain.StatusCancelled {
			for _, item := range order.Items {
				_, err := tx.Exec(ctx, `
					UPDATE product_inventory SET quantity = quantity + $3
					WHERE product_id = $1 AND size = $2
				`, item.ProductID, item.Size, item.Quantity)
				if err != nil {
					return err
				}
			}
		}

		order.Status = to
		order.UpdatedAt = at
		return r.InsertOutbox(ctx, tx, orderEvent("order."+string(to), order, at))
	})
}

func (r *Repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM orders WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC LIMIT $3
	`, string(domain.StatusPendingPickup), cutoff, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) listOrders(ctx context.Context, query string, owner uuid.UUID) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, owner, orderListLimit)
	if err != nil {
		return nil, err
	}
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(itemLoaders)
	for i := range orders {
		i := i
		g.Go(func() error {
			items, err := r.orderItems(gctx, r.pool, orders[i].ID)
			if err != nil {
				return err
			}
			orders[i].Items = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repository) orderItems(ctx context.Context, q querier, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, size, quantity, title, price_cents
		FROM order_items WHERE order_id = $1 ORDER BY line
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		var cents int64
		if err := rows.Scan(&item.ProductID, &item.Size, &item.Quantity, &item.Title, &cents); err != nil {
			return nil, err
		}
		item.Price = domain.FromCents(cents)
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	var cents int64
	err := row.Scan(&o.ID, &o.UserID, &o.MerchantID, &o.EventID, &cents, &status,
		&o.PickupCode, &o.PaymentToken, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.Amount = domain.FromCents(cents)
	o.Status = domain.OrderStatus(status)
	return o, nil
}
