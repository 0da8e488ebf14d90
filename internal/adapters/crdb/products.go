package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/merchpit/internal/domain"
)

const productColumns = `id, merchant_id, title, price_cents, sizes, active, image_url, created_at, updated_at`

func (r *Repository) CreateProduct(ctx context.Context, p domain.Product) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, p.ID, p.MerchantID, p.Title, domain.ToCents(p.Price), p.Sizes, p.Active, p.ImageURL, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for size, n := range p.Inventory {
			batch.Queue(`INSERT INTO product_inventory (product_id, size, quantity) VALUES ($1, $2, $3)`, p.ID, size, n)
		}
		for _, eventID := range p.EventIDs {
			batch.Queue(`INSERT INTO product_events (product_id, event_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, p.ID, eventID)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// UpdateProduct writes the editable columns and drops stock rows for sizes
// the product no longer offers.
func (r *Repository) UpdateProduct(ctx context.Context, p domain.Product) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE products SET title = $2, price_cents = $3, sizes = $4, active = $5, updated_at = $6
			WHERE id = $1
		`, p.ID, p.Title, domain.ToCents(p.Price), p.Sizes, p.Active, p.UpdatedAt)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM product_inventory WHERE product_id = $1 AND NOT (size = ANY($2))
		`, p.ID, p.Sizes)
		return err
	})
}

func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return domain.Product{}, notFound(err, "product "+id.String())
	}
	products := []domain.Product{p}
	if err := r.hydrateProducts(ctx, products); err != nil {
		return domain.Product{}, err
	}
	return products[0], nil
}

func (r *Repository) ListProductsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Product, error) {
	return r.listProducts(ctx, `
		SELECT `+productColumns+` FROM products WHERE merchant_id = $1 ORDER BY created_at DESC
	`, merchantID)
}

func (r *Repository) ListProductsByEvent(ctx context.Context, eventID uuid.UUID, activeOnly bool) ([]domain.Product, error) {
	return r.listProducts(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE id IN (SELECT product_id FROM product_events WHERE event_id = $1) AND (active OR NOT $2)
		ORDER BY title
	`, eventID, activeOnly)
}

func (r *Repository) ProductIDsForEvent(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id FROM product_events WHERE event_id = $1 ORDER BY product_id`, eventID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *Repository) SetInventory(ctx context.Context, productID uuid.UUID, size string, quantity int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO product_inventory (product_id, size, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (product_id, size) DO UPDATE SET quantity = excluded.quantity
	`, productID, size, quantity)
	return err
}

func (r *Repository) SetProductImage(ctx context.Context, productID uuid.UUID, url string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE products SET image_url = $2, updated_at = now() WHERE id = $1
	`, productID, url)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LinkEvent replaces owner's links to eventID with productIDs, leaving other
// merchants' links in place. uuid.Nil as owner replaces all links.
func (r *Repository) LinkEvent(ctx context.Context, eventID, owner uuid.UUID, productIDs []uuid.UUID) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if owner == uuid.Nil {
			if _, err := tx.Exec(ctx, `DELETE FROM product_events WHERE event_id = $1`, eventID); err != nil {
				return err
			}
			if len(productIDs) == 0 {
				return nil
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO product_events (product_id, event_id)
				SELECT id, $2 FROM products WHERE id = ANY($1)
				ON CONFLICT DO NOTHING
			`, productIDs, eventID)
			return err
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM product_events
			WHERE event_id = $1 AND product_id IN (SELECT id FROM products WHERE merchant_id = $2)
		`, eventID, owner); err != nil {
			return err
		}
		if len(productIDs) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO product_events (product_id, event_id)
			SELECT id, $2 FROM products WHERE id = ANY($1) AND merchant_id = $3
			ON CONFLICT DO NOTHING
		`, productIDs, eventID, owner)
		return err
	})
}

func (r *Repository) DetachEvent(ctx context.Context, eventID uuid.UUID) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM product_events WHERE event_id = $1`, eventID)
		return err
	})
}

func (r *Repository) listProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		products = append(products, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.hydrateProducts(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// hydrateProducts fills Inventory and EventIDs with one query each.
func (r *Repository) hydrateProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(products))
	index := make(map[uuid.UUID]int, len(products))
	for i := range products {
		ids[i] = products[i].ID
		index[products[i].ID] = i
		products[i].Inventory = make(map[string]int)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, size, quantity FROM product_inventory WHERE product_id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id uuid.UUID
		var size string
		var n int
		if err := rows.Scan(&id, &size, &n); err != nil {
			rows.Close()
			return err
		}
		products[index[id]].Inventory[size] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT product_id, event_id FROM product_events WHERE product_id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, eventID uuid.UUID
		if err := rows.Scan(&id, &eventID); err != nil {
			return err
		}
		products[index[id]].EventIDs = append(products[index[id]].EventIDs, eventID)
	}
	return rows.Err()
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	var cents int64
	err := row.Scan(&p.ID, &p.MerchantID, &p.Title, &cents, &p.Sizes, &p.Active, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.Price = domain.FromCents(cents)
	return p, nil
}
