package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Schema is applied in order by Migrate. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		merchant_id UUID NOT NULL,
		title STRING NOT NULL,
		price_cents INT8 NOT NULL CHECK (price_cents >= 0),
		sizes STRING[] NOT NULL,
		active BOOL NOT NULL DEFAULT true,
		image_url STRING NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		INDEX products_merchant_idx (merchant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS product_inventory (
		product_id UUID NOT NULL REFERENCES products (id) ON DELETE CASCADE,
		size STRING NOT NULL,
		quantity INT8 NOT NULL CHECK (quantity >= 0),
		PRIMARY KEY (product_id, size)
	)`,
	`CREATE TABLE IF NOT EXISTS product_events (
		product_id UUID NOT NULL REFERENCES products (id) ON DELETE CASCADE,
		event_id UUID NOT NULL,
		PRIMARY KEY (product_id, event_id),
		INDEX product_events_event_idx (event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		merchant_id UUID NOT NULL,
		event_id UUID NULL,
		amount_cents INT8 NOT NULL CHECK (amount_cents >= 0),
		status STRING NOT NULL CHECK (status IN ('pending_pickup', 'picked_up', 'cancelled')),
		pickup_code STRING NOT NULL UNIQUE,
		payment_token STRING NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		INDEX orders_user_idx (user_id, created_at DESC),
		INDEX orders_merchant_idx (merchant_id, created_at DESC),
		INDEX orders_status_idx (status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id UUID NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		line INT4 NOT NULL,
		product_id UUID NOT NULL,
		size STRING NOT NULL,
		quantity INT4 NOT NULL CHECK (quantity > 0),
		title STRING NOT NULL,
		price_cents INT8 NOT NULL,
		PRIMARY KEY (order_id, line)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type STRING NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type STRING NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ NULL,
		status STRING NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
		dedupe_key STRING NOT NULL,
		INDEX outbox_status_idx (status, created_at)
	)`,
}

func (r *Repository) Migrate(ctx context.Context) error {
	for i, stmt := range Schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "schema statement %d", i)
		}
	}
	return nil
}
