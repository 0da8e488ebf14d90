package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/merchpit/internal/domain"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

// OrderEvent is the payload of every order.* outbox record.
type OrderEvent struct {
	Type       string     `json:"type"`
	OrderID    uuid.UUID  `json:"order_id"`
	UserID     uuid.UUID  `json:"user_id"`
	MerchantID uuid.UUID  `json:"merchant_id"`
	EventID    *uuid.UUID `json:"event_id,omitempty"`
	Status     string     `json:"status"`
	Amount     string     `json:"amount"`
	Items      int        `json:"items"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func orderEvent(eventType string, o domain.Order, at time.Time) OutboxRecord {
	items := 0
	for _, item := range o.Items {
		items += item.Quantity
	}
	payload, _ := json.Marshal(OrderEvent{
		Type:       eventType,
		OrderID:    o.ID,
		UserID:     o.UserID,
		MerchantID: o.MerchantID,
		EventID:    o.EventID,
		Status:     string(o.Status),
		Amount:     o.Amount.StringFixed(2),
		Items:      items,
		OccurredAt: at.UTC(),
	})
	return OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   o.ID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     eventType + ":" + o.ID.String(),
	}
}

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, record OutboxRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	return err
}

func (r *Repository) GetUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1 AND status = 'NEW'
	`, id, publishedAt)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET status = 'FAILED' WHERE id = $1`, id)
	return err
}
