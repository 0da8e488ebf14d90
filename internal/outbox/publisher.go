// Package outbox relays committed outbox rows to the message broker.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/merchpit/internal/adapters/crdb"
	"github.com/robertarktes/merchpit/internal/observability"
)

const batchSize = 50

type Store interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	repo      Store
	rabbitPub Broker
	logger    observability.Logger
	now       func() time.Time
}

func NewPublisher(repo Store, rabbitPub Broker, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger, now: time.Now}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				p.logger.WithError(err).Error("outbox batch failed")
			} else if n > 0 {
				p.logger.WithField("published", n).Debug("outbox batch published")
			}
		}
	}
}

// PublishBatch publishes up to one batch of pending records in creation
// order. It stops at the first publish failure so ordering is kept.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "load outbox")
	}
	if len(records) > 0 {
		observability.OutboxLag.Set(p.now().Sub(records[0].CreatedAt).Seconds())
	} else {
		observability.OutboxLag.Set(0)
	}

	published := 0
	for _, rec := range records {
		if !json.Valid(rec.Payload) {
			// Unreadable rows would block the queue forever.
			p.logger.WithField("outbox_id", rec.ID).Error("outbox payload is not valid JSON, marking failed")
			if err := p.repo.MarkFailed(ctx, rec.ID); err != nil {
				return published, errors.Wrapf(err, "mark outbox %s failed", rec.ID)
			}
			continue
		}
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Timestamp:   rec.CreatedAt,
			Type:        rec.EventType,
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			return published, errors.Wrapf(err, "publish outbox %s", rec.ID)
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, p.now().UTC()); err != nil {
			// The record will be sent again; consumers dedupe on MessageId.
			return published, errors.Wrapf(err, "mark outbox %s", rec.ID)
		}
		published++
	}
	return published, nil
}
