package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/merchpit/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/merchpit/internal/adapters/mongo"
	"github.com/robertarktes/merchpit/internal/adapters/rabbit"
	"github.com/robertarktes/merchpit/internal/config"
	"github.com/robertarktes/merchpit/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	bindingKey = "order.#"
	prefetch   = 16
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDatabase), logger)
	if err := audit.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("failed to create audit indexes: %v", err)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, cfg.AuditQueue, bindingKey, prefetch)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to start consuming: %v", err)
	}

	handler := NewAuditHandler(audit, logger)
	go handler.Run(ctx, deliveries)
	logger.WithField("queue", cfg.AuditQueue).Info("audit consumer started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown audit consumer")
}

type Recorder interface {
	Record(ctx context.Context, entry mongoadapter.AuditLog) error
}

var errMalformed = errors.New("malformed order event")

// AuditHandler copies order lifecycle events into the audit log.
type AuditHandler struct {
	audit  Recorder
	logger observability.Logger
}

func NewAuditHandler(audit Recorder, logger observability.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

func (h *AuditHandler) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				h.logger.Warn("delivery channel closed")
				return
			}
			h.Handle(ctx, d)
		}
	}
}

// Handle acks recorded events. Malformed payloads are dropped; a failed
// write is requeued.
func (h *AuditHandler) Handle(ctx context.Context, d amqp.Delivery) {
	l := h.logger.WithField("message_id", d.MessageId).WithField("routing_key", d.RoutingKey)

	entry, err := decodeEvent(d)
	if err != nil {
		l.WithError(err).Warn("dropping message")
		if nerr := d.Nack(false, false); nerr != nil {
			l.WithError(nerr).Error("failed to nack message")
		}
		return
	}
	if err := h.audit.Record(ctx, entry); err != nil {
		l.WithError(err).Error("failed to record audit entry")
		if nerr := d.Nack(false, true); nerr != nil {
			l.WithError(nerr).Error("failed to nack message")
		}
		return
	}
	if err := d.Ack(false); err != nil {
		l.WithError(err).Error("failed to ack message")
	}
}

func decodeEvent(d amqp.Delivery) (mongoadapter.AuditLog, error) {
	var evt crdb.OrderEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		return mongoadapter.AuditLog{}, errors.Mark(errors.Wrap(err, "decode"), errMalformed)
	}
	if evt.Type == "" || evt.OrderID == uuid.Nil {
		return mongoadapter.AuditLog{}, errors.Wrap(errMalformed, "missing type or order id")
	}

	id := d.MessageId
	if id == "" {
		id = evt.Type + ":" + evt.OrderID.String()
	}
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	data := bson.M{
		"status": evt.Status,
		"amount": evt.Amount,
		"items":  evt.Items,
	}
	if evt.EventID != nil {
		data["event_id"] = evt.EventID.String()
	}
	return mongoadapter.AuditLog{
		ID:         id,
		Action:     evt.Type,
		OrderID:    evt.OrderID.String(),
		UserID:     evt.UserID.String(),
		MerchantID: evt.MerchantID.String(),
		OccurredAt: occurred,
		Data:       data,
	}, nil
}
