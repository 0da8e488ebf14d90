package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/merchpit/internal/adapters/crdb"
	redisadapter "github.com/robertarktes/merchpit/internal/adapters/redis"
	"github.com/robertarktes/merchpit/internal/config"
	"github.com/robertarktes/merchpit/internal/observability"
	"github.com/robertarktes/merchpit/internal/orders"
	"github.com/robertarktes/merchpit/internal/payment"
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

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient, cfg.OrderCacheTTL)

	// Expired orders are refunded through the same gateway that charged them.
	var gateway payment.Gateway
	if cfg.Payment.GatewayURL != "" {
		gateway = payment.NewHTTPGateway(cfg.Payment.GatewayURL, cfg.Payment.Timeout)
	} else {
		gateway = payment.NewStubGateway(cfg.Payment.MinDelay, cfg.Payment.MaxDelay)
	}
	processor := payment.NewProcessor(gateway, cfg.Payment.Timeout, logger)

	manager := orders.NewManager(repo, redisCache, logger).WithRefunds(processor)
	worker := NewExpiryWorker(manager, cfg.PickupWindow, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.ExpiryInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

type Expirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)
}

// ExpiryWorker cancels orders that were never collected within the pickup
// window, which returns their units to stock.
type ExpiryWorker struct {
	orders     Expirer
	window     time.Duration
	logger     observability.Logger
	maxRetries int
	backoff    time.Duration
}

func NewExpiryWorker(orders Expirer, window time.Duration, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{orders: orders, window: window, logger: logger, maxRetries: 3, backoff: time.Second}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := w.expireWithRetry(ctx, now); err != nil {
				w.logger.WithError(err).Error("failed to expire stale orders after retries")
			}
		}
	}
}

func (w *ExpiryWorker) expireWithRetry(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-w.window)
	var err error
	for i := 0; i < w.maxRetries; i++ {
		var n int
		n, err = w.orders.ExpireStale(ctx, cutoff)
		if err == nil {
			if n > 0 {
				w.logger.WithField("cancelled", n).Info("expired stale orders")
			}
			return n, nil
		}
		w.logger.WithError(err).WithField("attempt", i+1).Warn("expiry run failed")

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(w.backoff << i):
		}
	}
	return 0, err
}
