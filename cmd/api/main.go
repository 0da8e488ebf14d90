package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/merchpit/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/merchpit/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/merchpit/internal/adapters/redis"
	"github.com/robertarktes/merchpit/internal/adapters/s3"
	"github.com/robertarktes/merchpit/internal/catalog"
	"github.com/robertarktes/merchpit/internal/checkout"
	"github.com/robertarktes/merchpit/internal/config"
	httphandler "github.com/robertarktes/merchpit/internal/http"
	"github.com/robertarktes/merchpit/internal/idempotency"
	"github.com/robertarktes/merchpit/internal/observability"
	"github.com/robertarktes/merchpit/internal/orders"
	"github.com/robertarktes/merchpit/internal/payment"
	"github.com/robertarktes/merchpit/internal/pickup"
	"github.com/robertarktes/merchpit/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)
	if cfg.MigrateOnStart {
		if err := crdbRepo.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate crdb: %v", err)
		}
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDatabase)
	eventRepo := mongoadapter.NewEventRepository(mongoDB, logger)
	if err := eventRepo.EnsureIndexes(ctx); err != nil {
		log.Fatalf("failed to create mongo indexes: %v", err)
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient, cfg.OrderCacheTTL)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisClient, logger)

	// The image store is optional; without it uploads are rejected.
	var blobs catalog.BlobStore
	if cfg.Storage.Enabled() {
		store, err := s3.NewBlobStore(ctx, cfg.Storage)
		if err != nil {
			log.Fatalf("failed to configure object storage: %v", err)
		}
		blobs = store
	} else {
		logger.Warn("object storage not configured, image uploads disabled")
	}

	var gateway payment.Gateway
	if cfg.Payment.GatewayURL != "" {
		gateway = payment.NewHTTPGateway(cfg.Payment.GatewayURL, cfg.Payment.Timeout)
	} else {
		logger.Warn("PAYMENT_GATEWAY_URL not set, using the stub gateway")
		gateway = payment.NewStubGateway(cfg.Payment.MinDelay, cfg.Payment.MaxDelay)
	}
	processor := payment.NewProcessor(gateway, cfg.Payment.Timeout, logger)

	catalogSvc := catalog.NewService(crdbRepo, eventRepo, blobs, logger)
	orderManager := orders.NewManager(crdbRepo, redisCache, logger).WithRefunds(processor)
	checkoutSvc := checkout.NewService(processor, orderManager, logger)
	verifier := pickup.NewVerifier(orderManager, redisCache, cfg.ScanCooldown, logger)

	pingers := map[string]httphandler.Pinger{
		"crdb": crdbRepo.Ping,
		"mongo": func(ctx context.Context) error {
			return mongoClient.Ping(ctx, nil)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
	if cfg.RabbitURL != "" {
		pingers["rabbitmq"] = func(ctx context.Context) error {
			conn, err := amqp.Dial(cfg.RabbitURL)
			if err != nil {
				return err
			}
			return conn.Close()
		}
	}

	handlers := httphandler.NewHandlers(catalogSvc, orderManager, checkoutSvc, verifier, pingers, logger)
	r := httphandler.SetupRouter(handlers, httphandler.RouterConfig{
		JWTSecret:   cfg.JWTSecret,
		UserRate:    cfg.UserRateLimit,
		IPRate:      cfg.IPRateLimit,
		RateLimiter: rl,
		Idempotency: idemp,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
