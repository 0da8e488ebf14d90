package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName    string        `env:"SERVICE_NAME" envDefault:"merchpit"`
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	CRDBDSN        string        `env:"CRDB_DSN"`
	MongoURI       string        `env:"MONGO_URI"`
	MongoDatabase  string        `env:"MONGO_DATABASE" envDefault:"merchpit"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RabbitURL      string        `env:"RABBIT_URL"`
	JWTSecret      string        `env:"JWT_SECRET"`
	OTLPEndpoint   string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	MigrateOnStart bool          `env:"MIGRATE_ON_START" envDefault:"false"`
	OrderCacheTTL  time.Duration `env:"ORDER_CACHE_TTL" envDefault:"10m"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"1h"`
	ScanCooldown   time.Duration `env:"SCAN_COOLDOWN" envDefault:"3s"`
	PickupWindow   time.Duration `env:"PICKUP_WINDOW" envDefault:"72h"`
	ExpiryInterval time.Duration `env:"EXPIRY_INTERVAL" envDefault:"1m"`
	UserRateLimit  int           `env:"RATE_LIMIT_USER" envDefault:"60"`
	IPRateLimit    int           `env:"RATE_LIMIT_IP" envDefault:"300"`
	AuditQueue     string        `env:"AUDIT_QUEUE" envDefault:"merchpit.audit"`

	Payment Payment `envPrefix:"PAYMENT_"`
	Storage Storage `envPrefix:"S3_"`
}

type Payment struct {
	GatewayURL string        `env:"GATEWAY_URL"`
	MinDelay   time.Duration `env:"MIN_DELAY" envDefault:"1500ms"`
	MaxDelay   time.Duration `env:"MAX_DELAY" envDefault:"2s"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type Storage struct {
	Endpoint        string `env:"ENDPOINT"`
	Region          string `env:"REGION" envDefault:"auto"`
	Bucket          string `env:"BUCKET"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	PublicURL       string `env:"PUBLIC_URL"`
}

func (s Storage) Enabled() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	if cfg.Payment.MaxDelay < cfg.Payment.MinDelay {
		return nil, errors.Newf("PAYMENT_MAX_DELAY %s is below PAYMENT_MIN_DELAY %s", cfg.Payment.MaxDelay, cfg.Payment.MinDelay)
	}
	if cfg.Payment.Timeout <= cfg.Payment.MaxDelay {
		return nil, errors.Newf("PAYMENT_TIMEOUT %s must exceed PAYMENT_MAX_DELAY %s", cfg.Payment.Timeout, cfg.Payment.MaxDelay)
	}
	return cfg, nil
}
