package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchpit_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "merchpit_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "merchpit_outbox_lag_seconds",
			Help: "Age of the oldest outbox record published in the last batch",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merchpit_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merchpit_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchpit_orders_created_total",
			Help: "Order creation attempts by outcome",
		},
		[]string{"outcome"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchpit_order_status_transitions_total",
			Help: "Order status transitions by target status and outcome",
		},
		[]string{"to", "outcome"},
	)

	Payments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchpit_payments_total",
			Help: "Payment attempts by outcome",
		},
		[]string{"outcome"},
	)

	PaymentBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "merchpit_payment_breaker_state",
			Help: "Payment circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker"},
	)

	PickupScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchpit_pickup_scans_total",
			Help: "Pickup code scans by result",
		},
		[]string{"result"},
	)
)
