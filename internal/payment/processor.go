package payment

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/merchpit/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type Processor struct {
	gateway Gateway
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  observability.Logger
	now     func() time.Time
}

func NewProcessor(gateway Gateway, timeout time.Duration, logger observability.Logger) *Processor {
	p := &Processor{gateway: gateway, timeout: timeout, logger: logger, now: time.Now}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// A declined card or a shopper walking away says nothing about gateway health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDeclined) || errors.Is(err, ErrCancelled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.PaymentBreakerState.WithLabelValues(name).Set(stateValue(to))
			logger.WithField("breaker", name).
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("payment circuit breaker state changed")
		},
	})
	observability.PaymentBreakerState.WithLabelValues("payment").Set(0)
	return p
}

// ProcessPayment authorizes amount and returns the gateway's transaction token.
// The call is bounded by the processor timeout.
func (p *Processor) ProcessPayment(ctx context.Context, reference string, amount decimal.Decimal) (Result, error) {
	ctx, span := otel.Tracer("payment").Start(ctx, "payment.Process")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", reference), attribute.String("payment.amount", amount.StringFixed(2)))

	if !amount.IsPositive() {
		observability.Payments.WithLabelValues("invalid").Inc()
		return Result{}, errors.Wrapf(ErrInvalidAmount, "amount %s", amount)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.gateway.Charge(ctx, ChargeRequest{Reference: reference, Amount: amount})
	})
	if err != nil {
		err = breakerError(err)
		observability.Payments.WithLabelValues(outcome(err)).Inc()
		span.RecordError(err)
		p.logger.WithField("reference", reference).WithError(err).Warn("payment failed")
		return Result{}, err
	}

	observability.Payments.WithLabelValues("succeeded").Inc()
	return Result{Token: out.(string), Amount: amount, ProcessedAt: p.now().UTC()}, nil
}

func (p *Processor) Refund(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.gateway.Refund(ctx, token)
	})
	if err != nil {
		observability.Payments.WithLabelValues("refund_failed").Inc()
		return breakerError(err)
	}
	observability.Payments.WithLabelValues("refunded").Inc()
	return nil
}

func (p *Processor) State() gobreaker.State {
	return p.breaker.State()
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Mark(errors.Wrap(err, "payment breaker"), ErrUnavailable)
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrDeclined):
		return "declined"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "unavailable"
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
