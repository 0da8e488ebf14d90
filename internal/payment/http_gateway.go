package payment

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
)

type chargeBody struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

// HTTPGateway calls a remote payment service over HTTP.
type HTTPGateway struct {
	client *resty.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetRetryCount(0),
	}
}

func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	amount, _ := req.Amount.Round(2).Float64()
	var out chargeResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(chargeBody{OrderID: req.Reference, Amount: amount}).
		SetResult(&out).
		SetError(&out).
		Post("/payment/charge")
	if err != nil {
		return "", transportError(ctx, err)
	}

	switch {
	case resp.StatusCode() == http.StatusPaymentRequired:
		return "", errors.Wrapf(ErrDeclined, "%s", out.Message)
	case resp.IsError():
		return "", errors.Wrapf(ErrUnavailable, "charge returned %d: %s", resp.StatusCode(), out.Message)
	case out.TransactionID == "":
		return "", errors.Wrap(ErrUnavailable, "charge response without transaction id")
	}
	return out.TransactionID, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, token string) error {
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"transaction_id": token}).
		Post("/payment/refund")
	if err != nil {
		return transportError(ctx, err)
	}
	if resp.IsError() {
		return errors.Wrapf(ErrUnavailable, "refund returned %d", resp.StatusCode())
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return contextError(ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Mark(errors.Wrap(err, "payment gateway"), ErrTimeout)
	}
	return errors.Mark(errors.Wrap(err, "payment gateway"), ErrUnavailable)
}
