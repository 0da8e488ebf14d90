package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/merchpit/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGatewayCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/charge", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "o-9", body["order_id"])
		assert.Equal(t, 12.5, body["amount"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction_id":"txn_remote","status":"approved"}`))
	}))
	defer srv.Close()

	gw := payment.NewHTTPGateway(srv.URL, time.Second)
	token, err := gw.Charge(context.Background(), payment.ChargeRequest{Reference: "o-9", Amount: decimal.RequireFromString("12.50")})
	require.NoError(t, err)
	assert.Equal(t, "txn_remote", token)
}

func TestHTTPGatewayErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"declined", http.StatusPaymentRequired, `{"status":"declined","message":"insufficient funds"}`, payment.ErrDeclined},
		{"server error", http.StatusBadGateway, `{"message":"upstream"}`, payment.ErrUnavailable},
		{"missing token", http.StatusOK, `{"status":"approved"}`, payment.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			gw := payment.NewHTTPGateway(srv.URL, time.Second)
			_, err := gw.Charge(context.Background(), payment.ChargeRequest{Reference: "o-1", Amount: decimal.NewFromInt(1)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestHTTPGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw := payment.NewHTTPGateway(url, time.Second)
	_, err := gw.Charge(context.Background(), payment.ChargeRequest{Reference: "o-1", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, payment.ErrUnavailable))
}
