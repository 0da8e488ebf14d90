package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/merchpit/internal/cart"
	"github.com/robertarktes/merchpit/internal/checkout"
	"github.com/robertarktes/merchpit/internal/domain"
	"github.com/robertarktes/merchpit/internal/idempotency"
	"github.com/robertarktes/merchpit/internal/payment"
	"github.com/robertarktes/merchpit/internal/pickup"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrSoldOut, http.StatusConflict, "sold_out"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrSerializationFailure, http.StatusConflict, "retry"},
	{checkout.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{cart.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{cart.ErrUnknownSize, http.StatusBadRequest, "unknown_size"},
	{cart.ErrExceedsInventory, http.StatusConflict, "exceeds_inventory"},
	{pickup.ErrInvalidCode, http.StatusNotFound, "invalid_code"},
	{pickup.ErrAlreadyUsed, http.StatusConflict, "already_used"},
	{pickup.ErrCooldown, http.StatusTooManyRequests, "cooldown"},
	{payment.ErrDeclined, http.StatusPaymentRequired, "payment_declined"},
	{payment.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{payment.ErrTimeout, http.StatusGatewayTimeout, "payment_timeout"},
	{payment.ErrCancelled, http.StatusRequestTimeout, "payment_cancelled"},
	{payment.ErrUnavailable, http.StatusServiceUnavailable, "payment_unavailable"},
	{idempotency.ErrInFlight, http.StatusConflict, "request_in_progress"},
}

// StatusFor maps a service error onto an HTTP status and a stable error code.
func StatusFor(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		requestLogger(r, h.logger).WithError(err).Error("request failed")
		msg = "internal error"
	}
	writeJSONError(w, status, code, msg)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
