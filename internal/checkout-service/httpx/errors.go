package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/session"
)

const genericConsistencyMessage = "we could not update this order, please check your order history"

type errorMapping struct {
	target    error
	status    int
	code      string
	retryable bool
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{domain.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart", false},
	{domain.ErrMissingAddress, http.StatusUnprocessableEntity, "missing_address", false},
	{domain.ErrInvalidQuantity, http.StatusUnprocessableEntity, "invalid_quantity", false},
	{domain.ErrProductNotFound, http.StatusUnprocessableEntity, "unknown_product", false},
	{domain.ErrPricingUnavailable, http.StatusServiceUnavailable, "pricing_unavailable", true},
	{domain.ErrCartConflict, http.StatusConflict, "cart_conflict", true},
	{domain.ErrLineNotFound, http.StatusNotFound, "line_not_found", false},

	{domain.ErrPaymentDeclined, http.StatusPaymentRequired, "payment_declined", true},
	{domain.ErrGatewayUnavailable, http.StatusBadGateway, "gateway_unavailable", true},
	{domain.ErrPaymentInFlight, http.StatusConflict, "payment_in_flight", true},

	{domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found", false},
	{domain.ErrCheckoutLogNotFound, http.StatusNotFound, "checkout_log_not_found", false},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden", false},
	{session.ErrNoSession, http.StatusUnauthorized, "unauthorized", false},
}

var consistencyErrors = []error{
	domain.ErrInvalidTransition,
	domain.ErrUnknownPaymentReference,
	domain.ErrStalePaymentReference,
	domain.ErrVersionConflict,
	domain.ErrDuplicateCheckout,
}

func isConsistencyError(err error) bool {
	for _, target := range consistencyErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeDomainError turns a use case error into the user-facing envelope.
// Consistency errors are logged in full and answered with a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, ErrorResponse{Error: m.code, Message: err.Error(), Retryable: m.retryable})
			return
		}
	}

	if isConsistencyError(err) {
		slog.ErrorContext(r.Context(), "order consistency error",
			"order_id", chi.URLParam(r, "id"),
			"request_id", interceptors.RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "order_conflict", Message: genericConsistencyMessage})
		return
	}

	slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}
