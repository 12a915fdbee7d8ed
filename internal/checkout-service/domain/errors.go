package domain

import "errors"

// Precondition failures: the request can never succeed as sent.
var (
	ErrEmptyCart          = errors.New("checkout: cart is empty")
	ErrMissingAddress     = errors.New("checkout: delivery address is required")
	ErrPricingUnavailable = errors.New("checkout: pricing unavailable")
	ErrInvalidQuantity    = errors.New("cart: quantity out of range")
	ErrLineNotFound       = errors.New("cart: line not found")
	ErrCartConflict       = errors.New("cart: concurrent modification, reload and retry")
)

// Gateway failures: retryable by the customer.
var (
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	ErrPaymentDeclined    = errors.New("payment: declined")
	ErrPaymentInFlight    = errors.New("payment: outcome not final yet")
)

// Consistency failures.
var (
	ErrInvalidTransition       = errors.New("order: invalid status transition")
	ErrUnknownPaymentReference = errors.New("order: unknown payment reference")
	ErrStalePaymentReference   = errors.New("order: payment reference superseded")
	ErrVersionConflict         = errors.New("order: concurrent update")
	ErrDuplicateCheckout       = errors.New("order: checkout already recorded for idempotency key")
)

var (
	ErrOrderNotFound   = errors.New("order: not found")
	ErrProductNotFound = errors.New("catalog: product not found")
	ErrForbidden       = errors.New("order: not allowed for this session")

	ErrCheckoutLogNotFound = errors.New("checkout: no log recorded")
)
