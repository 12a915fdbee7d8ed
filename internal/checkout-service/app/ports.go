package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/pricing"
)

// OrderRepository persists orders and their history.
type OrderRepository interface {
	// Create stores a new order with its lines, payment attempts and first
	// history row atomically. A second order for the same customer and
	// idempotency key fails with domain.ErrDuplicateCheckout.
	Create(ctx context.Context, order *domain.Order, first domain.StatusTransition) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	FindByPaymentReference(ctx context.Context, ref string) (*domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error)
	History(ctx context.Context, orderID string) ([]domain.StatusTransition, error)

	// UpdateStatus writes order.Status and appends t, provided the stored
	// version still equals expectedVersion. Otherwise it fails with
	// domain.ErrVersionConflict.
	UpdateStatus(ctx context.Context, order *domain.Order, expectedVersion int, t domain.StatusTransition) error
	// AddAttempt stores a new payment attempt and supersedes older ones under
	// the same version check as UpdateStatus.
	AddAttempt(ctx context.Context, order *domain.Order, expectedVersion int, attempt domain.PaymentAttempt) error

	NotificationSeen(ctx context.Context, eventID string) (bool, error)
	RecordNotification(ctx context.Context, eventID, paymentReference string) error
}

// PaymentOutcome is the gateway's view of a payment reference.
type PaymentOutcome string

const (
	OutcomePending   PaymentOutcome = "PENDING"
	OutcomeSucceeded PaymentOutcome = "SUCCEEDED"
	OutcomeDeclined  PaymentOutcome = "DECLINED"
)

type IntentRequest struct {
	OrderID  string
	Attempt  int
	Amount   decimal.Decimal
	Currency string
}

type Intent struct {
	Reference    string
	ClientSecret string
	Amount       decimal.Decimal
}

// PaymentGateway creates and inspects payment intents. Every method fails
// with domain.ErrGatewayUnavailable when the gateway cannot be reached in
// time; callers may retry.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Confirm(ctx context.Context, ref string) (PaymentOutcome, error)
	CancelIntent(ctx context.Context, ref string) error
}

// Carts is the slice of the cart service checkout needs.
type Carts interface {
	Load(ctx context.Context, customerID string) (*domain.Cart, error)
	Clear(ctx context.Context, customerID string) error
}

type Pricer interface {
	PriceCart(ctx context.Context, cart *domain.Cart, asOf time.Time) (pricing.Quote, error)
}

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is published after an order change has been committed.
type OrderEvent struct {
	ID               string             `json:"id"`
	Type             string             `json:"type"`
	OrderID          string             `json:"order_id"`
	CustomerID       string             `json:"customer_id"`
	Status           domain.OrderStatus `json:"status"`
	PreviousStatus   domain.OrderStatus `json:"previous_status,omitempty"`
	Amount           decimal.Decimal    `json:"amount"`
	Currency         string             `json:"currency"`
	PaymentReference string             `json:"payment_reference,omitempty"`
	OccurredAt       time.Time          `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}
