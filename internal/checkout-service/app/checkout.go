package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/coordinator"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/session"
)

// CreateOrder turns the caller's cart into a PENDING order that already
// carries its first payment reference.
//
// The payment intent is created before the order is stored, and released
// again if storing fails, so an order row never exists without a reference.
// Repeating a request with the same idempotency key returns the order the
// first request created.
func (s *Service) CreateOrder(ctx context.Context, sess session.Session, address domain.Address, idempotencyKey string) (_ *CheckoutResult, err error) {
	ctx, span := startSpan(ctx, "checkout.CreateOrder", "")
	defer func() { endSpan(span, err) }()

	if sess.CustomerID == "" {
		return nil, domain.ErrForbidden
	}
	unlock := s.customerLocks.Lock(sess.CustomerID)
	defer unlock()

	if existing, ok, err := s.replay(ctx, sess.CustomerID, idempotencyKey); err != nil || ok {
		return existing, err
	}

	cart, err := s.carts.Load(ctx, sess.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.Empty() {
		return nil, domain.ErrEmptyCart
	}
	if !address.Complete() {
		return nil, domain.ErrMissingAddress
	}

	now := s.now()
	quote, err := s.pricer.PriceCart(ctx, cart, now)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:                    s.newID(),
		CustomerID:            sess.CustomerID,
		Lines:                 quote.Lines,
		Currency:              s.currency,
		TotalAmount:           quote.TotalAmount,
		DiscountedTotalAmount: quote.DiscountedTotalAmount,
		Status:                domain.StatusPending,
		DeliveryAddress:       address,
		IdempotencyKey:        idempotencyKey,
		RequestID:             interceptors.RequestID(ctx),
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	span.SetAttributes(orderIDAttr(order.ID))

	intentStep := &createIntentStep{gateway: s.gateway, order: order, now: s.now}
	steps := []coordinator.Step{
		intentStep,
		&persistOrderStep{orders: s.orders, order: order, actor: sess.Actor(), now: s.now},
	}
	saga := coordinator.NewOrchestrator(order.ID, steps, s.sagaLog).WithPayload(checkoutPayload(order))
	if err := saga.Start(ctx); err != nil {
		if errors.Is(err, domain.ErrDuplicateCheckout) {
			// Another instance won the race for this idempotency key.
			if existing, ok, rerr := s.replay(ctx, sess.CustomerID, idempotencyKey); rerr == nil && ok {
				return existing, nil
			}
		}
		slog.WarnContext(ctx, "checkout failed",
			"customer_id", sess.CustomerID, "order_id", order.ID, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"payment_reference", order.PaymentReference(),
		"discounted_total", order.DiscountedTotalAmount.StringFixed(2))

	if err := s.carts.Clear(ctx, sess.CustomerID); err != nil {
		slog.WarnContext(ctx, "failed to clear cart after checkout",
			"customer_id", sess.CustomerID, "order_id", order.ID, "error", err)
	}
	s.publish(ctx, EventOrderCreated, order, "")

	return &CheckoutResult{Order: order.Clone(), ClientSecret: intentStep.intent.ClientSecret}, nil
}

// replay returns the order already created for this customer and key.
func (s *Service) replay(ctx context.Context, customerID, key string) (*CheckoutResult, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	order, err := s.orders.FindByIdempotencyKey(ctx, customerID, key)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("look up checkout %q: %w", key, err)
	}
	slog.InfoContext(ctx, "replaying checkout for idempotency key",
		"customer_id", customerID, "order_id", order.ID, "idempotency_key", key)

	res := &CheckoutResult{Order: order}
	if a, ok := order.CurrentAttempt(); ok {
		res.ClientSecret = a.ClientSecret
	}
	return res, true, nil
}

func checkoutPayload(order *domain.Order) string {
	b, err := json.Marshal(struct {
		CustomerID     string `json:"customer_id"`
		IdempotencyKey string `json:"idempotency_key,omitempty"`
		Lines          int    `json:"lines"`
		Amount         string `json:"amount"`
		Currency       string `json:"currency"`
	}{
		CustomerID:     order.CustomerID,
		IdempotencyKey: order.IdempotencyKey,
		Lines:          len(order.Lines),
		Amount:         order.DiscountedTotalAmount.StringFixed(2),
		Currency:       order.Currency,
	})
	if err != nil {
		return ""
	}
	return string(b)
}
