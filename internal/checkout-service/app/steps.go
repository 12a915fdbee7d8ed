package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/coordinator"
)

var (
	_ coordinator.Step = (*createIntentStep)(nil)
	_ coordinator.Step = (*persistOrderStep)(nil)
)

// --- createIntentStep ---

// createIntentStep asks the gateway for the first payment intent and stamps
// it on the order as attempt #1.
type createIntentStep struct {
	gateway PaymentGateway
	order   *domain.Order
	now     func() time.Time
	intent  Intent
}

func (s *createIntentStep) Name() string { return "Create_Payment_Intent_Step" }

func (s *createIntentStep) Execute(ctx context.Context) error {
	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		OrderID:  s.order.ID,
		Attempt:  1,
		Amount:   s.order.DiscountedTotalAmount,
		Currency: s.order.Currency,
	})
	if err != nil {
		return fmt.Errorf("create payment intent for order %s: %w", s.order.ID, err)
	}
	s.intent = intent
	s.order.Supersede(intent.Reference, intent.ClientSecret, s.now())
	return nil
}

func (s *createIntentStep) Compensate(ctx context.Context) error {
	if s.intent.Reference == "" {
		return nil
	}
	if err := s.gateway.CancelIntent(ctx, s.intent.Reference); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", s.intent.Reference, err)
	}
	slog.InfoContext(ctx, "payment intent released",
		"order_id", s.order.ID, "payment_reference", s.intent.Reference)
	return nil
}

// --- persistOrderStep ---

// persistOrderStep writes the order with its first attempt and history row
// in one transaction.
type persistOrderStep struct {
	orders OrderRepository
	order  *domain.Order
	actor  string
	now    func() time.Time
}

func (s *persistOrderStep) Name() string { return "Persist_Order_Step" }

func (s *persistOrderStep) Execute(ctx context.Context) error {
	first := domain.StatusTransition{
		OrderID:          s.order.ID,
		To:               domain.StatusPending,
		Reason:           "order created",
		Actor:            s.actor,
		PaymentReference: s.order.PaymentReference(),
		TraceID:          traceID(ctx),
		OccurredAt:       s.now(),
	}
	if err := s.orders.Create(ctx, s.order, first); err != nil {
		return fmt.Errorf("persist order %s: %w", s.order.ID, err)
	}
	return nil
}

// Compensate is a no-op: it is the last step, so nothing runs after it
// that could fail.
func (s *persistOrderStep) Compensate(ctx context.Context) error {
	return nil
}
