package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/coordinator/sagalog"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/session"
)

// Confirmation sources.
const (
	SourceRedirect     = "redirect"
	SourceNotification = "notification"
)

// SubmitPayment records that the customer completed the hosted payment form
// for the order's current reference. The gateway is asked for the outcome:
// an acknowledged attempt moves the order to PROCESSING, an already
// successful one settles it, and a decline leaves it PENDING so the customer
// can pay again.
func (s *Service) SubmitPayment(ctx context.Context, sess session.Session, orderID, ref string) (_ *domain.Order, err error) {
	ctx, span := startSpan(ctx, "checkout.SubmitPayment", orderID)
	defer func() { endSpan(span, err) }()

	order, err := s.withOrder(ctx, orderID, func(order *domain.Order) error {
		if !sess.CanAccess(order.CustomerID) {
			return domain.ErrOrderNotFound
		}
		if err := checkReference(order, ref); err != nil {
			return err
		}
		switch order.Status {
		case domain.StatusProcessing:
			return nil
		case domain.StatusCompleted:
			return fmt.Errorf("%w: order %s is completed", domain.ErrInvalidTransition, order.ID)
		case domain.StatusCancelled:
			return fmt.Errorf("%w: order %s is cancelled", domain.ErrInvalidTransition, order.ID)
		}

		outcome, err := s.gateway.Confirm(ctx, ref)
		if err != nil {
			return err
		}
		switch outcome {
		case OutcomeDeclined:
			return fmt.Errorf("%w: order %s", domain.ErrPaymentDeclined, order.ID)
		case OutcomeSucceeded:
			return s.settle(ctx, order, sess.Actor())
		default:
			return s.transition(ctx, order, domain.StatusProcessing, "payment submitted", sess.Actor())
		}
	})
	if err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// ConfirmPayment applies the gateway's verdict for ref, reached through the
// customer's redirect or a server notification. Both paths converge here, so
// repeated confirmations of a paid order are no-ops.
func (s *Service) ConfirmPayment(ctx context.Context, ref, source string) (_ *domain.Order, err error) {
	ctx, span := startSpan(ctx, "checkout.ConfirmPayment", "")
	defer func() { endSpan(span, err) }()

	found, err := s.orders.FindByPaymentReference(ctx, ref)
	if errors.Is(err, domain.ErrOrderNotFound) {
		slog.ErrorContext(ctx, "confirmation for unknown payment reference",
			"payment_reference", ref, "source", source)
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPaymentReference, ref)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(orderIDAttr(found.ID))
	actor := string(session.RoleGateway) + ":" + source

	order, err := s.withOrder(ctx, found.ID, func(order *domain.Order) error {
		if err := checkReference(order, ref); err != nil {
			return err
		}
		switch order.Status {
		case domain.StatusCompleted:
			return nil
		case domain.StatusCancelled:
			outcome, err := s.gateway.Confirm(ctx, ref)
			if errors.Is(err, domain.ErrGatewayUnavailable) {
				return err
			}
			if err == nil && outcome == OutcomeSucceeded {
				slog.ErrorContext(ctx, "payment succeeded for cancelled order",
					"order_id", order.ID, "payment_reference", ref, "source", source)
				return fmt.Errorf("%w: order %s is cancelled", domain.ErrInvalidTransition, order.ID)
			}
			return nil
		}

		outcome, err := s.gateway.Confirm(ctx, ref)
		if err != nil {
			return err
		}
		switch outcome {
		case OutcomeSucceeded:
			return s.settle(ctx, order, actor)
		case OutcomeDeclined:
			if order.Status == domain.StatusProcessing {
				return s.transition(ctx, order, domain.StatusCancelled, "payment declined", actor)
			}
			return fmt.Errorf("%w: order %s", domain.ErrPaymentDeclined, order.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// HandleNotification processes a gateway push at most once per event id.
// Business outcomes are recorded as handled; only a gateway or storage
// failure is returned so the sender retries later.
func (s *Service) HandleNotification(ctx context.Context, eventID, ref string) error {
	seen, err := s.orders.NotificationSeen(ctx, eventID)
	if err != nil {
		return err
	}
	if seen {
		slog.DebugContext(ctx, "duplicate payment notification", "event_id", eventID, "payment_reference", ref)
		return nil
	}

	_, err = s.ConfirmPayment(ctx, ref, SourceNotification)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPaymentDeclined):
		slog.InfoContext(ctx, "notification reported a declined payment", "event_id", eventID, "payment_reference", ref)
	case isConsistencyError(err):
		slog.ErrorContext(ctx, "notification could not be applied",
			"event_id", eventID, "payment_reference", ref, "error", err)
	default:
		return err
	}
	return s.orders.RecordNotification(ctx, eventID, ref)
}

// PayAgain issues a new payment intent for a PENDING order. The new
// reference becomes authoritative and the previous intent is released.
func (s *Service) PayAgain(ctx context.Context, sess session.Session, orderID string) (_ *CheckoutResult, err error) {
	ctx, span := startSpan(ctx, "checkout.PayAgain", orderID)
	defer func() { endSpan(span, err) }()

	var intent Intent
	var previous string
	order, err := s.withOrder(ctx, orderID, func(order *domain.Order) error {
		if !sess.CanAccess(order.CustomerID) {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.StatusPending {
			return fmt.Errorf("%w: cannot pay again for %s order %s", domain.ErrInvalidTransition, order.Status, order.ID)
		}

		current, _ := order.CurrentAttempt()
		outcome, err := s.gateway.Confirm(ctx, current.Reference)
		if err != nil {
			return err
		}
		if outcome == OutcomeSucceeded {
			if err := s.settle(ctx, order, sess.Actor()); err != nil {
				return err
			}
			return fmt.Errorf("%w: order %s is already paid", domain.ErrInvalidTransition, order.ID)
		}

		in, err := s.gateway.CreateIntent(ctx, IntentRequest{
			OrderID:  order.ID,
			Attempt:  current.Attempt + 1,
			Amount:   order.DiscountedTotalAmount,
			Currency: order.Currency,
		})
		if err != nil {
			return err
		}

		expected := order.Version
		attempt := order.Supersede(in.Reference, in.ClientSecret, s.now())
		order.Version++
		if err := s.orders.AddAttempt(ctx, order, expected, attempt); err != nil {
			s.releaseIntent(ctx, order.ID, in.Reference)
			return fmt.Errorf("store payment attempt for order %s: %w", order.ID, err)
		}
		intent = in
		previous = current.Reference
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "payment attempt superseded",
		"order_id", order.ID, "payment_reference", intent.Reference, "previous_reference", previous)
	s.releaseIntent(ctx, order.ID, previous)

	return &CheckoutResult{Order: order.Clone(), ClientSecret: intent.ClientSecret}, nil
}

// Cancel cancels an order on behalf of the caller. Customers may cancel only
// PENDING orders. Staff may also cancel PROCESSING orders once the gateway
// reports the attempt failed. An order whose payment turns out to have
// succeeded is settled instead and the cancellation is refused.
func (s *Service) Cancel(ctx context.Context, sess session.Session, orderID, reason string) (_ *domain.Order, err error) {
	ctx, span := startSpan(ctx, "checkout.Cancel", orderID)
	defer func() { endSpan(span, err) }()

	if reason == "" {
		reason = "cancelled by " + string(sess.Role)
	}

	order, err := s.withOrder(ctx, orderID, func(order *domain.Order) error {
		if !sess.CanAccess(order.CustomerID) {
			return domain.ErrOrderNotFound
		}
		switch order.Status {
		case domain.StatusPending:
		case domain.StatusProcessing:
			if !sess.IsStaff() {
				return fmt.Errorf("%w: order %s has a payment in progress", domain.ErrInvalidTransition, order.ID)
			}
		default:
			return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, order.ID, order.Status)
		}

		ref := order.PaymentReference()
		outcome, err := s.gateway.Confirm(ctx, ref)
		if err != nil {
			return err
		}
		switch outcome {
		case OutcomeSucceeded:
			if err := s.settle(ctx, order, sess.Actor()); err != nil {
				return err
			}
			return fmt.Errorf("%w: payment for order %s already succeeded", domain.ErrInvalidTransition, order.ID)
		case OutcomePending:
			if order.Status == domain.StatusProcessing {
				return fmt.Errorf("%w: order %s", domain.ErrPaymentInFlight, order.ID)
			}
			// Release the intent first so it cannot succeed after the
			// order is cancelled.
			if err := s.gateway.CancelIntent(ctx, ref); err != nil {
				return err
			}
		}
		return s.transition(ctx, order, domain.StatusCancelled, reason, sess.Actor())
	})
	if err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// GetOrder hides other customers' orders behind ErrOrderNotFound.
func (s *Service) GetOrder(ctx context.Context, sess session.Session, orderID string) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !sess.CanAccess(order.CustomerID) {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns a customer's orders, newest first. An empty customerID
// means the caller's own orders.
func (s *Service) ListOrders(ctx context.Context, sess session.Session, customerID string) ([]*domain.Order, error) {
	if customerID == "" {
		customerID = sess.CustomerID
	}
	if !sess.CanAccess(customerID) {
		return nil, domain.ErrForbidden
	}
	return s.orders.ListByCustomer(ctx, customerID)
}

// History returns the status transitions of an order, oldest first.
func (s *Service) History(ctx context.Context, sess session.Session, orderID string) ([]domain.StatusTransition, error) {
	if _, err := s.GetOrder(ctx, sess, orderID); err != nil {
		return nil, err
	}
	return s.orders.History(ctx, orderID)
}

// CheckoutLog returns the recorded steps of an order's checkout, oldest
// first. A failed checkout leaves a log but no order, so the order itself
// need not exist. Staff only.
func (s *Service) CheckoutLog(ctx context.Context, sess session.Session, orderID string) ([]*sagalog.SagaLog, error) {
	if !sess.IsStaff() {
		return nil, domain.ErrForbidden
	}
	if s.sagaRead == nil {
		return nil, fmt.Errorf("%w: checkout log is not kept", domain.ErrCheckoutLogNotFound)
	}
	entries, err := s.sagaRead.Entries(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("read checkout log for order %s: %w", orderID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: order %s", domain.ErrCheckoutLogNotFound, orderID)
	}
	return entries, nil
}

// checkReference accepts only the order's authoritative reference.
func checkReference(order *domain.Order, ref string) error {
	if ref == order.PaymentReference() {
		return nil
	}
	if order.HasReference(ref) {
		return fmt.Errorf("%w: %s for order %s", domain.ErrStalePaymentReference, ref, order.ID)
	}
	return fmt.Errorf("%w: %s for order %s", domain.ErrUnknownPaymentReference, ref, order.ID)
}

// releaseIntent cancels an intent that is no longer needed. Failures are
// logged; the intent then simply expires unpaid on the gateway.
func (s *Service) releaseIntent(ctx context.Context, orderID, ref string) {
	if ref == "" {
		return
	}
	if err := s.gateway.CancelIntent(ctx, ref); err != nil {
		slog.WarnContext(ctx, "failed to release payment intent",
			"order_id", orderID, "payment_reference", ref, "error", err)
	}
}

func isConsistencyError(err error) bool {
	return errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrUnknownPaymentReference) ||
		errors.Is(err, domain.ErrStalePaymentReference) ||
		errors.Is(err, domain.ErrOrderNotFound)
}
