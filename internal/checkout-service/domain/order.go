package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the immutable purchase snapshot taken at checkout. Only Status,
// the payment attempts and the bookkeeping fields change after creation.
type Order struct {
	ID                    string
	CustomerID            string
	Lines                 []OrderLine
	Currency              string
	TotalAmount           decimal.Decimal
	DiscountedTotalAmount decimal.Decimal
	Status                OrderStatus
	DeliveryAddress       Address
	Attempts              []PaymentAttempt
	IdempotencyKey        string
	RequestID             string
	CancelReason          string
	Version               int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type OrderLine struct {
	ProductID           string
	ProductName         string
	UnitPrice           decimal.Decimal
	Quantity            int
	LineTotal           decimal.Decimal
	PromotionID         string
	DiscountPercent     decimal.Decimal
	DiscountedLineTotal decimal.Decimal
}

// PaymentAttempt is one payment intent issued for an order. The attempt with
// the highest number is the authoritative one.
type PaymentAttempt struct {
	Attempt      int
	Reference    string
	ClientSecret string
	Amount       decimal.Decimal
	CreatedAt    time.Time
	SupersededAt *time.Time
}

type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
}

// Complete reports whether the address is usable for delivery.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.Line1) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.Country) != ""
}

// StatusTransition is one row of an order's status history.
type StatusTransition struct {
	OrderID          string
	From             OrderStatus
	To               OrderStatus
	Reason           string
	Actor            string
	PaymentReference string
	TraceID          string
	OccurredAt       time.Time
}

// CurrentAttempt returns the authoritative payment attempt.
func (o *Order) CurrentAttempt() (PaymentAttempt, bool) {
	if len(o.Attempts) == 0 {
		return PaymentAttempt{}, false
	}
	current := o.Attempts[0]
	for _, a := range o.Attempts[1:] {
		if a.Attempt > current.Attempt {
			current = a
		}
	}
	return current, true
}

// PaymentReference is the reference of the authoritative attempt, or "".
func (o *Order) PaymentReference() string {
	a, ok := o.CurrentAttempt()
	if !ok {
		return ""
	}
	return a.Reference
}

// HasReference reports whether ref was ever issued for this order.
func (o *Order) HasReference(ref string) bool {
	return slices.ContainsFunc(o.Attempts, func(a PaymentAttempt) bool { return a.Reference == ref })
}

// Transition moves the order to the given status and returns the history row
// describing the move. The order is left untouched on error.
func (o *Order) Transition(to OrderStatus, reason, actor string, now time.Time) (StatusTransition, error) {
	if !CanTransition(o.Status, to) {
		return StatusTransition{}, fmt.Errorf("%w: %s -> %s for order %s", ErrInvalidTransition, o.Status, to, o.ID)
	}
	t := StatusTransition{
		OrderID:          o.ID,
		From:             o.Status,
		To:               to,
		Reason:           reason,
		Actor:            actor,
		PaymentReference: o.PaymentReference(),
		OccurredAt:       now,
	}
	o.Status = to
	o.UpdatedAt = now
	if to == StatusCancelled {
		o.CancelReason = reason
	}
	return t, nil
}

// Supersede appends a new payment attempt, marking the previous one superseded.
func (o *Order) Supersede(ref, clientSecret string, now time.Time) PaymentAttempt {
	next := PaymentAttempt{
		Attempt:      1,
		Reference:    ref,
		ClientSecret: clientSecret,
		Amount:       o.DiscountedTotalAmount,
		CreatedAt:    now,
	}
	if cur, ok := o.CurrentAttempt(); ok {
		next.Attempt = cur.Attempt + 1
		for i := range o.Attempts {
			if o.Attempts[i].SupersededAt == nil {
				at := now
				o.Attempts[i].SupersededAt = &at
			}
		}
	}
	o.Attempts = append(o.Attempts, next)
	o.UpdatedAt = now
	return next
}

// Clone returns a deep copy so callers can never mutate a stored snapshot.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = slices.Clone(o.Lines)
	c.Attempts = make([]PaymentAttempt, len(o.Attempts))
	for i, a := range o.Attempts {
		c.Attempts[i] = a
		if a.SupersededAt != nil {
			at := *a.SupersededAt
			c.Attempts[i].SupersededAt = &at
		}
	}
	return &c
}
