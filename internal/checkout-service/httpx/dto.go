package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/cart"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/coordinator/sagalog"
)

type AddLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (r AddLineRequest) Validate() error {
	if strings.TrimSpace(r.ProductID) == "" {
		return errors.New("product_id is required")
	}
	if r.Quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	if r.Quantity > domain.MaxLineQuantity {
		return fmt.Errorf("quantity cannot exceed %d", domain.MaxLineQuantity)
	}
	return nil
}

type SetQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (r SetQuantityRequest) Validate() error {
	if r.Quantity == nil {
		return errors.New("quantity is required")
	}
	if *r.Quantity < 0 {
		return errors.New("quantity cannot be negative")
	}
	if *r.Quantity > domain.MaxLineQuantity {
		return fmt.Errorf("quantity cannot exceed %d", domain.MaxLineQuantity)
	}
	return nil
}

type AddressDTO struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

func (a AddressDTO) toDomain() domain.Address {
	return domain.Address{
		Name:       strings.TrimSpace(a.Name),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}

// CheckoutRequest carries no validation of its own: a missing address is a
// precondition failure reported by the order builder.
type CheckoutRequest struct {
	DeliveryAddress *AddressDTO `json:"delivery_address"`
}

type SubmitPaymentRequest struct {
	PaymentReference string `json:"payment_reference"`
}

func (r SubmitPaymentRequest) Validate() error {
	if strings.TrimSpace(r.PaymentReference) == "" {
		return errors.New("payment_reference is required")
	}
	return nil
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type NotificationRequest struct {
	EventID          string `json:"event_id"`
	PaymentReference string `json:"payment_reference"`
	OrderID          string `json:"order_id,omitempty"`
	Status           string `json:"status"`
}

func (r NotificationRequest) Validate() error {
	if r.EventID == "" || r.PaymentReference == "" {
		return errors.New("event_id and payment_reference are required")
	}
	return nil
}

type CartResponse struct {
	CustomerID            string         `json:"customer_id"`
	Lines                 []LineResponse `json:"lines"`
	TotalAmount           string         `json:"total_amount"`
	DiscountedTotalAmount string         `json:"discounted_total_amount"`
	PricedOn              string         `json:"priced_on"`
}

type LineResponse struct {
	ProductID           string `json:"product_id"`
	ProductName         string `json:"product_name"`
	UnitPrice           string `json:"unit_price"`
	Quantity            int    `json:"quantity"`
	LineTotal           string `json:"line_total"`
	PromotionID         string `json:"promotion_id,omitempty"`
	DiscountPercent     string `json:"discount_percent"`
	DiscountedLineTotal string `json:"discounted_line_total"`
}

type OrderResponse struct {
	ID                    string         `json:"id"`
	CustomerID            string         `json:"customer_id"`
	Status                string         `json:"status"`
	Currency              string         `json:"currency"`
	TotalAmount           string         `json:"total_amount"`
	DiscountedTotalAmount string         `json:"discounted_total_amount"`
	PaymentReference      string         `json:"payment_reference"`
	PaymentAttempt        int            `json:"payment_attempt"`
	CancelReason          string         `json:"cancel_reason,omitempty"`
	DeliveryAddress       AddressDTO     `json:"delivery_address"`
	Lines                 []LineResponse `json:"lines"`
	CreatedAt             string         `json:"created_at"`
	UpdatedAt             string         `json:"updated_at"`
}

type CheckoutResponse struct {
	Order        OrderResponse `json:"order"`
	ClientSecret string        `json:"client_secret"`
	Message      string        `json:"message,omitempty"`
}

type TransitionResponse struct {
	From             string `json:"from,omitempty"`
	To               string `json:"to"`
	Reason           string `json:"reason,omitempty"`
	Actor            string `json:"actor"`
	PaymentReference string `json:"payment_reference,omitempty"`
	OccurredAt       string `json:"occurred_at"`
}

// CheckoutLogEntryResponse is one recorded step of a checkout. TraceID links
// the step to its distributed trace.
type CheckoutLogEntryResponse struct {
	Status        string          `json:"status"`
	Step          string          `json:"step,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ErrorMessages json.RawMessage `json:"errors,omitempty"`
	TraceID       string          `json:"trace_id,omitempty"`
	UpdatedAt     string          `json:"updated_at"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func mapCartToResponse(v *cart.View) CartResponse {
	return CartResponse{
		CustomerID:            v.CustomerID,
		Lines:                 mapLines(v.Quote.Lines),
		TotalAmount:           v.Quote.TotalAmount.StringFixed(2),
		DiscountedTotalAmount: v.Quote.DiscountedTotalAmount.StringFixed(2),
		PricedOn:              v.Quote.PricedOn.Format(time.DateOnly),
	}
}

func mapOrderToResponse(o *domain.Order) OrderResponse {
	res := OrderResponse{
		ID:                    o.ID,
		CustomerID:            o.CustomerID,
		Status:                string(o.Status),
		Currency:              o.Currency,
		TotalAmount:           o.TotalAmount.StringFixed(2),
		DiscountedTotalAmount: o.DiscountedTotalAmount.StringFixed(2),
		PaymentReference:      o.PaymentReference(),
		CancelReason:          o.CancelReason,
		DeliveryAddress: AddressDTO{
			Name:       o.DeliveryAddress.Name,
			Line1:      o.DeliveryAddress.Line1,
			Line2:      o.DeliveryAddress.Line2,
			City:       o.DeliveryAddress.City,
			PostalCode: o.DeliveryAddress.PostalCode,
			Country:    o.DeliveryAddress.Country,
		},
		Lines:     mapLines(o.Lines),
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: o.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a, ok := o.CurrentAttempt(); ok {
		res.PaymentAttempt = a.Attempt
	}
	return res
}

func mapLines(lines []domain.OrderLine) []LineResponse {
	out := make([]LineResponse, len(lines))
	for i, l := range lines {
		out[i] = LineResponse{
			ProductID:           l.ProductID,
			ProductName:         l.ProductName,
			UnitPrice:           l.UnitPrice.StringFixed(2),
			Quantity:            l.Quantity,
			LineTotal:           l.LineTotal.StringFixed(2),
			PromotionID:         l.PromotionID,
			DiscountPercent:     l.DiscountPercent.String(),
			DiscountedLineTotal: l.DiscountedLineTotal.StringFixed(2),
		}
	}
	return out
}

func mapHistory(ts []domain.StatusTransition) []TransitionResponse {
	out := make([]TransitionResponse, len(ts))
	for i, t := range ts {
		out[i] = TransitionResponse{
			From:             string(t.From),
			To:               string(t.To),
			Reason:           t.Reason,
			Actor:            t.Actor,
			PaymentReference: t.PaymentReference,
			OccurredAt:       t.OccurredAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}

func mapCheckoutLog(entries []*sagalog.SagaLog) []CheckoutLogEntryResponse {
	out := make([]CheckoutLogEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = CheckoutLogEntryResponse{
			Status:        string(e.Status),
			Step:          e.CurrentStep,
			Payload:       rawJSON(e.Payload),
			ErrorMessages: rawJSON(e.ErrorMessages),
			TraceID:       e.TraceID,
			UpdatedAt:     e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}

// rawJSON passes stored JSON through; empty or malformed text is dropped.
func rawJSON(s string) json.RawMessage {
	if s == "" || s == "[]" || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}
