// Package gatewayrpc is the wire contract between checkout and the payment
// gateway: request/response messages, the gRPC service descriptor and the
// JSON codec the messages travel with.
package gatewayrpc

type IntentStatus string

const (
	IntentPending   IntentStatus = "PENDING"
	IntentSucceeded IntentStatus = "SUCCEEDED"
	IntentFailed    IntentStatus = "FAILED"
	IntentCancelled IntentStatus = "CANCELLED"
)

func (s IntentStatus) Known() bool {
	switch s {
	case IntentPending, IntentSucceeded, IntentFailed, IntentCancelled:
		return true
	}
	return false
}

// Intent is a payment intent as the gateway reports it. Amounts are decimal
// strings with two fractional digits.
type Intent struct {
	Reference     string       `json:"reference"`
	ClientSecret  string       `json:"client_secret,omitempty"`
	OrderID       string       `json:"order_id"`
	Amount        string       `json:"amount"`
	Currency      string       `json:"currency"`
	Status        IntentStatus `json:"status"`
	DeclineReason string       `json:"decline_reason,omitempty"`
}

func (i *Intent) GetReference() string {
	if i == nil {
		return ""
	}
	return i.Reference
}

type CreateIntentRequest struct {
	OrderID  string `json:"order_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type GetIntentRequest struct {
	Reference string `json:"reference"`
}

type SubmitIntentRequest struct {
	Reference     string `json:"reference"`
	PaymentMethod string `json:"payment_method"`
}

type CancelIntentRequest struct {
	Reference string `json:"reference"`
}

type IntentResponse struct {
	Intent *Intent `json:"intent"`
}

func (r *IntentResponse) GetIntent() *Intent {
	if r == nil {
		return nil
	}
	return r.Intent
}
