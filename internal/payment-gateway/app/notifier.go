package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jcmexdev/storefront-checkout/internal/pkg/gatewayrpc"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors/constants"
)

// Notification is the server-push message sent when an intent settles.
type Notification struct {
	EventID          string                  `json:"event_id"`
	PaymentReference string                  `json:"payment_reference"`
	OrderID          string                  `json:"order_id"`
	Status           gatewayrpc.IntentStatus `json:"status"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// HTTPNotifier POSTs notifications as JSON to a checkout webhook.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

func (h *HTTPNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notifier: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := interceptors.RequestID(ctx); id != "" {
		req.Header.Set(constants.HeaderXRequestId, id)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: post %s: %w", h.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: %s answered %d", h.url, resp.StatusCode)
	}
	return nil
}
