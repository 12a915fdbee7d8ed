// Package gateway is the checkout side of the payment gateway: a gRPC
// client that bounds every call, validates what comes back and folds
// transport failures into the checkout error taxonomy.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/app"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/gatewayrpc"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors"
)

const DefaultTimeout = 5 * time.Second

// ErrInvalidResponse marks a gateway answer that failed validation.
var ErrInvalidResponse = errors.New("gateway: invalid response")

// Ensure at compile time that Client implements the port.
var _ app.PaymentGateway = (*Client)(nil)

// Client adapts gatewayrpc.GatewayClient to app.PaymentGateway.
type Client struct {
	rpc     gatewayrpc.GatewayClient
	timeout time.Duration
}

func NewClient(rpc gatewayrpc.GatewayClient, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{rpc: rpc, timeout: timeout}
}

// Dial opens a traced connection to the gateway that forwards request ids
// and idempotency keys as metadata.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(interceptors.PropagateClientInterceptor()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("gateway: connect to %s: %w", addr, err)
	}
	return conn, nil
}

// CreateIntent requests an intent for one payment attempt. The idempotency
// key is derived from the order and attempt number, so retrying after a
// timeout returns the same intent instead of opening a second one.
func (c *Client) CreateIntent(ctx context.Context, req app.IntentRequest) (app.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = interceptors.WithIdempotencyKey(ctx, IdempotencyKey(req.OrderID, req.Attempt))

	amount := req.Amount.StringFixed(2)
	res, err := c.rpc.CreateIntent(ctx, &gatewayrpc.CreateIntentRequest{
		OrderID:  req.OrderID,
		Amount:   amount,
		Currency: req.Currency,
	})
	if err != nil {
		return app.Intent{}, mapError("CreateIntent", err)
	}

	intent, err := validate(res)
	if err != nil {
		return app.Intent{}, err
	}
	got, err := decimal.NewFromString(intent.Amount)
	if err != nil || !got.Equal(req.Amount.Round(2)) {
		return app.Intent{}, fmt.Errorf("%w: %w: amount %q, requested %s",
			domain.ErrGatewayUnavailable, ErrInvalidResponse, intent.Amount, amount)
	}
	return app.Intent{Reference: intent.Reference, ClientSecret: intent.ClientSecret, Amount: got}, nil
}

// Confirm reports the gateway's current outcome for ref.
func (c *Client) Confirm(ctx context.Context, ref string) (app.PaymentOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.GetIntent(ctx, &gatewayrpc.GetIntentRequest{Reference: ref})
	if err != nil {
		return "", mapError("GetIntent", err)
	}
	intent, err := validate(res)
	if err != nil {
		return "", err
	}
	if intent.Reference != ref {
		return "", fmt.Errorf("%w: %w: asked for %s, got %s",
			domain.ErrGatewayUnavailable, ErrInvalidResponse, ref, intent.Reference)
	}
	return Outcome(intent.Status), nil
}

func (c *Client) CancelIntent(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.CancelIntent(ctx, &gatewayrpc.CancelIntentRequest{Reference: ref})
	if err != nil {
		return mapError("CancelIntent", err)
	}
	_, err = validate(res)
	return err
}

// IdempotencyKey is the key sent with CreateIntent for an order's attempt.
func IdempotencyKey(orderID string, attempt int) string {
	return fmt.Sprintf("%s:%d", orderID, attempt)
}

// Outcome maps a gateway intent status onto the checkout's view of it.
func Outcome(s gatewayrpc.IntentStatus) app.PaymentOutcome {
	switch s {
	case gatewayrpc.IntentSucceeded:
		return app.OutcomeSucceeded
	case gatewayrpc.IntentFailed, gatewayrpc.IntentCancelled:
		return app.OutcomeDeclined
	default:
		return app.OutcomePending
	}
}

func validate(res *gatewayrpc.IntentResponse) (*gatewayrpc.Intent, error) {
	intent := res.GetIntent()
	switch {
	case intent == nil:
		return nil, fmt.Errorf("%w: %w: empty intent", domain.ErrGatewayUnavailable, ErrInvalidResponse)
	case intent.Reference == "":
		return nil, fmt.Errorf("%w: %w: missing reference", domain.ErrGatewayUnavailable, ErrInvalidResponse)
	case !intent.Status.Known():
		return nil, fmt.Errorf("%w: %w: unknown status %q", domain.ErrGatewayUnavailable, ErrInvalidResponse, intent.Status)
	}
	return intent, nil
}

// mapError folds gRPC failures into domain errors. Anything that might
// succeed on retry becomes ErrGatewayUnavailable.
func mapError(method string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnavailable, method, err)
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s: %s", domain.ErrUnknownPaymentReference, method, status.Convert(err).Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s: %s", domain.ErrInvalidTransition, method, status.Convert(err).Message())
	default:
		return fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnavailable, method, err)
	}
}
