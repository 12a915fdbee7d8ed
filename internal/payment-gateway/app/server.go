package paymentgateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/storefront-checkout/internal/pkg/cache"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/gatewayrpc"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/interceptors"
)

// DeclinedPaymentMethod always fails, whatever the amount.
const DeclinedPaymentMethod = "pm_card_declined"

const idempotencyTTL = 24 * time.Hour

type Config struct {
	// DeclineAbove declines every submission for a larger amount.
	DeclineAbove decimal.Decimal
}

var _ gatewayrpc.GatewayServer = (*Server)(nil)

// Server is a sandbox payment gateway. Intents live in memory; the
// idempotency index lives in the cache so retries of CreateIntent with the
// same key get the same intent back.
type Server struct {
	gatewayrpc.UnimplementedGatewayServer
	mu       sync.Mutex
	intents  map[string]*gatewayrpc.Intent
	cache    cache.Cache
	notifier Notifier
	cfg      Config
	wg       sync.WaitGroup
}

// NewServer builds the sandbox. notifier may be nil.
func NewServer(c cache.Cache, notifier Notifier, cfg Config) *Server {
	return &Server{
		intents:  make(map[string]*gatewayrpc.Intent),
		cache:    c,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (s *Server) CreateIntent(ctx context.Context, req *gatewayrpc.CreateIntentRequest) (*gatewayrpc.IntentResponse, error) {
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		return nil, status.Errorf(codes.InvalidArgument, "invalid amount %q", req.Amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idemKey := interceptors.IdempotencyKey(ctx)
	var cacheKey string
	if idemKey != "" {
		cacheKey = s.cache.GenerateKey("intent", idemKey)
		if existing := s.lookupIdempotent(ctx, cacheKey); existing != nil {
			slog.InfoContext(ctx, "replaying intent for idempotency key",
				"idempotency_key", idemKey, "payment_reference", existing.Reference)
			return &gatewayrpc.IntentResponse{Intent: clone(existing)}, nil
		}
	}

	ref := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	intent := &gatewayrpc.Intent{
		Reference:    ref,
		ClientSecret: ref + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		OrderID:      req.OrderID,
		Amount:       amount.StringFixed(2),
		Currency:     strings.ToUpper(req.Currency),
		Status:       gatewayrpc.IntentPending,
	}

	if cacheKey != "" {
		claimed, err := s.cache.SetNX(ctx, cacheKey, ref, idempotencyTTL)
		if err != nil {
			return nil, status.Errorf(codes.Unavailable, "idempotency store: %v", err)
		}
		if !claimed {
			// Another replica won the key between lookup and claim.
			if existing := s.lookupIdempotent(ctx, cacheKey); existing != nil {
				return &gatewayrpc.IntentResponse{Intent: clone(existing)}, nil
			}
			return nil, status.Error(codes.Aborted, "idempotency key in use, retry")
		}
	}

	s.intents[ref] = intent
	slog.InfoContext(ctx, "payment intent created",
		"order_id", req.OrderID, "payment_reference", ref, "amount", intent.Amount)

	return &gatewayrpc.IntentResponse{Intent: clone(intent)}, nil
}

func (s *Server) GetIntent(ctx context.Context, req *gatewayrpc.GetIntentRequest) (*gatewayrpc.IntentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[req.Reference]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "intent %s not found", req.Reference)
	}
	return &gatewayrpc.IntentResponse{Intent: clone(intent)}, nil
}

// SubmitIntent simulates the customer completing the hosted payment page.
func (s *Server) SubmitIntent(ctx context.Context, req *gatewayrpc.SubmitIntentRequest) (*gatewayrpc.IntentResponse, error) {
	s.mu.Lock()
	intent, ok := s.intents[req.Reference]
	if !ok {
		s.mu.Unlock()
		return nil, status.Errorf(codes.NotFound, "intent %s not found", req.Reference)
	}
	if intent.Status != gatewayrpc.IntentPending {
		out := clone(intent)
		s.mu.Unlock()
		if out.Status == gatewayrpc.IntentCancelled {
			return nil, status.Errorf(codes.FailedPrecondition, "intent %s is cancelled", req.Reference)
		}
		return &gatewayrpc.IntentResponse{Intent: out}, nil
	}

	amount, _ := decimal.NewFromString(intent.Amount)
	switch {
	case req.PaymentMethod == DeclinedPaymentMethod:
		intent.Status = gatewayrpc.IntentFailed
		intent.DeclineReason = "card_declined"
	case s.cfg.DeclineAbove.IsPositive() && amount.GreaterThan(s.cfg.DeclineAbove):
		intent.Status = gatewayrpc.IntentFailed
		intent.DeclineReason = "amount_exceeds_limit"
	default:
		intent.Status = gatewayrpc.IntentSucceeded
	}
	out := clone(intent)
	s.mu.Unlock()

	slog.InfoContext(ctx, "payment submitted",
		"payment_reference", out.Reference, "status", out.Status, "decline_reason", out.DeclineReason)

	s.notify(ctx, out)
	return &gatewayrpc.IntentResponse{Intent: out}, nil
}

func (s *Server) CancelIntent(ctx context.Context, req *gatewayrpc.CancelIntentRequest) (*gatewayrpc.IntentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[req.Reference]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "intent %s not found", req.Reference)
	}
	switch intent.Status {
	case gatewayrpc.IntentSucceeded:
		return nil, status.Errorf(codes.FailedPrecondition, "intent %s already succeeded", req.Reference)
	case gatewayrpc.IntentPending:
		intent.Status = gatewayrpc.IntentCancelled
		slog.InfoContext(ctx, "payment intent cancelled", "payment_reference", req.Reference)
	}
	return &gatewayrpc.IntentResponse{Intent: clone(intent)}, nil
}

// Close waits for in-flight notifications.
func (s *Server) Close() {
	s.wg.Wait()
}

func (s *Server) notify(ctx context.Context, intent *gatewayrpc.Intent) {
	if s.notifier == nil {
		return
	}
	n := Notification{
		EventID:          "evt_" + uuid.NewString(),
		PaymentReference: intent.Reference,
		OrderID:          intent.OrderID,
		Status:           intent.Status,
	}
	// Detached so the notification outlives the RPC, keeping trace values.
	notifyCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.notifier.Notify(notifyCtx, n); err != nil {
			slog.ErrorContext(notifyCtx, "payment notification failed",
				"payment_reference", n.PaymentReference, "event_id", n.EventID, "error", err)
		}
	}()
}

// lookupIdempotent returns the intent recorded under cacheKey. Caller holds mu.
func (s *Server) lookupIdempotent(ctx context.Context, cacheKey string) *gatewayrpc.Intent {
	ref, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		slog.WarnContext(ctx, "idempotency lookup failed", "key", cacheKey, "error", err)
		return nil
	}
	if ref == "" {
		return nil
	}
	return s.intents[ref]
}

func clone(i *gatewayrpc.Intent) *gatewayrpc.Intent {
	c := *i
	return &c
}
