// Package app holds the checkout use cases: building orders from carts and
// moving them through their payment lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/coordinator/sagalog"
)

const (
	defaultCurrency = "USD"
	// maxConflictRetries bounds how often an operation reloads an order after
	// losing a version race to another writer.
	maxConflictRetries = 3
)

var tracer = otel.Tracer("github.com/jcmexdev/storefront-checkout/internal/checkout-service/app")

// CheckoutResult is what the customer needs to pay: the stored order and the
// client secret of its current payment intent.
type CheckoutResult struct {
	Order        *domain.Order
	ClientSecret string
}

type Service struct {
	orders   OrderRepository
	carts    Carts
	pricer   Pricer
	gateway  PaymentGateway
	events   EventPublisher
	sagaLog  sagalog.Repository
	sagaRead sagalog.Reader
	currency string
	now      func() time.Time
	newID    func() string

	customerLocks keyedMutex
	orderLocks    keyedMutex
}

type Option func(*Service)

// WithEventPublisher sets where committed order changes are announced.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithSagaLog records every checkout unit of work in repo.
func WithSagaLog(repo sagalog.Repository) Option {
	return func(s *Service) { s.sagaLog = repo }
}

// WithCheckoutLogReader lets staff read back the recorded checkout steps.
func WithCheckoutLogReader(r sagalog.Reader) Option {
	return func(s *Service) { s.sagaRead = r }
}

func WithCurrency(code string) Option {
	return func(s *Service) {
		if code != "" {
			s.currency = code
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(orders OrderRepository, carts Carts, pricer Pricer, gateway PaymentGateway, opts ...Option) *Service {
	s := &Service{
		orders:   orders,
		carts:    carts,
		pricer:   pricer,
		gateway:  gateway,
		currency: defaultCurrency,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withOrder runs fn on a freshly loaded order while holding the order's
// in-process lock. A version conflict means another process wrote the order
// first; fn is then re-run on the reloaded order.
func (s *Service) withOrder(ctx context.Context, orderID string, fn func(order *domain.Order) error) (*domain.Order, error) {
	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var order *domain.Order
		order, err = s.orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		err = fn(order)
		if !errors.Is(err, domain.ErrVersionConflict) {
			return order, err
		}
		slog.WarnContext(ctx, "order changed concurrently, reloading", "order_id", orderID, "attempt", attempt+1)
	}
	return nil, err
}

// transition moves order to the given status, persists it with a history row
// and announces the change.
func (s *Service) transition(ctx context.Context, order *domain.Order, to domain.OrderStatus, reason, actor string) error {
	expected := order.Version
	t, err := order.Transition(to, reason, actor, s.now())
	if err != nil {
		return err
	}
	t.TraceID = traceID(ctx)
	order.Version++

	if err := s.orders.UpdateStatus(ctx, order, expected, t); err != nil {
		return fmt.Errorf("update order %s to %s: %w", order.ID, to, err)
	}
	slog.InfoContext(ctx, "order status changed",
		"order_id", order.ID, "from", t.From, "to", t.To, "reason", reason, "actor", actor)

	s.publish(ctx, EventOrderStatusChanged, order, t.From)
	return nil
}

// settle walks a paid order forward to COMPLETED.
func (s *Service) settle(ctx context.Context, order *domain.Order, actor string) error {
	if order.Status == domain.StatusPending {
		if err := s.transition(ctx, order, domain.StatusProcessing, "payment submitted", actor); err != nil {
			return err
		}
	}
	if order.Status == domain.StatusProcessing {
		return s.transition(ctx, order, domain.StatusCompleted, "payment succeeded", actor)
	}
	return nil
}

// publish is best-effort: the change is already committed.
func (s *Service) publish(ctx context.Context, eventType string, order *domain.Order, previous domain.OrderStatus) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		ID:               s.newID(),
		Type:             eventType,
		OrderID:          order.ID,
		CustomerID:       order.CustomerID,
		Status:           order.Status,
		PreviousStatus:   previous,
		Amount:           order.DiscountedTotalAmount,
		Currency:         order.Currency,
		PaymentReference: order.PaymentReference(),
		OccurredAt:       s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "failed to publish order event",
			"order_id", order.ID, "type", eventType, "error", err)
	}
}

func traceID(ctx context.Context) string {
	return sagalog.ExtractTraceInfo(ctx).TraceID
}

func startSpan(ctx context.Context, name string, orderID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if orderID != "" {
		span.SetAttributes(orderIDAttr(orderID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func orderIDAttr(id string) attribute.KeyValue {
	return attribute.String("order.id", id)
}
