package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/adapters/memory"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/cart"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/pricing"
	"github.com/jcmexdev/storefront-checkout/internal/coordinator/sagalog"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/session"
)

type sagaRecorder struct {
	mu      sync.Mutex
	entries []*sagalog.SagaLog
}

func (r *sagaRecorder) Save(_ context.Context, e *sagalog.SagaLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *sagaRecorder) Entries(_ context.Context, sagaID string) ([]*sagalog.SagaLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sagalog.SagaLog
	for _, e := range r.entries {
		if e.SagaID == sagaID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *sagaRecorder) statuses() []sagalog.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sagalog.Status, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Status)
	}
	return out
}

var testAddress = domain.Address{Name: "Alice", Line1: "1 Main St", City: "Springfield", Country: "US"}

type CheckoutSuite struct {
	suite.Suite
	ctx        context.Context
	catalog    *memory.Catalog
	promotions *memory.Promotions
	carts      *cart.Service
	orders     *flakyOrders
	gateway    *fakeGateway
	events     *recordingPublisher
	saga       *sagaRecorder
	svc        *Service
	alice      session.Session
	bob        session.Session
	staff      session.Session
}

func (s *CheckoutSuite) SetupTest() {
	s.ctx = context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	s.catalog = memory.NewCatalog(
		domain.Product{ID: "serum", Name: "Vitamin C Serum", UnitPrice: decimal.RequireFromString("10.00")},
		domain.Product{ID: "cream", Name: "Night Cream", UnitPrice: decimal.RequireFromString("9.99")},
	)
	s.promotions = memory.NewPromotions(domain.Promotion{
		ID:              "spring",
		ProductIDs:      []string{"cream"},
		DiscountPercent: decimal.NewFromInt(20),
		StartDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	engine := pricing.NewEngine(s.catalog, s.promotions, pricing.WithLocation(time.UTC))
	s.carts = cart.NewService(cart.NewMemoryStore(), s.catalog, engine)
	s.orders = &flakyOrders{Orders: memory.NewOrders()}
	s.gateway = newFakeGateway()
	s.events = &recordingPublisher{}
	s.saga = &sagaRecorder{}

	ids := 0
	s.svc = NewService(s.orders, s.carts, engine, s.gateway,
		WithEventPublisher(s.events),
		WithSagaLog(s.saga),
		WithCheckoutLogReader(s.saga),
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string {
			ids++
			return "ord-" + string(rune('a'+ids-1))
		}),
	)
	s.alice = session.Customer("alice")
	s.bob = session.Customer("bob")
	s.staff = session.Staff("ops-1")
}

func (s *CheckoutSuite) fillCart(customerID string, lines map[string]int) {
	for productID, qty := range lines {
		_, err := s.carts.AddItem(s.ctx, customerID, productID, qty)
		s.Require().NoError(err)
	}
}

func (s *CheckoutSuite) checkout(lines map[string]int) *CheckoutResult {
	s.fillCart(s.alice.CustomerID, lines)
	res, err := s.svc.CreateOrder(s.ctx, s.alice, testAddress, "")
	s.Require().NoError(err)
	return res
}

func (s *CheckoutSuite) requireStatus(orderID string, want domain.OrderStatus) *domain.Order {
	o, err := s.orders.Get(s.ctx, orderID)
	s.Require().NoError(err)
	s.Require().Equal(want, o.Status)
	return o
}

func (s *CheckoutSuite) TestCreateOrderWithoutPromotion() {
	res := s.checkout(map[string]int{"serum": 2})

	o := res.Order
	s.Equal(domain.StatusPending, o.Status)
	s.True(o.TotalAmount.Equal(decimal.RequireFromString("20.00")))
	s.True(o.DiscountedTotalAmount.Equal(decimal.RequireFromString("20.00")))
	s.NotEmpty(o.PaymentReference())
	s.Equal(o.PaymentReference()+"_secret", res.ClientSecret)
	s.Equal("USD", o.Currency)
	s.Equal(1, o.Version)

	stored := s.requireStatus(o.ID, domain.StatusPending)
	s.Equal(o.PaymentReference(), stored.PaymentReference())

	history, err := s.svc.History(s.ctx, s.alice, o.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(domain.StatusPending, history[0].To)
	s.Equal(o.PaymentReference(), history[0].PaymentReference)

	s.Equal([]string{"order.created:PENDING"}, s.events.types())
	s.Equal([]sagalog.Status{
		sagalog.StatusStarted, sagalog.StatusStepDone, sagalog.StatusStepDone, sagalog.StatusCompleted,
	}, s.saga.statuses())
}

func (s *CheckoutSuite) TestCreateOrderAppliesPromotion() {
	res := s.checkout(map[string]int{"cream": 3})

	s.Require().Len(res.Order.Lines, 1)
	line := res.Order.Lines[0]
	s.Equal("spring", line.PromotionID)
	s.True(line.LineTotal.Equal(decimal.RequireFromString("29.97")))
	s.True(line.DiscountedLineTotal.Equal(decimal.RequireFromString("23.98")))
	s.True(res.Order.DiscountedTotalAmount.Equal(decimal.RequireFromString("23.98")))

	// The intent is requested for the discounted amount.
	in := s.gateway.intents[res.Order.PaymentReference()]
	s.True(in.req.Amount.Equal(decimal.RequireFromString("23.98")))
}

func (s *CheckoutSuite) TestCreateOrderClearsCart() {
	s.checkout(map[string]int{"serum": 1})

	c, err := s.carts.Load(s.ctx, s.alice.CustomerID)
	s.Require().NoError(err)
	s.True(c.Empty())
}

func (s *CheckoutSuite) TestCreateOrderPreconditions() {
	_, err := s.svc.CreateOrder(s.ctx, s.alice, testAddress, "")
	s.ErrorIs(err, domain.ErrEmptyCart)

	s.fillCart(s.alice.CustomerID, map[string]int{"serum": 1})
	_, err = s.svc.CreateOrder(s.ctx, s.alice, domain.Address{Name: "Alice"}, "")
	s.ErrorIs(err, domain.ErrMissingAddress)

	_, err = s.svc.CreateOrder(s.ctx, session.Gateway(), testAddress, "")
	s.ErrorIs(err, domain.ErrForbidden)

	orders, err := s.svc.ListOrders(s.ctx, s.alice, "")
	s.Require().NoError(err)
	s.Empty(orders)
	s.Zero(s.gateway.intentCount())
}

func (s *CheckoutSuite) TestCreateOrderGatewayFailureLeavesNoOrder() {
	s.fillCart(s.alice.CustomerID, map[string]int{"serum": 1})
	s.gateway.createErr = domain.ErrGatewayUnavailable

	_, err := s.svc.CreateOrder(s.ctx, s.alice, testAddress, "k1")
	s.ErrorIs(err, domain.ErrGatewayUnavailable)

	orders, err := s.svc.ListOrders(s.ctx, s.alice, "")
	s.Require().NoError(err)
	s.Empty(orders)

	// The cart survives, so the customer can simply retry.
	s.gateway.createErr = nil
	res, err := s.svc.CreateOrder(s.ctx, s.alice, testAddress, "k1")
	s.Require().NoError(err)
	s.NotEmpty(res.Order.PaymentReference())
}

func (s *CheckoutSuite) TestCreateOrderPersistFailureReleasesIntent() {
	s.fillCart(s.alice.CustomerID, map[string]int{"serum": 1})
	s.orders.createErr = errors.New("disk full")

	_, err := s.svc.CreateOrder(s.ctx, s.alice, testAddress, "")
	s.Require().Error(err)

	s.Equal(1, s.gateway.intentCount())
	s.True(s.gateway.isCancelled("pi_1"))
	s.Contains(s.saga.statuses(), sagalog.StatusCompensating)
	s.Equal(sagalog.StatusFailed, s.saga.statuses()[len(s.saga.statuses())-1])

	orders, err := s.svc.ListOrders(s.ctx, s.alice, "")
	s.Require().NoError(err)
	s.Empty(orders)
}

func (s *CheckoutSuite) TestCreateOrderIsIdempotentPerKey() {
	s.fillCart(s.alice.CustomerID, map[string]int{"serum": 1})

	first, err := s.svc.CreateOrder(s.ctx, s.alice, testAddress, "checkout-1")
	s.Require().NoError(err)
	again, err := s.svc.CreateOrder(s.ctx, s.alice, testAddress, "checkout-1")
	s.Require().NoError(err)

	s.Equal(first.Order.ID, again.Order.ID)
	s.Equal(first.ClientSecret, again.ClientSecret)
	s.Equal(1, s.gateway.intentCount())
}

func (s *CheckoutSuite) TestOrderIsASnapshot() {
	res := s.checkout(map[string]int{"cream": 3})

	s.catalog.Put(domain.Product{ID: "cream", Name: "Night Cream", UnitPrice: decimal.RequireFromString("99.00")})
	s.promotions.Put(domain.Promotion{
		ID: "flash", ProductIDs: []string{"cream"}, DiscountPercent: decimal.NewFromInt(90),
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	s.fillCart(s.alice.CustomerID, map[string]int{"cream": 5, "serum": 1})

	got, err := s.svc.GetOrder(s.ctx, s.alice, res.Order.ID)
	s.Require().NoError(err)
	s.Equal(res.Order.Lines, got.Lines)
	s.True(got.TotalAmount.Equal(res.Order.TotalAmount))
	s.True(got.DiscountedTotalAmount.Equal(res.Order.DiscountedTotalAmount))
}

func (s *CheckoutSuite) TestSubmitThenConfirm() {
	res := s.checkout(map[string]int{"serum": 2})
	ref := res.Order.PaymentReference()

	o, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.Require().NoError(err)
	s.Equal(domain.StatusProcessing, o.Status)

	s.gateway.settle(ref, OutcomeSucceeded)
	first, err := s.svc.ConfirmPayment(s.ctx, ref, SourceRedirect)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, first.Status)

	second, err := s.svc.ConfirmPayment(s.ctx, ref, SourceNotification)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, second.Status)
	s.True(first.DiscountedTotalAmount.Equal(second.DiscountedTotalAmount))

	history, err := s.orders.History(s.ctx, res.Order.ID)
	s.Require().NoError(err)
	s.Len(history, 3)
	s.Equal([]string{
		"order.created:PENDING", "order.status_changed:PROCESSING", "order.status_changed:COMPLETED",
	}, s.events.types())
}

func (s *CheckoutSuite) TestSubmitIsIdempotent() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()

	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.Require().NoError(err)
	o, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.Require().NoError(err)
	s.Equal(domain.StatusProcessing, o.Status)
	s.Equal(2, o.Version)
}

func (s *CheckoutSuite) TestSubmitAlreadySucceededSettles() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	s.gateway.settle(ref, OutcomeSucceeded)

	o, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, o.Status)
}

func (s *CheckoutSuite) TestSubmitDeclinedKeepsOrderPending() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	s.gateway.settle(ref, OutcomeDeclined)

	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.ErrorIs(err, domain.ErrPaymentDeclined)
	s.requireStatus(res.Order.ID, domain.StatusPending)
}

func (s *CheckoutSuite) TestSubmitGatewayDownKeepsOrderPending() {
	res := s.checkout(map[string]int{"serum": 1})
	s.gateway.confirmErr = domain.ErrGatewayUnavailable

	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, res.Order.PaymentReference())
	s.ErrorIs(err, domain.ErrGatewayUnavailable)
	s.requireStatus(res.Order.ID, domain.StatusPending)
}

func (s *CheckoutSuite) TestSubmitRejectsForeignReference() {
	res := s.checkout(map[string]int{"serum": 1})

	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, "pi_other")
	s.ErrorIs(err, domain.ErrUnknownPaymentReference)

	_, err = s.svc.SubmitPayment(s.ctx, s.bob, res.Order.ID, res.Order.PaymentReference())
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *CheckoutSuite) TestConfirmPendingOrderPassesThroughProcessing() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	s.gateway.settle(ref, OutcomeSucceeded)

	o, err := s.svc.ConfirmPayment(s.ctx, ref, SourceNotification)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, o.Status)

	history, err := s.orders.History(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal(domain.StatusProcessing, history[1].To)
	s.Equal("gateway:notification", history[2].Actor)
}

func (s *CheckoutSuite) TestConfirmDeclinedCancelsProcessingOrder() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.Require().NoError(err)

	s.gateway.settle(ref, OutcomeDeclined)
	o, err := s.svc.ConfirmPayment(s.ctx, ref, SourceRedirect)
	s.Require().NoError(err)
	s.Equal(domain.StatusCancelled, o.Status)
	s.Equal("payment declined", o.CancelReason)
}

func (s *CheckoutSuite) TestConfirmStillPendingChangesNothing() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.Require().NoError(err)

	o, err := s.svc.ConfirmPayment(s.ctx, ref, SourceRedirect)
	s.Require().NoError(err)
	s.Equal(domain.StatusProcessing, o.Status)
}

func (s *CheckoutSuite) TestConfirmUnknownReference() {
	_, err := s.svc.ConfirmPayment(s.ctx, "pi_nope", SourceRedirect)
	s.ErrorIs(err, domain.ErrUnknownPaymentReference)
}

func (s *CheckoutSuite) TestConfirmSucceededOnCancelledOrderIsRejected() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	_, err := s.svc.Cancel(s.ctx, s.alice, res.Order.ID, "changed my mind")
	s.Require().NoError(err)

	// The gateway misbehaves and reports success for the released intent.
	s.gateway.mu.Lock()
	s.gateway.intents[ref].cancelled = false
	s.gateway.intents[ref].outcome = OutcomeSucceeded
	s.gateway.mu.Unlock()

	_, err = s.svc.ConfirmPayment(s.ctx, ref, SourceNotification)
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.requireStatus(res.Order.ID, domain.StatusCancelled)
}

func (s *CheckoutSuite) TestConcurrentConfirmationsCompleteOnce() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.Require().NoError(err)
	s.gateway.settle(ref, OutcomeSucceeded)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.ConfirmPayment(s.ctx, ref, SourceNotification)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	history, err := s.orders.History(s.ctx, res.Order.ID)
	s.Require().NoError(err)
	completed := 0
	for _, t := range history {
		if t.To == domain.StatusCompleted {
			completed++
		}
	}
	s.Equal(1, completed)
}

func (s *CheckoutSuite) TestVersionConflictIsRetried() {
	res := s.checkout(map[string]int{"serum": 1})
	s.orders.conflictsAhead = 1

	o, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, res.Order.PaymentReference())
	s.Require().NoError(err)
	s.Equal(domain.StatusProcessing, o.Status)
}

func (s *CheckoutSuite) TestPayAgainSupersedesReference() {
	res := s.checkout(map[string]int{"serum": 1})
	oldRef := res.Order.PaymentReference()
	s.gateway.settle(oldRef, OutcomeDeclined)

	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, oldRef)
	s.Require().ErrorIs(err, domain.ErrPaymentDeclined)

	again, err := s.svc.PayAgain(s.ctx, s.alice, res.Order.ID)
	s.Require().NoError(err)
	newRef := again.Order.PaymentReference()
	s.NotEqual(oldRef, newRef)
	s.Equal(newRef+"_secret", again.ClientSecret)
	s.Require().Len(again.Order.Attempts, 2)
	s.NotNil(again.Order.Attempts[0].SupersededAt)
	s.Equal(2, again.Order.Attempts[1].Attempt)
	s.True(again.Order.Attempts[1].Amount.Equal(res.Order.DiscountedTotalAmount))
	s.True(s.gateway.isCancelled(oldRef))

	_, err = s.svc.ConfirmPayment(s.ctx, oldRef, SourceRedirect)
	s.ErrorIs(err, domain.ErrStalePaymentReference)

	s.gateway.settle(newRef, OutcomeSucceeded)
	o, err := s.svc.ConfirmPayment(s.ctx, newRef, SourceRedirect)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, o.Status)
}

func (s *CheckoutSuite) TestPayAgainGatewayFailureKeepsCurrentAttempt() {
	res := s.checkout(map[string]int{"serum": 1})
	s.gateway.createErr = domain.ErrGatewayUnavailable

	_, err := s.svc.PayAgain(s.ctx, s.alice, res.Order.ID)
	s.ErrorIs(err, domain.ErrGatewayUnavailable)

	o := s.requireStatus(res.Order.ID, domain.StatusPending)
	s.Equal(res.Order.PaymentReference(), o.PaymentReference())
	s.Len(o.Attempts, 1)
}

func (s *CheckoutSuite) TestPayAgainOnPaidOrderSettlesIt() {
	res := s.checkout(map[string]int{"serum": 1})
	s.gateway.settle(res.Order.PaymentReference(), OutcomeSucceeded)

	_, err := s.svc.PayAgain(s.ctx, s.alice, res.Order.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.requireStatus(res.Order.ID, domain.StatusCompleted)
	s.Equal(1, s.gateway.intentCount())
}

func (s *CheckoutSuite) TestCustomerCancelsPendingOrder() {
	res := s.checkout(map[string]int{"serum": 1})

	o, err := s.svc.Cancel(s.ctx, s.alice, res.Order.ID, "")
	s.Require().NoError(err)
	s.Equal(domain.StatusCancelled, o.Status)
	s.Equal("cancelled by customer", o.CancelReason)
	s.True(s.gateway.isCancelled(res.Order.PaymentReference()))
}

func (s *CheckoutSuite) TestCustomerCannotCancelProcessingOrder() {
	res := s.checkout(map[string]int{"serum": 1})
	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, res.Order.PaymentReference())
	s.Require().NoError(err)

	_, err = s.svc.Cancel(s.ctx, s.alice, res.Order.ID, "")
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.requireStatus(res.Order.ID, domain.StatusProcessing)
}

func (s *CheckoutSuite) TestStaffCancelProcessingOrder() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	_, err := s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.Require().NoError(err)

	_, err = s.svc.Cancel(s.ctx, s.staff, res.Order.ID, "fraud check")
	s.ErrorIs(err, domain.ErrPaymentInFlight)
	s.requireStatus(res.Order.ID, domain.StatusProcessing)

	s.gateway.settle(ref, OutcomeDeclined)
	o, err := s.svc.Cancel(s.ctx, s.staff, res.Order.ID, "fraud check")
	s.Require().NoError(err)
	s.Equal(domain.StatusCancelled, o.Status)
	s.Equal("fraud check", o.CancelReason)
}

func (s *CheckoutSuite) TestCancelPaidOrderSettlesInstead() {
	res := s.checkout(map[string]int{"serum": 1})
	s.gateway.settle(res.Order.PaymentReference(), OutcomeSucceeded)

	_, err := s.svc.Cancel(s.ctx, s.alice, res.Order.ID, "")
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.requireStatus(res.Order.ID, domain.StatusCompleted)
}

func (s *CheckoutSuite) TestTerminalOrdersOnlyMoveForward() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	s.gateway.settle(ref, OutcomeSucceeded)
	_, err := s.svc.ConfirmPayment(s.ctx, ref, SourceRedirect)
	s.Require().NoError(err)

	_, err = s.svc.Cancel(s.ctx, s.staff, res.Order.ID, "")
	s.ErrorIs(err, domain.ErrInvalidTransition)
	_, err = s.svc.PayAgain(s.ctx, s.alice, res.Order.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)

	o := s.requireStatus(res.Order.ID, domain.StatusCompleted)
	s.Equal(3, o.Version)
}

func (s *CheckoutSuite) TestSubmitOnCompletedOrderIsRejected() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	s.gateway.settle(ref, OutcomeSucceeded)
	_, err := s.svc.ConfirmPayment(s.ctx, ref, SourceRedirect)
	s.Require().NoError(err)

	_, err = s.svc.SubmitPayment(s.ctx, s.alice, res.Order.ID, ref)
	s.ErrorIs(err, domain.ErrInvalidTransition)

	o := s.requireStatus(res.Order.ID, domain.StatusCompleted)
	s.Equal(3, o.Version)
}

func (s *CheckoutSuite) TestHandleNotification() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	s.gateway.settle(ref, OutcomeSucceeded)

	s.gateway.confirmErr = domain.ErrGatewayUnavailable
	s.ErrorIs(s.svc.HandleNotification(s.ctx, "evt_1", ref), domain.ErrGatewayUnavailable)
	seen, err := s.orders.NotificationSeen(s.ctx, "evt_1")
	s.Require().NoError(err)
	s.False(seen)

	s.gateway.confirmErr = nil
	s.Require().NoError(s.svc.HandleNotification(s.ctx, "evt_1", ref))
	s.requireStatus(res.Order.ID, domain.StatusCompleted)

	confirms := s.gateway.confirms
	s.Require().NoError(s.svc.HandleNotification(s.ctx, "evt_1", ref))
	s.Equal(confirms, s.gateway.confirms)

	// Unknown references are recorded so the gateway stops redelivering.
	s.Require().NoError(s.svc.HandleNotification(s.ctx, "evt_2", "pi_unknown"))
	seen, err = s.orders.NotificationSeen(s.ctx, "evt_2")
	s.Require().NoError(err)
	s.True(seen)
}

func (s *CheckoutSuite) TestNotificationForCancelledOrderRetriesWhenGatewayIsDown() {
	res := s.checkout(map[string]int{"serum": 1})
	ref := res.Order.PaymentReference()
	_, err := s.svc.Cancel(s.ctx, s.alice, res.Order.ID, "")
	s.Require().NoError(err)

	s.gateway.confirmErr = domain.ErrGatewayUnavailable
	s.ErrorIs(s.svc.HandleNotification(s.ctx, "evt_9", ref), domain.ErrGatewayUnavailable)
	seen, err := s.orders.NotificationSeen(s.ctx, "evt_9")
	s.Require().NoError(err)
	s.False(seen)
	s.requireStatus(res.Order.ID, domain.StatusCancelled)

	s.gateway.confirmErr = nil
	s.Require().NoError(s.svc.HandleNotification(s.ctx, "evt_9", ref))
	seen, err = s.orders.NotificationSeen(s.ctx, "evt_9")
	s.Require().NoError(err)
	s.True(seen)
}

func (s *CheckoutSuite) TestCheckoutLogIsStaffOnly() {
	res := s.checkout(map[string]int{"serum": 1})

	entries, err := s.svc.CheckoutLog(s.ctx, s.staff, res.Order.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 4)
	s.Equal(sagalog.StatusStarted, entries[0].Status)
	s.Equal(sagalog.StatusCompleted, entries[3].Status)

	_, err = s.svc.CheckoutLog(s.ctx, s.alice, res.Order.ID)
	s.ErrorIs(err, domain.ErrForbidden)
	_, err = s.svc.CheckoutLog(s.ctx, s.staff, "ord-missing")
	s.ErrorIs(err, domain.ErrCheckoutLogNotFound)
}

func (s *CheckoutSuite) TestCheckoutLogOfFailedCheckout() {
	s.fillCart(s.alice.CustomerID, map[string]int{"serum": 1})
	s.orders.createErr = errors.New("disk full")
	_, err := s.svc.CreateOrder(s.ctx, s.alice, testAddress, "")
	s.Require().Error(err)

	entries, err := s.svc.CheckoutLog(s.ctx, s.staff, "ord-a")
	s.Require().NoError(err)
	s.Equal(sagalog.StatusFailed, entries[len(entries)-1].Status)

	_, err = s.svc.GetOrder(s.ctx, s.staff, "ord-a")
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *CheckoutSuite) TestOrdersAreScopedToTheirCustomer() {
	res := s.checkout(map[string]int{"serum": 1})

	_, err := s.svc.GetOrder(s.ctx, s.bob, res.Order.ID)
	s.ErrorIs(err, domain.ErrOrderNotFound)
	_, err = s.svc.History(s.ctx, s.bob, res.Order.ID)
	s.ErrorIs(err, domain.ErrOrderNotFound)
	_, err = s.svc.ListOrders(s.ctx, s.bob, "alice")
	s.ErrorIs(err, domain.ErrForbidden)
	_, err = s.svc.Cancel(s.ctx, s.bob, res.Order.ID, "")
	s.ErrorIs(err, domain.ErrOrderNotFound)

	got, err := s.svc.GetOrder(s.ctx, s.staff, res.Order.ID)
	s.Require().NoError(err)
	s.Equal(res.Order.ID, got.ID)

	orders, err := s.svc.ListOrders(s.ctx, s.staff, "alice")
	s.Require().NoError(err)
	s.Len(orders, 1)
}

func TestCheckoutSuite(t *testing.T) {
	suite.Run(t, new(CheckoutSuite))
}
