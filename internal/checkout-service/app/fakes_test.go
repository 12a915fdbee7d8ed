package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/adapters/memory"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

type fakeIntent struct {
	req       IntentRequest
	outcome   PaymentOutcome
	cancelled bool
}

// fakeGateway is a scriptable PaymentGateway. Intents start PENDING.
type fakeGateway struct {
	mu         sync.Mutex
	seq        int
	intents    map[string]*fakeIntent
	byKey      map[string]string
	createErr  error
	confirmErr error
	cancelErr  error
	confirms   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: make(map[string]*fakeIntent), byKey: make(map[string]string)}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return Intent{}, g.createErr
	}
	key := fmt.Sprintf("%s:%d", req.OrderID, req.Attempt)
	if ref, ok := g.byKey[key]; ok {
		return Intent{Reference: ref, ClientSecret: ref + "_secret", Amount: req.Amount}, nil
	}
	g.seq++
	ref := fmt.Sprintf("pi_%d", g.seq)
	g.intents[ref] = &fakeIntent{req: req, outcome: OutcomePending}
	g.byKey[key] = ref
	return Intent{Reference: ref, ClientSecret: ref + "_secret", Amount: req.Amount}, nil
}

func (g *fakeGateway) Confirm(_ context.Context, ref string) (PaymentOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirms++
	if g.confirmErr != nil {
		return "", g.confirmErr
	}
	in, ok := g.intents[ref]
	if !ok {
		return "", fmt.Errorf("%w: intent %s not found", domain.ErrGatewayUnavailable, ref)
	}
	if in.cancelled {
		return OutcomeDeclined, nil
	}
	return in.outcome, nil
}

func (g *fakeGateway) CancelIntent(_ context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	if in, ok := g.intents[ref]; ok {
		in.cancelled = true
	}
	return nil
}

// settle sets the outcome the gateway reports for ref.
func (g *fakeGateway) settle(ref string, outcome PaymentOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[ref].outcome = outcome
}

func (g *fakeGateway) isCancelled(ref string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intents[ref].cancelled
}

func (g *fakeGateway) intentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.intents)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type+":"+string(e.Status))
	}
	return out
}

// flakyOrders wraps the in-memory repository with injectable failures.
type flakyOrders struct {
	*memory.Orders
	mu             sync.Mutex
	createErr      error
	conflictsAhead int
}

func (f *flakyOrders) Create(ctx context.Context, order *domain.Order, first domain.StatusTransition) error {
	f.mu.Lock()
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Orders.Create(ctx, order, first)
}

func (f *flakyOrders) UpdateStatus(ctx context.Context, order *domain.Order, expectedVersion int, t domain.StatusTransition) error {
	f.mu.Lock()
	if f.conflictsAhead > 0 {
		f.conflictsAhead--
		f.mu.Unlock()
		return domain.ErrVersionConflict
	}
	f.mu.Unlock()
	return f.Orders.UpdateStatus(ctx, order, expectedVersion, t)
}
