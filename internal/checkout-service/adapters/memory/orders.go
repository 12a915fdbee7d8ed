package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

// Orders is an in-process order repository with the same version and
// uniqueness checks as the SQLite one. Snapshots are copied in and out.
type Orders struct {
	mu            sync.Mutex
	orders        map[string]*domain.Order
	history       map[string][]domain.StatusTransition
	byKey         map[string]string
	notifications map[string]string
}

func NewOrders() *Orders {
	return &Orders{
		orders:        make(map[string]*domain.Order),
		history:       make(map[string][]domain.StatusTransition),
		byKey:         make(map[string]string),
		notifications: make(map[string]string),
	}
}

func idempotencyIndex(customerID, key string) string {
	return customerID + "\x00" + key
}

func (r *Orders) Create(_ context.Context, order *domain.Order, first domain.StatusTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("memory: order %s already exists", order.ID)
	}
	if order.IdempotencyKey != "" {
		idx := idempotencyIndex(order.CustomerID, order.IdempotencyKey)
		if _, ok := r.byKey[idx]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateCheckout, order.IdempotencyKey)
		}
		r.byKey[idx] = order.ID
	}
	r.orders[order.ID] = order.Clone()
	r.history[order.ID] = []domain.StatusTransition{first}
	return nil
}

func (r *Orders) Get(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

func (r *Orders) FindByPaymentReference(_ context.Context, ref string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.HasReference(ref) {
			return o.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: payment reference %s", domain.ErrOrderNotFound, ref)
}

func (r *Orders) FindByIdempotencyKey(_ context.Context, customerID, key string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[idempotencyIndex(customerID, key)]
	if !ok {
		return nil, fmt.Errorf("%w: idempotency key %s", domain.ErrOrderNotFound, key)
	}
	return r.orders[id].Clone(), nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *Orders) ListByCustomer(_ context.Context, customerID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (r *Orders) History(_ context.Context, orderID string) ([]domain.StatusTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	return slices.Clone(r.history[orderID]), nil
}

func (r *Orders) UpdateStatus(_ context.Context, order *domain.Order, expectedVersion int, t domain.StatusTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, err := r.checkVersion(order.ID, expectedVersion)
	if err != nil {
		return err
	}
	stored.Status = order.Status
	stored.CancelReason = order.CancelReason
	stored.Version = order.Version
	stored.UpdatedAt = order.UpdatedAt
	r.history[order.ID] = append(r.history[order.ID], t)
	return nil
}

func (r *Orders) AddAttempt(_ context.Context, order *domain.Order, expectedVersion int, attempt domain.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, err := r.checkVersion(order.ID, expectedVersion)
	if err != nil {
		return err
	}
	for i := range stored.Attempts {
		if stored.Attempts[i].SupersededAt == nil {
			at := attempt.CreatedAt
			stored.Attempts[i].SupersededAt = &at
		}
	}
	stored.Attempts = append(stored.Attempts, attempt)
	stored.Version = order.Version
	stored.UpdatedAt = order.UpdatedAt
	return nil
}

func (r *Orders) NotificationSeen(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.notifications[eventID]
	return ok, nil
}

func (r *Orders) RecordNotification(_ context.Context, eventID, paymentReference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notifications[eventID]; !ok {
		r.notifications[eventID] = paymentReference
	}
	return nil
}

// checkVersion returns the stored order if its version matches. Caller holds mu.
func (r *Orders) checkVersion(id string, expected int) (*domain.Order, error) {
	stored, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if stored.Version != expected {
		return nil, fmt.Errorf("%w: order %s is at version %d, expected %d",
			domain.ErrVersionConflict, id, stored.Version, expected)
	}
	return stored, nil
}
