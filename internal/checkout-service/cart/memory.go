package cart

import (
	"context"
	"slices"
	"sync"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps carts in process memory. Each customer has its own
// lock so unrelated customers never wait on each other.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]domain.CartLine
	locks map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts: make(map[string][]domain.CartLine),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) customerLock(customerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[customerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[customerID] = l
	}
	return l
}

func (s *MemoryStore) Load(_ context.Context, customerID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.Cart{CustomerID: customerID, Lines: slices.Clone(s.carts[customerID])}, nil
}

func (s *MemoryStore) Update(ctx context.Context, customerID string, fn MutateFunc) error {
	l := s.customerLock(customerID)
	l.Lock()
	defer l.Unlock()

	c, err := s.Load(ctx, customerID)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	c.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Empty() {
		delete(s.carts, customerID)
		return nil
	}
	s.carts[customerID] = c.Lines
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, customerID string) error {
	return s.Update(ctx, customerID, func(c *domain.Cart) error {
		c.Lines = nil
		return nil
	})
}
