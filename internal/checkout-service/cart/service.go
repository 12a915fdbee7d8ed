package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/pricing"
)

// View is a cart as the customer sees it: the stored lines, priced today.
type View struct {
	CustomerID string
	Quote      pricing.Quote
}

type Service struct {
	store   Store
	catalog pricing.Catalog
	pricer  *pricing.Engine
	now     func() time.Time
}

func NewService(store Store, catalog pricing.Catalog, pricer *pricing.Engine) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		pricer:  pricer,
		now:     time.Now,
	}
}

// View loads and prices the customer's cart.
func (s *Service) View(ctx context.Context, customerID string) (*View, error) {
	c, err := s.store.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	q, err := s.pricer.PriceCart(ctx, c, s.now())
	if err != nil {
		return nil, err
	}
	return &View{CustomerID: customerID, Quote: q}, nil
}

// Load returns the raw stored cart.
func (s *Service) Load(ctx context.Context, customerID string) (*domain.Cart, error) {
	return s.store.Load(ctx, customerID)
}

func (s *Service) AddItem(ctx context.Context, customerID, productID string, quantity int) (*View, error) {
	if err := s.ensureProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, customerID, func(c *domain.Cart) error {
		return c.Add(productID, quantity)
	})
}

// SetQuantity replaces a line's quantity; zero removes the line.
func (s *Service) SetQuantity(ctx context.Context, customerID, productID string, quantity int) (*View, error) {
	if quantity > 0 {
		if err := s.ensureProduct(ctx, productID); err != nil {
			return nil, err
		}
	}
	return s.mutate(ctx, customerID, func(c *domain.Cart) error {
		return c.SetQuantity(productID, quantity)
	})
}

// DecrementItem removes one unit of a product.
func (s *Service) DecrementItem(ctx context.Context, customerID, productID string) (*View, error) {
	return s.mutate(ctx, customerID, func(c *domain.Cart) error {
		return c.Decrement(productID)
	})
}

func (s *Service) RemoveLine(ctx context.Context, customerID, productID string) (*View, error) {
	return s.mutate(ctx, customerID, func(c *domain.Cart) error {
		return c.Remove(productID)
	})
}

func (s *Service) Clear(ctx context.Context, customerID string) error {
	return s.store.Clear(ctx, customerID)
}

// mutate applies fn through the store and returns the cart reloaded from it.
func (s *Service) mutate(ctx context.Context, customerID string, fn MutateFunc) (*View, error) {
	if err := s.store.Update(ctx, customerID, fn); err != nil {
		return nil, err
	}
	return s.View(ctx, customerID)
}

func (s *Service) ensureProduct(ctx context.Context, productID string) error {
	if _, err := s.catalog.Product(ctx, productID); err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return err
		}
		return fmt.Errorf("%w: product %s: %v", domain.ErrPricingUnavailable, productID, err)
	}
	return nil
}
