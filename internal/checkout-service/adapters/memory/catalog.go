// Package memory holds in-process catalog and promotion data, used for
// local development and tests. Data can be seeded from a YAML file.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) Put(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *Catalog) Product(_ context.Context, productID string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return p, nil
}

// Promotions indexes each promotion under every product it covers.
type Promotions struct {
	mu         sync.RWMutex
	promotions map[string][]domain.Promotion
}

func NewPromotions(promotions ...domain.Promotion) *Promotions {
	p := &Promotions{promotions: make(map[string][]domain.Promotion)}
	for _, promo := range promotions {
		p.put(promo)
	}
	return p
}

// Put stores promo, replacing any promotion with the same ID.
func (p *Promotions) Put(promo domain.Promotion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.put(promo)
}

func (p *Promotions) put(promo domain.Promotion) {
	for productID, list := range p.promotions {
		kept := slices.DeleteFunc(list, func(existing domain.Promotion) bool { return existing.ID == promo.ID })
		if len(kept) == 0 {
			delete(p.promotions, productID)
			continue
		}
		p.promotions[productID] = kept
	}
	for _, productID := range promo.ProductIDs {
		p.promotions[productID] = append(p.promotions[productID], promo)
	}
}

// ActivePromotions returns the valid promotions of a product active on day.
func (p *Promotions) ActivePromotions(_ context.Context, productID string, day time.Time) ([]domain.Promotion, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var active []domain.Promotion
	for _, promo := range p.promotions[productID] {
		if promo.Valid() && promo.ActiveOn(day) {
			active = append(active, promo)
		}
	}
	return active, nil
}
