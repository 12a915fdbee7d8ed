// Package rediscache puts a read-through cache in front of promotion
// lookups so every cart view does not hit the promotion store.
package rediscache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/pricing"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/cache"
)

const DefaultTTL = 5 * time.Minute

var _ pricing.PromotionLookup = (*Promotions)(nil)

// Promotions caches ActivePromotions per product and calendar day. Cache
// failures are logged and fall through to the wrapped lookup.
type Promotions struct {
	next  pricing.PromotionLookup
	cache cache.Cache
	ttl   time.Duration
}

func NewPromotions(next pricing.PromotionLookup, c cache.Cache, ttl time.Duration) *Promotions {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Promotions{next: next, cache: c, ttl: ttl}
}

func (p *Promotions) ActivePromotions(ctx context.Context, productID string, day time.Time) ([]domain.Promotion, error) {
	key := p.cache.GenerateKey("promotions", productID+":"+domain.CalendarDate(day).Format(time.DateOnly))

	if cached, ok := p.lookup(ctx, key); ok {
		return cached, nil
	}

	promotions, err := p.next.ActivePromotions(ctx, productID, day)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(toEntries(promotions))
	if err == nil {
		err = p.cache.Set(ctx, key, string(b), p.ttl)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to cache promotions", "key", key, "error", err)
	}
	return promotions, nil
}

func (p *Promotions) lookup(ctx context.Context, key string) ([]domain.Promotion, bool) {
	raw, err := p.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "promotion cache unavailable", "key", key, "error", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var entries []entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		slog.WarnContext(ctx, "discarding corrupt promotion cache entry", "key", key, "error", err)
		return nil, false
	}
	promotions, err := fromEntries(entries)
	if err != nil {
		slog.WarnContext(ctx, "discarding corrupt promotion cache entry", "key", key, "error", err)
		return nil, false
	}
	return promotions, true
}
