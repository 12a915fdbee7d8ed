package rediscache

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

// entry is the cached JSON form of a promotion.
type entry struct {
	ID              string          `json:"id"`
	ProductIDs      []string        `json:"product_ids"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
}

func toEntries(promotions []domain.Promotion) []entry {
	out := make([]entry, 0, len(promotions))
	for _, p := range promotions {
		out = append(out, entry{
			ID:              p.ID,
			ProductIDs:      p.ProductIDs,
			DiscountPercent: p.DiscountPercent,
			StartDate:       p.StartDate.Format(time.DateOnly),
			EndDate:         p.EndDate.Format(time.DateOnly),
		})
	}
	return out
}

func fromEntries(entries []entry) ([]domain.Promotion, error) {
	out := make([]domain.Promotion, 0, len(entries))
	for _, e := range entries {
		start, err := time.Parse(time.DateOnly, e.StartDate)
		if err != nil {
			return nil, fmt.Errorf("promotion %s start date: %w", e.ID, err)
		}
		end, err := time.Parse(time.DateOnly, e.EndDate)
		if err != nil {
			return nil, fmt.Errorf("promotion %s end date: %w", e.ID, err)
		}
		out = append(out, domain.Promotion{
			ID:              e.ID,
			ProductIDs:      e.ProductIDs,
			DiscountPercent: e.DiscountPercent,
			StartDate:       start,
			EndDate:         end,
		})
	}
	return out, nil
}
