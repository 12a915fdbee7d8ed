package pricing

import (
	"time"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

// SelectPromotion picks the promotion that applies to a product on day.
// Highest discount wins; ties go to the most recent start date and then to
// the lexically smallest id, so the choice never depends on lookup order.
func SelectPromotion(candidates []domain.Promotion, day time.Time) (domain.Promotion, bool) {
	var (
		best  domain.Promotion
		found bool
	)
	for _, p := range candidates {
		if !p.Valid() || !p.ActiveOn(day) {
			continue
		}
		if !found || outranks(p, best) {
			best, found = p, true
		}
	}
	return best, found
}

func outranks(a, b domain.Promotion) bool {
	if c := a.DiscountPercent.Cmp(b.DiscountPercent); c != 0 {
		return c > 0
	}
	as, bs := domain.CalendarDate(a.StartDate), domain.CalendarDate(b.StartDate)
	if !as.Equal(bs) {
		return as.After(bs)
	}
	return a.ID < b.ID
}
