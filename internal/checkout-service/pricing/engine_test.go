package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

type stubPromotions struct {
	byProduct map[string][]domain.Promotion
	err       error
	calls     int
}

func (s *stubPromotions) ActivePromotions(_ context.Context, productID string, _ time.Time) ([]domain.Promotion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.byProduct[productID], nil
}

type stubCatalog map[string]domain.Product

func (c stubCatalog) Product(_ context.Context, id string) (domain.Product, error) {
	p, ok := c[id]
	if !ok {
		return domain.Product{}, errors.New("catalog: product not found")
	}
	return p, nil
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPrice_NoPromotion(t *testing.T) {
	e := NewEngine(nil, &stubPromotions{})

	q, err := e.Price(context.Background(), []LineInput{
		{ProductID: "serum", UnitPrice: dec("10.00"), Quantity: 2},
	}, day("2026-03-10"))
	require.NoError(t, err)

	require.Len(t, q.Lines, 1)
	assert.True(t, q.Lines[0].LineTotal.Equal(dec("20.00")))
	assert.True(t, q.Lines[0].DiscountedLineTotal.Equal(dec("20.00")))
	assert.True(t, q.TotalAmount.Equal(dec("20.00")))
	assert.True(t, q.DiscountedTotalAmount.Equal(dec("20.00")))
	assert.Empty(t, q.Lines[0].PromotionID)
}

func TestPrice_PercentageRoundsHalfUp(t *testing.T) {
	promos := &stubPromotions{byProduct: map[string][]domain.Promotion{
		"toner": {{
			ID: "spring", ProductIDs: []string{"toner"}, DiscountPercent: dec("20"),
			StartDate: day("2026-03-01"), EndDate: day("2026-03-31"),
		}},
	}}
	e := NewEngine(nil, promos)

	q, err := e.Price(context.Background(), []LineInput{
		{ProductID: "toner", UnitPrice: dec("9.99"), Quantity: 3},
	}, day("2026-03-10"))
	require.NoError(t, err)

	line := q.Lines[0]
	assert.Equal(t, "29.97", line.LineTotal.StringFixed(2))
	assert.Equal(t, "23.98", line.DiscountedLineTotal.StringFixed(2))
	assert.Equal(t, "spring", line.PromotionID)
	assert.Equal(t, "29.97", q.TotalAmount.StringFixed(2))
	assert.Equal(t, "23.98", q.DiscountedTotalAmount.StringFixed(2))
}

func TestPrice_PromotionWindowIsInclusive(t *testing.T) {
	promo := domain.Promotion{
		ID: "weekend", ProductIDs: []string{"mask"}, DiscountPercent: dec("50"),
		StartDate: day("2026-05-02"), EndDate: day("2026-05-03"),
	}
	e := NewEngine(nil, &stubPromotions{byProduct: map[string][]domain.Promotion{"mask": {promo}}})
	in := []LineInput{{ProductID: "mask", UnitPrice: dec("4.00"), Quantity: 1}}

	tests := []struct {
		name string
		asOf time.Time
		want string
	}{
		{"day before start", day("2026-05-01"), "4.00"},
		{"start date", day("2026-05-02"), "2.00"},
		{"end date late evening", day("2026-05-03").Add(23*time.Hour + 59*time.Minute), "2.00"},
		{"day after end", day("2026-05-04"), "4.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := e.Price(context.Background(), in, tt.asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.DiscountedTotalAmount.StringFixed(2))
		})
	}
}

func TestPrice_UsesStoreLocationForCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	promo := domain.Promotion{
		ID: "eve", ProductIDs: []string{"mask"}, DiscountPercent: dec("10"),
		StartDate: day("2026-05-02"), EndDate: day("2026-05-02"),
	}
	e := NewEngine(nil, &stubPromotions{byProduct: map[string][]domain.Promotion{"mask": {promo}}}, WithLocation(loc))

	// 02:00 UTC on the 3rd is still the 2nd in the store's zone.
	q, err := e.Price(context.Background(), []LineInput{{ProductID: "mask", UnitPrice: dec("10.00"), Quantity: 1}},
		time.Date(2026, 5, 3, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "9.00", q.DiscountedTotalAmount.StringFixed(2))
	assert.Equal(t, day("2026-05-02"), q.PricedOn)
}

func TestPrice_LookupFailureDegradesToNoDiscount(t *testing.T) {
	promos := &stubPromotions{err: errors.New("promotions: connection refused")}
	e := NewEngine(nil, promos)

	q, err := e.Price(context.Background(), []LineInput{
		{ProductID: "a", UnitPrice: dec("3.50"), Quantity: 2},
		{ProductID: "b", UnitPrice: dec("1.25"), Quantity: 1},
	}, day("2026-01-01"))
	require.NoError(t, err)

	assert.Equal(t, 2, promos.calls)
	assert.Equal(t, "8.25", q.TotalAmount.StringFixed(2))
	assert.Equal(t, "8.25", q.DiscountedTotalAmount.StringFixed(2))
}

func TestPrice_RejectsNonPositiveQuantity(t *testing.T) {
	e := NewEngine(nil, nil)
	_, err := e.Price(context.Background(), []LineInput{{ProductID: "a", UnitPrice: dec("1"), Quantity: 0}}, time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestPriceCart(t *testing.T) {
	catalog := stubCatalog{
		"serum": {ID: "serum", Name: "Vitamin C Serum", UnitPrice: dec("10.00")},
	}
	e := NewEngine(catalog, &stubPromotions{})

	t.Run("resolves names and prices", func(t *testing.T) {
		cart := &domain.Cart{CustomerID: "c1", Lines: []domain.CartLine{{ProductID: "serum", Quantity: 2}}}
		q, err := e.PriceCart(context.Background(), cart, day("2026-01-01"))
		require.NoError(t, err)
		assert.Equal(t, "Vitamin C Serum", q.Lines[0].ProductName)
		assert.Equal(t, "20.00", q.TotalAmount.StringFixed(2))
	})

	t.Run("unknown product makes pricing unavailable", func(t *testing.T) {
		cart := &domain.Cart{CustomerID: "c1", Lines: []domain.CartLine{{ProductID: "ghost", Quantity: 1}}}
		_, err := e.PriceCart(context.Background(), cart, day("2026-01-01"))
		assert.ErrorIs(t, err, domain.ErrPricingUnavailable)
	})
}

func TestSelectPromotion(t *testing.T) {
	on := day("2026-06-15")
	base := domain.Promotion{ProductIDs: []string{"p"}, StartDate: day("2026-06-01"), EndDate: day("2026-06-30")}

	with := func(id, pct, start string) domain.Promotion {
		p := base
		p.ID = id
		p.DiscountPercent = dec(pct)
		if start != "" {
			p.StartDate = day(start)
		}
		return p
	}

	tests := []struct {
		name       string
		candidates []domain.Promotion
		wantID     string
		wantFound  bool
	}{
		{"none", nil, "", false},
		{"highest discount wins", []domain.Promotion{with("a", "10", ""), with("b", "25", ""), with("c", "15", "")}, "b", true},
		{"tie goes to latest start", []domain.Promotion{with("a", "10", "2026-06-01"), with("b", "10", "2026-06-10")}, "b", true},
		{"full tie goes to smallest id", []domain.Promotion{with("z", "10", ""), with("m", "10", "")}, "m", true},
		{"invalid percent ignored", []domain.Promotion{with("bad", "120", ""), with("ok", "5", "")}, "ok", true},
		{"inactive ignored", []domain.Promotion{with("future", "50", "2026-06-20")}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := SelectPromotion(tt.candidates, on)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}
