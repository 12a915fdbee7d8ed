// Package pricing turns cart lines into priced order lines.
//
// Every amount is rounded half-up to two decimals at the line level and
// the order aggregates are plain sums of the rounded line values, so the
// totals always reconcile with what the customer sees per line.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

const defaultLookupTimeout = 2 * time.Second

var hundred = decimal.NewFromInt(100)

// PromotionLookup returns the promotions of a product that may be active on
// day. An empty result means no promotion.
type PromotionLookup interface {
	ActivePromotions(ctx context.Context, productID string, day time.Time) ([]domain.Promotion, error)
}

// Catalog resolves the price of a product.
type Catalog interface {
	Product(ctx context.Context, productID string) (domain.Product, error)
}

// LineInput is a line to price: a product with its unit price and quantity.
type LineInput struct {
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// Quote is the result of pricing a set of lines on one calendar date.
type Quote struct {
	Lines                 []domain.OrderLine
	TotalAmount           decimal.Decimal
	DiscountedTotalAmount decimal.Decimal
	PricedOn              time.Time
}

type Engine struct {
	catalog       Catalog
	promotions    PromotionLookup
	location      *time.Location
	lookupTimeout time.Duration
}

type Option func(*Engine)

// WithLocation sets the store time zone used to decide the calendar date.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookupTimeout = d
		}
	}
}

func NewEngine(catalog Catalog, promotions PromotionLookup, opts ...Option) *Engine {
	e := &Engine{
		catalog:       catalog,
		promotions:    promotions,
		location:      time.UTC,
		lookupTimeout: defaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Round rounds an amount half-up to two decimals.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Price prices lines as of asOf. A failed promotion lookup only drops the
// discount of the affected line; it never fails the call.
func (e *Engine) Price(ctx context.Context, lines []LineInput, asOf time.Time) (Quote, error) {
	day := domain.CalendarDate(asOf.In(e.location))
	q := Quote{
		Lines:                 make([]domain.OrderLine, 0, len(lines)),
		TotalAmount:           decimal.Zero,
		DiscountedTotalAmount: decimal.Zero,
		PricedOn:              day,
	}

	for _, in := range lines {
		if in.Quantity < 1 {
			return Quote{}, fmt.Errorf("pricing %s: %w", in.ProductID, domain.ErrInvalidQuantity)
		}
		if in.UnitPrice.IsNegative() {
			return Quote{}, fmt.Errorf("pricing %s: negative unit price %s", in.ProductID, in.UnitPrice)
		}

		line := domain.OrderLine{
			ProductID:       in.ProductID,
			ProductName:     in.ProductName,
			UnitPrice:       in.UnitPrice,
			Quantity:        in.Quantity,
			LineTotal:       Round(in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))),
			DiscountPercent: decimal.Zero,
		}
		line.DiscountedLineTotal = line.LineTotal

		if promo, ok := e.lookup(ctx, in.ProductID, day); ok {
			line.PromotionID = promo.ID
			line.DiscountPercent = promo.DiscountPercent
			line.DiscountedLineTotal = ApplyDiscount(line.LineTotal, promo.DiscountPercent)
		}

		q.Lines = append(q.Lines, line)
		q.TotalAmount = q.TotalAmount.Add(line.LineTotal)
		q.DiscountedTotalAmount = q.DiscountedTotalAmount.Add(line.DiscountedLineTotal)
	}

	return q, nil
}

// PriceCart resolves unit prices from the catalog and prices the cart.
func (e *Engine) PriceCart(ctx context.Context, cart *domain.Cart, asOf time.Time) (Quote, error) {
	inputs := make([]LineInput, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		p, err := e.catalog.Product(ctx, l.ProductID)
		if err != nil {
			return Quote{}, fmt.Errorf("%w: product %s: %v", domain.ErrPricingUnavailable, l.ProductID, err)
		}
		inputs = append(inputs, LineInput{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.UnitPrice,
			Quantity:    l.Quantity,
		})
	}
	return e.Price(ctx, inputs, asOf)
}

// ApplyDiscount returns lineTotal reduced by percent, rounded half-up.
func ApplyDiscount(lineTotal, percent decimal.Decimal) decimal.Decimal {
	if percent.IsZero() {
		return lineTotal
	}
	return Round(lineTotal.Mul(hundred.Sub(percent)).Div(hundred))
}

func (e *Engine) lookup(ctx context.Context, productID string, day time.Time) (domain.Promotion, bool) {
	if e.promotions == nil {
		return domain.Promotion{}, false
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	candidates, err := e.promotions.ActivePromotions(lookupCtx, productID, day)
	if err != nil {
		slog.WarnContext(ctx, "promotion lookup failed, pricing without discount",
			"product_id", productID,
			"date", day.Format(time.DateOnly),
			"error", err,
		)
		return domain.Promotion{}, false
	}
	return SelectPromotion(candidates, day)
}
