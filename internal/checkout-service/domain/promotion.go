package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Promotion is a percentage discount on a set of products, active on every
// calendar day from StartDate to EndDate inclusive.
type Promotion struct {
	ID              string          `yaml:"id"`
	ProductIDs      []string        `yaml:"product_ids"`
	DiscountPercent decimal.Decimal `yaml:"discount_percent"`
	StartDate       time.Time       `yaml:"start_date"`
	EndDate         time.Time       `yaml:"end_date"`
}

// Valid reports whether the promotion is well formed. Invalid promotions
// are never applied.
func (p Promotion) Valid() bool {
	if p.DiscountPercent.IsNegative() || p.DiscountPercent.GreaterThan(hundred) {
		return false
	}
	return !CalendarDate(p.EndDate).Before(CalendarDate(p.StartDate))
}

// ActiveOn reports whether day falls in the promotion's inclusive window.
func (p Promotion) ActiveOn(day time.Time) bool {
	d := CalendarDate(day)
	return !d.Before(CalendarDate(p.StartDate)) && !d.After(CalendarDate(p.EndDate))
}

// CalendarDate drops the clock part of t, keeping the date as seen in t's
// own location, and returns it as midnight UTC.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Product is the catalog data pricing needs.
type Product struct {
	ID        string          `yaml:"id"`
	Name      string          `yaml:"name"`
	UnitPrice decimal.Decimal `yaml:"unit_price"`
	ImageURL  string          `yaml:"image_url"`
}
