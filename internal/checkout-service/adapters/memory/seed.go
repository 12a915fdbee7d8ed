package memory

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

// Seed is the on-disk shape of a catalog seed file:
//
//	products:
//	  - id: serum
//	    name: Vitamin C Serum
//	    unit_price: 10.00
//	promotions:
//	  - id: spring
//	    product_ids: [serum, cream]
//	    discount_percent: 20
//	    start_date: 2026-03-01
//	    end_date: 2026-03-31
type Seed struct {
	Products   []domain.Product   `yaml:"products"`
	Promotions []domain.Promotion `yaml:"promotions"`
}

func DecodeSeed(r io.Reader) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("memory: decode seed: %w", err)
	}
	for _, p := range s.Products {
		if p.ID == "" || p.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("memory: invalid product %q", p.ID)
		}
	}
	return &s, nil
}

// LoadSeedFile builds a catalog and a promotion store from a YAML file.
func LoadSeedFile(path string) (*Catalog, *Promotions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("memory: open seed %q: %w", path, err)
	}
	defer f.Close()

	s, err := DecodeSeed(f)
	if err != nil {
		return nil, nil, err
	}
	valid, rejected := s.ValidPromotions()
	if len(rejected) > 0 {
		slog.Warn("ignoring malformed promotions in seed", "path", path, "promotion_ids", rejected)
	}
	return NewCatalog(s.Products...), NewPromotions(valid...), nil
}

// ValidPromotions filters out malformed promotions, including those that
// cover no product, and reports their ids.
func (s *Seed) ValidPromotions() (valid []domain.Promotion, rejected []string) {
	for _, p := range s.Promotions {
		if p.Valid() && len(p.ProductIDs) > 0 {
			valid = append(valid, p)
		} else {
			rejected = append(rejected, p.ID)
		}
	}
	return valid, rejected
}
