// Package postgres reads the catalog and promotions from PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/pricing"
)

var (
	_ pricing.Catalog         = (*Store)(nil)
	_ pricing.PromotionLookup = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(255) PRIMARY KEY,
			name TEXT NOT NULL,
			unit_price NUMERIC(12, 2) NOT NULL CHECK (unit_price >= 0),
			image_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS promotions (
			id VARCHAR(255) PRIMARY KEY,
			discount_percent NUMERIC(5, 2) NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS promotion_products (
			promotion_id VARCHAR(255) NOT NULL REFERENCES promotions(id) ON DELETE CASCADE,
			product_id VARCHAR(255) NOT NULL,
			PRIMARY KEY (promotion_id, product_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_promotion_products_product ON promotion_products(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_promotions_dates ON promotions(start_date, end_date)`,
		// Databases created with a single product column per promotion.
		`DO $$
		BEGIN
			IF EXISTS (SELECT 1 FROM information_schema.columns
			           WHERE table_name = 'promotions' AND column_name = 'product_id') THEN
				INSERT INTO promotion_products (promotion_id, product_id)
				SELECT id, product_id FROM promotions
				ON CONFLICT DO NOTHING;
				ALTER TABLE promotions DROP COLUMN product_id;
			END IF;
		END $$`,
	}

	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Product(ctx context.Context, productID string) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, unit_price::text, image_url FROM products WHERE id = $1`, productID,
	).Scan(&p.ID, &p.Name, &price, &p.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to get product %s: %w", productID, err)
	}
	if p.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return domain.Product{}, fmt.Errorf("product %s has invalid price %q: %w", productID, price, err)
	}
	return p, nil
}

// ActivePromotions returns the promotions covering productID whose window
// covers day, each with its full product set. Rows that are not valid
// promotions are skipped with a warning.
func (s *Store) ActivePromotions(ctx context.Context, productID string, day time.Time) ([]domain.Promotion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, array_agg(covered.product_id ORDER BY covered.product_id),
		       p.discount_percent::text, p.start_date, p.end_date
		FROM promotions p
		JOIN promotion_products target ON target.promotion_id = p.id AND target.product_id = $1
		JOIN promotion_products covered ON covered.promotion_id = p.id
		WHERE p.start_date <= $2::date AND p.end_date >= $2::date
		GROUP BY p.id
		ORDER BY p.id`,
		productID, domain.CalendarDate(day).Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions for %s: %w", productID, err)
	}
	defer rows.Close()

	var active []domain.Promotion
	for rows.Next() {
		var (
			p       domain.Promotion
			percent string
		)
		if err := rows.Scan(&p.ID, &p.ProductIDs, &percent, &p.StartDate, &p.EndDate); err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		if p.DiscountPercent, err = decimal.NewFromString(percent); err != nil || !p.Valid() {
			slog.WarnContext(ctx, "ignoring invalid promotion", "promotion_id", p.ID, "product_id", productID)
			continue
		}
		active = append(active, p)
	}
	return active, rows.Err()
}

// UpsertProduct inserts or replaces a catalog product.
func (s *Store) UpsertProduct(ctx context.Context, p domain.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, name, unit_price, image_url)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, unit_price = EXCLUDED.unit_price, image_url = EXCLUDED.image_url`,
		p.ID, p.Name, p.UnitPrice.StringFixed(2), p.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

// UpsertPromotion inserts or replaces a promotion together with the set of
// products it covers.
func (s *Store) UpsertPromotion(ctx context.Context, p domain.Promotion) error {
	if len(p.ProductIDs) == 0 {
		return fmt.Errorf("promotion %s covers no products", p.ID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO promotions (id, discount_percent, start_date, end_date)
		VALUES ($1, $2::numeric, $3::date, $4::date)
		ON CONFLICT (id) DO UPDATE
		SET discount_percent = EXCLUDED.discount_percent,
		    start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date`,
		p.ID, p.DiscountPercent.String(),
		p.StartDate.Format(time.DateOnly), p.EndDate.Format(time.DateOnly))
	if err != nil {
		return fmt.Errorf("failed to upsert promotion %s: %w", p.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM promotion_products WHERE promotion_id = $1`, p.ID); err != nil {
		return fmt.Errorf("failed to clear products of promotion %s: %w", p.ID, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO promotion_products (promotion_id, product_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING`,
		p.ID, p.ProductIDs)
	if err != nil {
		return fmt.Errorf("failed to link products of promotion %s: %w", p.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit promotion %s: %w", p.ID, err)
	}
	return nil
}
