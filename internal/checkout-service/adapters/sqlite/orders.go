package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
	"github.com/jcmexdev/storefront-checkout/internal/pkg/sqlitedb"
)

// OrderRepository is the SQLite implementation of app.OrderRepository.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository applies the schema on db. The caller owns db.
func NewOrderRepository(ctx context.Context, db *sql.DB) (*OrderRepository, error) {
	if err := sqlitedb.ApplySchema(ctx, db, schema); err != nil {
		return nil, err
	}
	return &OrderRepository{db: db}, nil
}

// Create inserts the order, its lines, its payment attempts and the first
// history row in one transaction.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order, first domain.StatusTransition) error {
	return sqlitedb.InTx(ctx, r.db, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO orders
				(id, customer_id, currency, total_amount, discounted_total_amount, status,
				 delivery_name, delivery_line1, delivery_line2, delivery_city, delivery_postal_code, delivery_country,
				 idempotency_key, request_id, cancel_reason, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		a := order.DeliveryAddress
		_, err := tx.ExecContext(ctx, q,
			order.ID, order.CustomerID, order.Currency,
			order.TotalAmount.String(), order.DiscountedTotalAmount.String(), string(order.Status),
			a.Name, a.Line1, a.Line2, a.City, a.PostalCode, a.Country,
			sqlitedb.NullableString(order.IdempotencyKey), order.RequestID, order.CancelReason, order.Version,
			sqlitedb.FormatTime(order.CreatedAt), sqlitedb.FormatTime(order.UpdatedAt),
		)
		if isDuplicateCheckout(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateCheckout, order.IdempotencyKey)
		}
		if err != nil {
			return fmt.Errorf("sqlite: insert order %s: %w", order.ID, err)
		}

		for i, l := range order.Lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_lines
					(order_id, position, product_id, product_name, unit_price, quantity,
					 line_total, promotion_id, discount_percent, discounted_line_total)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				order.ID, i, l.ProductID, l.ProductName, l.UnitPrice.String(), l.Quantity,
				l.LineTotal.String(), l.PromotionID, l.DiscountPercent.String(), l.DiscountedLineTotal.String(),
			)
			if err != nil {
				return fmt.Errorf("sqlite: insert line %d of order %s: %w", i, order.ID, err)
			}
		}
		for _, a := range order.Attempts {
			if err := insertAttempt(ctx, tx, order.ID, a); err != nil {
				return err
			}
		}
		return insertTransition(ctx, tx, first)
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.load(ctx, `WHERE id = ?`, id)
}

func (r *OrderRepository) FindByPaymentReference(ctx context.Context, ref string) (*domain.Order, error) {
	return r.load(ctx, `WHERE id = (SELECT order_id FROM payment_attempts WHERE reference = ?)`, ref)
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.Order, error) {
	return r.load(ctx, `WHERE customer_id = ? AND idempotency_key = ?`, customerID, key)
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM orders WHERE customer_id = ? ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders of %s: %w", customerID, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: list orders of %s: %w", customerID, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// History returns the order's transitions, oldest first.
func (r *OrderRepository) History(ctx context.Context, orderID string) ([]domain.StatusTransition, error) {
	if _, err := r.Get(ctx, orderID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, from_status, to_status, reason, actor, payment_reference, trace_id, occurred_at
		FROM   order_transitions
		WHERE  order_id = ?
		ORDER  BY id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history of %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []domain.StatusTransition
	for rows.Next() {
		var t domain.StatusTransition
		var occurredAt string
		if err := rows.Scan(&t.OrderID, &t.From, &t.To, &t.Reason, &t.Actor, &t.PaymentReference, &t.TraceID, &occurredAt); err != nil {
			return nil, fmt.Errorf("sqlite: history of %s: %w", orderID, err)
		}
		if t.OccurredAt, err = sqlitedb.ParseTime(occurredAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, order *domain.Order, expectedVersion int, t domain.StatusTransition) error {
	return sqlitedb.InTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET    status = ?, cancel_reason = ?, version = ?, updated_at = ?
			WHERE  id = ? AND version = ?`,
			string(order.Status), order.CancelReason, order.Version, sqlitedb.FormatTime(order.UpdatedAt),
			order.ID, expectedVersion,
		)
		if err := checkUpdated(ctx, tx, res, err, order.ID, expectedVersion); err != nil {
			return err
		}
		return insertTransition(ctx, tx, t)
	})
}

func (r *OrderRepository) AddAttempt(ctx context.Context, order *domain.Order, expectedVersion int, attempt domain.PaymentAttempt) error {
	return sqlitedb.InTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET version = ?, updated_at = ? WHERE id = ? AND version = ?`,
			order.Version, sqlitedb.FormatTime(order.UpdatedAt), order.ID, expectedVersion,
		)
		if err := checkUpdated(ctx, tx, res, err, order.ID, expectedVersion); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE payment_attempts SET superseded_at = ?
			WHERE  order_id = ? AND superseded_at IS NULL`,
			sqlitedb.FormatTime(attempt.CreatedAt), order.ID,
		); err != nil {
			return fmt.Errorf("sqlite: supersede attempts of %s: %w", order.ID, err)
		}
		return insertAttempt(ctx, tx, order.ID, attempt)
	})
}

func (r *OrderRepository) NotificationSeen(ctx context.Context, eventID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_notifications WHERE event_id = ?`, eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: notification %s: %w", eventID, err)
	}
	return n > 0, nil
}

func (r *OrderRepository) RecordNotification(ctx context.Context, eventID, paymentReference string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_notifications (event_id, payment_reference, processed_at)
		VALUES (?, ?, ?)`, eventID, paymentReference, sqlitedb.FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("sqlite: record notification %s: %w", eventID, err)
	}
	return nil
}

func (r *OrderRepository) load(ctx context.Context, where string, args ...any) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, currency, total_amount, discounted_total_amount, status,
		       delivery_name, delivery_line1, delivery_line2, delivery_city, delivery_postal_code, delivery_country,
		       COALESCE(idempotency_key, ''), request_id, cancel_reason, version, created_at, updated_at
		FROM   orders `+where, args...)

	var (
		o                    domain.Order
		a                    = &o.DeliveryAddress
		createdAt, updatedAt string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Currency, &o.TotalAmount, &o.DiscountedTotalAmount, &o.Status,
		&a.Name, &a.Line1, &a.Line2, &a.City, &a.PostalCode, &a.Country,
		&o.IdempotencyKey, &o.RequestID, &o.CancelReason, &o.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", domain.ErrOrderNotFound, args)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load order: %w", err)
	}
	if o.CreatedAt, err = sqlitedb.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = sqlitedb.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if o.Lines, err = r.lines(ctx, o.ID); err != nil {
		return nil, err
	}
	if o.Attempts, err = r.attempts(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) lines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, unit_price, quantity, line_total,
		       promotion_id, discount_percent, discounted_line_total
		FROM   order_lines
		WHERE  order_id = ?
		ORDER  BY position ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: lines of %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.UnitPrice, &l.Quantity, &l.LineTotal,
			&l.PromotionID, &l.DiscountPercent, &l.DiscountedLineTotal); err != nil {
			return nil, fmt.Errorf("sqlite: lines of %s: %w", orderID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *OrderRepository) attempts(ctx context.Context, orderID string) ([]domain.PaymentAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT attempt, reference, client_secret, amount, created_at, COALESCE(superseded_at, '')
		FROM   payment_attempts
		WHERE  order_id = ?
		ORDER  BY attempt ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: attempts of %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []domain.PaymentAttempt
	for rows.Next() {
		var a domain.PaymentAttempt
		var createdAt, supersededAt string
		if err := rows.Scan(&a.Attempt, &a.Reference, &a.ClientSecret, &a.Amount, &createdAt, &supersededAt); err != nil {
			return nil, fmt.Errorf("sqlite: attempts of %s: %w", orderID, err)
		}
		if a.CreatedAt, err = sqlitedb.ParseTime(createdAt); err != nil {
			return nil, err
		}
		if supersededAt != "" {
			t, err := sqlitedb.ParseTime(supersededAt)
			if err != nil {
				return nil, err
			}
			a.SupersededAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertAttempt(ctx context.Context, tx *sql.Tx, orderID string, a domain.PaymentAttempt) error {
	var superseded any
	if a.SupersededAt != nil {
		superseded = sqlitedb.FormatTime(*a.SupersededAt)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payment_attempts
			(order_id, attempt, reference, client_secret, amount, created_at, superseded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		orderID, a.Attempt, a.Reference, a.ClientSecret, a.Amount.String(), sqlitedb.FormatTime(a.CreatedAt), superseded,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert attempt %d of %s: %w", a.Attempt, orderID, err)
	}
	return nil
}

func insertTransition(ctx context.Context, tx *sql.Tx, t domain.StatusTransition) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_transitions
			(order_id, from_status, to_status, reason, actor, payment_reference, trace_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrderID, string(t.From), string(t.To), t.Reason, t.Actor, t.PaymentReference, t.TraceID,
		sqlitedb.FormatTime(t.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert transition of %s: %w", t.OrderID, err)
	}
	return nil
}

// checkUpdated turns a compare-and-set UPDATE that touched no row into
// ErrOrderNotFound or ErrVersionConflict.
func checkUpdated(ctx context.Context, tx *sql.Tx, res sql.Result, err error, orderID string, expected int) error {
	if err != nil {
		return fmt.Errorf("sqlite: update order %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update order %s: %w", orderID, err)
	}
	if n == 1 {
		return nil
	}
	var current int
	err = tx.QueryRowContext(ctx, `SELECT version FROM orders WHERE id = ?`, orderID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: read version of %s: %w", orderID, err)
	}
	return fmt.Errorf("%w: order %s is at version %d, expected %d",
		domain.ErrVersionConflict, orderID, current, expected)
}

func isDuplicateCheckout(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(se.Error(), "orders.idempotency_key")
}
