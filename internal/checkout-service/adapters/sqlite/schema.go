// Package sqlite stores orders, their payment attempts and status history
// in SQLite.
package sqlite

// Amounts are TEXT holding decimal strings so no precision is lost.
// Timestamps are RFC3339 TEXT in UTC.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                       TEXT    PRIMARY KEY,
    customer_id              TEXT    NOT NULL,
    currency                 TEXT    NOT NULL,
    total_amount             TEXT    NOT NULL,
    discounted_total_amount  TEXT    NOT NULL,
    status                   TEXT    NOT NULL,
    delivery_name            TEXT    NOT NULL DEFAULT '',
    delivery_line1           TEXT    NOT NULL,
    delivery_line2           TEXT    NOT NULL DEFAULT '',
    delivery_city            TEXT    NOT NULL,
    delivery_postal_code     TEXT    NOT NULL DEFAULT '',
    delivery_country         TEXT    NOT NULL,
    idempotency_key          TEXT,
    request_id               TEXT    NOT NULL DEFAULT '',
    cancel_reason            TEXT    NOT NULL DEFAULT '',
    version                  INTEGER NOT NULL,
    created_at               TEXT    NOT NULL,
    updated_at               TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_idempotency
    ON orders(customer_id, idempotency_key) WHERE idempotency_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at);

CREATE TABLE IF NOT EXISTS order_lines (
    order_id               TEXT    NOT NULL REFERENCES orders(id),
    position               INTEGER NOT NULL,
    product_id             TEXT    NOT NULL,
    product_name           TEXT    NOT NULL,
    unit_price             TEXT    NOT NULL,
    quantity               INTEGER NOT NULL,
    line_total             TEXT    NOT NULL,
    promotion_id           TEXT    NOT NULL DEFAULT '',
    discount_percent       TEXT    NOT NULL,
    discounted_line_total  TEXT    NOT NULL,
    PRIMARY KEY (order_id, position)
);

CREATE TABLE IF NOT EXISTS payment_attempts (
    order_id       TEXT    NOT NULL REFERENCES orders(id),
    attempt        INTEGER NOT NULL,
    reference      TEXT    NOT NULL UNIQUE,
    client_secret  TEXT    NOT NULL DEFAULT '',
    amount         TEXT    NOT NULL,
    created_at     TEXT    NOT NULL,
    superseded_at  TEXT,
    PRIMARY KEY (order_id, attempt)
);

CREATE TABLE IF NOT EXISTS order_transitions (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id           TEXT    NOT NULL REFERENCES orders(id),
    from_status        TEXT    NOT NULL DEFAULT '',
    to_status          TEXT    NOT NULL,
    reason             TEXT    NOT NULL DEFAULT '',
    actor              TEXT    NOT NULL DEFAULT '',
    payment_reference  TEXT    NOT NULL DEFAULT '',
    trace_id           TEXT    NOT NULL DEFAULT '',
    occurred_at        TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_transitions_order ON order_transitions(order_id, id);

-- Gateway notification event ids already applied.
CREATE TABLE IF NOT EXISTS processed_notifications (
    event_id           TEXT PRIMARY KEY,
    payment_reference  TEXT NOT NULL,
    processed_at       TEXT NOT NULL
);
`
