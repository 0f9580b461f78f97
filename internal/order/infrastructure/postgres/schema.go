package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id             TEXT PRIMARY KEY,
		pnr            TEXT NOT NULL UNIQUE,
		transaction_id TEXT NOT NULL,
		customer_id    TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_first TEXT NOT NULL DEFAULT '',
		customer_last  TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_products (
		order_id            TEXT NOT NULL REFERENCES orders(id),
		id                  TEXT NOT NULL,
		title               TEXT NOT NULL,
		provider            TEXT NOT NULL,
		type                TEXT NOT NULL,
		price_amount        NUMERIC(12,2) NOT NULL,
		price_currency      TEXT NOT NULL,
		status              TEXT NOT NULL,
		cancellation_policy JSONB NOT NULL,
		service_datetime    TIMESTAMPTZ NOT NULL,
		activation_deadline TIMESTAMPTZ,
		sim_status          TEXT NOT NULL DEFAULT '',
		transfer_status     TEXT NOT NULL DEFAULT '',
		access_status       TEXT NOT NULL DEFAULT '',
		activated_at        TIMESTAMPTZ,
		metadata            JSONB,
		PRIMARY KEY (order_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id)`,
	`CREATE TABLE IF NOT EXISTS cancellations (
		id                BIGSERIAL PRIMARY KEY,
		order_id          TEXT NOT NULL,
		product_id        TEXT NOT NULL,
		pnr               TEXT NOT NULL,
		provider          TEXT NOT NULL,
		cancellation_id   TEXT NOT NULL UNIQUE,
		status            TEXT NOT NULL,
		refund_amount     NUMERIC(12,2) NOT NULL DEFAULT 0,
		cancellation_fee  NUMERIC(12,2) NOT NULL DEFAULT 0,
		refund_percentage INT NOT NULL DEFAULT 0,
		vendor_response   JSONB,
		email_sent        BOOLEAN NOT NULL DEFAULT FALSE,
		request_source    TEXT NOT NULL,
		requested_by      TEXT NOT NULL,
		requested_role    TEXT NOT NULL,
		requested_at      TIMESTAMPTZ NOT NULL,
		processed_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cancellations_order ON cancellations (order_id)`,
	`CREATE TABLE IF NOT EXISTS webhooks (
		id         TEXT PRIMARY KEY,
		url        TEXT NOT NULL,
		events     TEXT[] NOT NULL,
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		secret     TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id             BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		type           TEXT NOT NULL,
		payload        JSONB NOT NULL,
		headers        JSONB,
		traceparent    TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'pending',
		relay_id       TEXT,
		lease_until    TIMESTAMPTZ,
		retry_count    INT NOT NULL DEFAULT 0,
		last_error     TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (id) WHERE status = 'pending'`,
}

// Migrate applies the schema. Statements are idempotent so it is safe to run
// on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
