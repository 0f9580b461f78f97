package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcube/ancillary-orders/internal/order/domain"
	"github.com/arcube/ancillary-orders/internal/webhook"
)

type WebhookStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewWebhookStore(log *slog.Logger, pool *pgxpool.Pool) *WebhookStore {
	return &WebhookStore{log: log, pool: pool}
}

func (s *WebhookStore) Create(ctx context.Context, sub webhook.Subscription) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO webhooks (id, url, events, is_active, secret, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sub.ID, sub.URL, sub.Events, sub.Active, sub.Secret, sub.CreatedBy, sub.CreatedAt)
	return err
}

func (s *WebhookStore) ActiveForEvent(ctx context.Context, event string) ([]webhook.Subscription, error) {
	return s.list(ctx, `SELECT id, url, events, is_active, secret, created_by, created_at
		FROM webhooks WHERE is_active AND $1 = ANY(events)`, event)
}

func (s *WebhookStore) List(ctx context.Context) ([]webhook.Subscription, error) {
	return s.list(ctx, `SELECT id, url, events, is_active, secret, created_by, created_at FROM webhooks ORDER BY created_at`)
}

func (s *WebhookStore) list(ctx context.Context, query string, args ...any) ([]webhook.Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []webhook.Subscription
	for rows.Next() {
		var sub webhook.Subscription
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Events, &sub.Active, &sub.Secret, &sub.CreatedBy, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *WebhookStore) Deactivate(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE webhooks SET is_active=FALSE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}
