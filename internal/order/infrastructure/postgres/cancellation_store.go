package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

type CancellationStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewCancellationStore(log *slog.Logger, pool *pgxpool.Pool) *CancellationStore {
	return &CancellationStore{log: log, pool: pool}
}

func (s *CancellationStore) Create(ctx context.Context, rec domain.CancellationRecord) (domain.CancellationRecord, error) {
	err := s.pool.QueryRow(ctx, `INSERT INTO cancellations (order_id, product_id, pnr, provider, cancellation_id, status, refund_amount, cancellation_fee, refund_percentage, vendor_response, email_sent, request_source, requested_by, requested_role, requested_at, processed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id`,
		rec.OrderID, rec.ProductID, rec.PNR, rec.Provider, rec.CancellationID, rec.Status,
		rec.RefundAmount, rec.CancellationFee, rec.RefundPercentage, rec.VendorResponse,
		rec.EmailSent, rec.RequestSource, rec.RequestedBy.UserID, rec.RequestedBy.Role,
		rec.RequestedAt, rec.ProcessedAt).Scan(&rec.ID)
	if err != nil {
		return domain.CancellationRecord{}, err
	}
	return rec, nil
}

func (s *CancellationStore) UpdateStatus(ctx context.Context, cancellationID string, status domain.CancellationStatus, quote domain.RefundQuote, vendorResponse []byte) error {
	_, err := s.pool.Exec(ctx, `UPDATE cancellations
		SET status=$2, refund_amount=$3, cancellation_fee=$4, refund_percentage=$5, vendor_response=$6, processed_at=now()
		WHERE cancellation_id=$1`,
		cancellationID, status, quote.RefundAmount, quote.CancellationFee, quote.RefundPercentage, vendorResponse)
	return err
}

func (s *CancellationStore) MarkEmailSent(ctx context.Context, cancellationID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE cancellations SET email_sent=TRUE WHERE cancellation_id=$1`, cancellationID)
	return err
}

// ListByOrder returns the audit trail for one order, newest first.
func (s *CancellationStore) ListByOrder(ctx context.Context, orderID string) ([]domain.CancellationRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, order_id, product_id, pnr, provider, cancellation_id, status, refund_amount, cancellation_fee, refund_percentage, vendor_response, email_sent, request_source, requested_by, requested_role, requested_at, processed_at
		FROM cancellations WHERE order_id=$1 ORDER BY id DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CancellationRecord
	for rows.Next() {
		var rec domain.CancellationRecord
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.ProductID, &rec.PNR, &rec.Provider,
			&rec.CancellationID, &rec.Status, &rec.RefundAmount, &rec.CancellationFee,
			&rec.RefundPercentage, &rec.VendorResponse, &rec.EmailSent, &rec.RequestSource,
			&rec.RequestedBy.UserID, &rec.RequestedBy.Role, &rec.RequestedAt, &rec.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
