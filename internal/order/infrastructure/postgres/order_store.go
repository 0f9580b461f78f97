package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

type OrderStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOrderStore(log *slog.Logger, pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{log: log, pool: pool}
}

func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders (id, pnr, transaction_id, customer_id, customer_email, customer_first, customer_last, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.PNR, o.TransactionID, o.CustomerID, o.Customer.Email, o.Customer.FirstName, o.Customer.LastName, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, p := range o.Products {
		batch.Queue(`INSERT INTO order_products (order_id, id, title, provider, type, price_amount, price_currency, status, cancellation_policy, service_datetime, activation_deadline, sim_status, transfer_status, access_status, activated_at, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			o.ID, p.ID, p.Title, p.Provider, p.Type, p.Price.Amount, p.Price.Currency, p.Status,
			p.CancellationPolicy, p.ServiceDateTime, p.ActivationDeadline,
			p.SimStatus, p.TransferStatus, p.AccessStatus, p.ActivatedAt, p.Metadata)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `id, pnr, transaction_id, customer_id, customer_email, customer_first, customer_last, status, created_at, updated_at`

func (s *OrderStore) FindByID(ctx context.Context, id string) (domain.Order, error) {
	return s.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (s *OrderStore) FindByPNR(ctx context.Context, pnr string) (domain.Order, error) {
	return s.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE pnr=$1`, pnr)
}

func (s *OrderStore) FindByPNRAndEmail(ctx context.Context, pnr, email string) (domain.Order, error) {
	return s.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE pnr=$1 AND lower(customer_email)=lower($2)`, pnr, email)
}

func (s *OrderStore) findOne(ctx context.Context, query string, args ...any) (domain.Order, error) {
	var o domain.Order
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&o.ID, &o.PNR, &o.TransactionID, &o.CustomerID,
		&o.Customer.Email, &o.Customer.FirstName, &o.Customer.LastName,
		&o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	if o.Products, err = s.products(ctx, o.ID); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *OrderStore) products(ctx context.Context, orderID string) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, provider, type, price_amount, price_currency, status, cancellation_policy, service_datetime, activation_deadline, sim_status, transfer_status, access_status, activated_at, metadata
		FROM order_products WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Title, &p.Provider, &p.Type,
		&p.Price.Amount, &p.Price.Currency, &p.Status,
		&p.CancellationPolicy, &p.ServiceDateTime, &p.ActivationDeadline,
		&p.SimStatus, &p.TransferStatus, &p.AccessStatus, &p.ActivatedAt, &p.Metadata)
	return p, err
}

func (s *OrderStore) FindProduct(ctx context.Context, orderID, productID string) (domain.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT id, title, provider, type, price_amount, price_currency, status, cancellation_policy, service_datetime, activation_deadline, sim_status, transfer_status, access_status, activated_at, metadata
		FROM order_products WHERE order_id=$1 AND id=$2`, orderID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, err
}

func (s *OrderStore) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.PNR, &o.TransactionID, &o.CustomerID,
			&o.Customer.Email, &o.Customer.FirstName, &o.Customer.LastName,
			&o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Products, err = s.products(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *OrderStore) UpdateProductStatus(ctx context.Context, orderID, productID string, status domain.ProductStatus) error {
	var current domain.ProductStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM order_products WHERE order_id=$1 AND id=$2`, orderID, productID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
	}

	ct, err := s.pool.Exec(ctx, `UPDATE order_products SET status=$3 WHERE order_id=$1 AND id=$2 AND status=$4`,
		orderID, productID, status, current)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// lost a race between the read and the write
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
	}
	s.touch(ctx, orderID)
	return nil
}

func (s *OrderStore) UpdateProductStatusIf(ctx context.Context, orderID, productID string, expected, next domain.ProductStatus) (bool, error) {
	ct, err := s.pool.Exec(ctx, `UPDATE order_products SET status=$3 WHERE order_id=$1 AND id=$2 AND status=$4`,
		orderID, productID, next, expected)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() > 0 {
		s.touch(ctx, orderID)
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM order_products WHERE order_id=$1 AND id=$2)`, orderID, productID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrProductNotFound
	}
	return false, nil
}

// RevertProductStatus undoes a cancellation write that should not have
// stuck. The swap deliberately skips the terminal guard; nothing else may
// move a product off a terminal status.
func (s *OrderStore) RevertProductStatus(ctx context.Context, orderID, productID string, from, to domain.ProductStatus) error {
	ct, err := s.pool.Exec(ctx, `UPDATE order_products SET status=$4 WHERE order_id=$1 AND id=$2 AND status=$3`,
		orderID, productID, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM order_products WHERE order_id=$1 AND id=$2)`, orderID, productID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		// status moved on concurrently, nothing left to compensate
		return nil
	}
	s.touch(ctx, orderID)
	return nil
}

func (s *OrderStore) UpdateSimStatus(ctx context.Context, orderID, productID string, status domain.SimStatus) error {
	ct, err := s.pool.Exec(ctx, `UPDATE order_products
		SET sim_status=$3,
		    activated_at = CASE WHEN $3 = 'active' THEN now() ELSE activated_at END
		WHERE order_id=$1 AND id=$2`,
		orderID, productID, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (s *OrderStore) ProductStatusBreakdown(ctx context.Context) (map[domain.ProductStatus]domain.ProviderBreakdown, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*), coalesce(sum(price_amount),0) FROM order_products GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.ProductStatus]domain.ProviderBreakdown{}
	for rows.Next() {
		var status domain.ProductStatus
		var bd domain.ProviderBreakdown
		if err := rows.Scan(&status, &bd.Count, &bd.TotalRefund); err != nil {
			return nil, err
		}
		out[status] = bd
	}
	return out, rows.Err()
}

// touch bumps the order's updated_at; best effort, never fails the caller.
func (s *OrderStore) touch(ctx context.Context, orderID string) {
	if _, err := s.pool.Exec(ctx, `UPDATE orders SET updated_at=now() WHERE id=$1`, orderID); err != nil {
		s.log.Warn("order touch failed", "order_id", orderID, "err", err)
	}
}
