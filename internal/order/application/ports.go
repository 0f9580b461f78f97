package application

import (
	"context"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

type OrderStore interface {
	Create(ctx context.Context, o domain.Order) error
	FindByID(ctx context.Context, id string) (domain.Order, error)
	FindByPNR(ctx context.Context, pnr string) (domain.Order, error)
	FindByPNRAndEmail(ctx context.Context, pnr, email string) (domain.Order, error)
	FindProduct(ctx context.Context, orderID, productID string) (domain.Product, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)

	UpdateProductStatus(ctx context.Context, orderID, productID string, status domain.ProductStatus) error
	// UpdateProductStatusIf is a compare-and-set: the write only happens when
	// the stored status still equals expected. Returns false on a lost race.
	UpdateProductStatusIf(ctx context.Context, orderID, productID string, expected, next domain.ProductStatus) (bool, error)
	// RevertProductStatus is the compensation write: a compare-and-set that
	// bypasses the terminal-status guard so a failed cancellation can move the
	// product back off cancelled. Losing the swap is not an error; only Undo
	// may call this.
	RevertProductStatus(ctx context.Context, orderID, productID string, from, to domain.ProductStatus) error
	UpdateSimStatus(ctx context.Context, orderID, productID string, status domain.SimStatus) error

	ProductStatusBreakdown(ctx context.Context) (map[domain.ProductStatus]domain.ProviderBreakdown, error)
}

type CancellationStore interface {
	Create(ctx context.Context, rec domain.CancellationRecord) (domain.CancellationRecord, error)
	UpdateStatus(ctx context.Context, cancellationID string, status domain.CancellationStatus, quote domain.RefundQuote, vendorResponse []byte) error
	MarkEmailSent(ctx context.Context, cancellationID string) error
}

// VendorGateway is the provider-call abstraction. The quote carries the
// refund math already derived from the policy; gateways may still reject on
// their own state (activation, consumption) or fail transiently with a
// *domain.VendorUnavailableError.
type VendorGateway interface {
	CancelBooking(ctx context.Context, p domain.Product, quote domain.RefundQuote) (domain.VendorResponse, error)
}

// EventPublisher fans status-change events out to webhook subscribers.
type EventPublisher interface {
	Trigger(ctx context.Context, event string, data any)
}

// EventSink records every emitted event durably (outbox) so downstream
// consumers on the stream can reconcile without polling.
type EventSink interface {
	Record(ctx context.Context, eventType, aggregateID string, payload any) error
}

type Notifier interface {
	SendCancellationConfirmation(ctx context.Context, email, name string, details domain.CancellationResult) error
	SendBulkCancellationConfirmation(ctx context.Context, email, name string, summary BulkConfirmation) error
}

// BulkConfirmation is the consolidated customer notification for a bulk run.
type BulkConfirmation struct {
	OrderPNR    string
	Items       []BulkConfirmationItem
	TotalRefund float64
}

type BulkConfirmationItem struct {
	ProductTitle   string
	CancellationID string
	RefundAmount   float64
	Message        string
}
