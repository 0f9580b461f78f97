package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

// CancelCommand is the unit of work for one provider cancellation: vendor
// call plus the domain updates that follow it. One implementation serves all
// providers; what differs lives in providerSpec and the injected gateway.
type CancelCommand struct {
	log           *slog.Logger
	orders        OrderStore
	cancellations CancellationStore
	vendor        VendorGateway
	spec          providerSpec
	clock         domain.Clock

	orderID     string
	productID   string
	reason      string
	source      string
	requestedBy domain.Requester

	executedAt     time.Time
	productMutated bool
}

func NewCancelCommand(log *slog.Logger, orders OrderStore, cancellations CancellationStore, vendor VendorGateway, spec providerSpec, clock domain.Clock, orderID, productID, reason, source string, requestedBy domain.Requester) *CancelCommand {
	return &CancelCommand{
		log:           log,
		orders:        orders,
		cancellations: cancellations,
		vendor:        vendor,
		spec:          spec,
		clock:         clock,
		orderID:       orderID,
		productID:     productID,
		reason:        reason,
		source:        source,
		requestedBy:   requestedBy,
	}
}

// Execute runs the cancellation end to end. The CancellationRecord is
// created in pending state before the vendor call and always left in a
// terminal state afterwards. Eligibility is re-derived here even though the
// orchestrator pre-checks it; both must agree.
func (c *CancelCommand) Execute(ctx context.Context) (domain.CancellationResult, error) {
	now := c.clock.Now()
	c.executedAt = now

	order, err := c.orders.FindByID(ctx, c.orderID)
	if err != nil {
		return domain.CancellationResult{}, fmt.Errorf("load order %s: %w", c.orderID, err)
	}
	product, ok := order.Product(c.productID)
	if !ok {
		return domain.CancellationResult{}, fmt.Errorf("product %s in order %s: %w", c.productID, c.orderID, domain.ErrProductNotFound)
	}
	if product.Provider != c.spec.provider {
		return domain.CancellationResult{}, fmt.Errorf("product %s is %s: %w", c.productID, product.Provider, domain.ErrWrongProvider)
	}

	eligibility := domain.EvaluateCancellation(product, c.clock)
	if !eligibility.CanCancel && product.Status.Terminal() {
		// Terminal products never reach the vendor and leave no record.
		if product.Status == domain.ProductCancelled {
			return domain.CancellationResult{}, fmt.Errorf("%w: %s", domain.ErrAlreadyCancelled, c.productID)
		}
		return domain.CancellationResult{}, &domain.IneligibleError{Reason: eligibility.Reason}
	}

	rec, err := c.cancellations.Create(ctx, domain.CancellationRecord{
		OrderID:        c.orderID,
		ProductID:      c.productID,
		PNR:            order.PNR,
		Provider:       c.spec.provider,
		CancellationID: domain.NewCancellationID(now),
		Status:         domain.CancellationPending,
		RequestSource:  c.source,
		RequestedBy:    c.requestedBy,
		RequestedAt:    now,
	})
	if err != nil {
		return domain.CancellationResult{}, fmt.Errorf("create cancellation record: %w", err)
	}

	quote := product.Quote(eligibility.RefundPercentage)
	resp, err := c.vendor.CancelBooking(ctx, product, quote)
	if err != nil {
		raw, _ := json.Marshal(resp)
		if uerr := c.cancellations.UpdateStatus(ctx, rec.CancellationID, domain.CancellationFailed, domain.RefundQuote{}, raw); uerr != nil {
			c.log.Error("cancellation record update failed", "cancellation_id", rec.CancellationID, "err", uerr)
		}
		return domain.CancellationResult{}, fmt.Errorf("%s vendor call: %w", c.spec.provider, err)
	}

	raw, _ := json.Marshal(resp)
	status := domain.CancellationFailed
	settled := domain.RefundQuote{}
	if resp.Success() {
		status = domain.CancellationSuccess
		settled = domain.RefundQuote{
			RefundAmount:     resp.RefundAmount,
			CancellationFee:  resp.CancellationFee,
			RefundPercentage: quote.RefundPercentage,
		}
	}
	if err := c.cancellations.UpdateStatus(ctx, rec.CancellationID, status, settled, raw); err != nil {
		return domain.CancellationResult{}, fmt.Errorf("update cancellation record %s: %w", rec.CancellationID, err)
	}

	if resp.Success() {
		c.productMutated = true
		if err := c.orders.UpdateProductStatus(ctx, c.orderID, c.productID, domain.ProductCancelled); err != nil {
			return domain.CancellationResult{}, fmt.Errorf("mark product cancelled: %w", err)
		}
		if c.spec.cancelSimStatus {
			if err := c.orders.UpdateSimStatus(ctx, c.orderID, c.productID, domain.SimCancelled); err != nil {
				return domain.CancellationResult{}, fmt.Errorf("mark sim cancelled: %w", err)
			}
		}
	}

	return domain.CancellationResult{
		Success:         resp.Success(),
		CancellationID:  rec.CancellationID,
		RefundAmount:    resp.RefundAmount,
		CancellationFee: resp.CancellationFee,
		Message:         resp.Message,
		VendorResponse:  &resp,
		ProcessedAt:     now,
	}, nil
}

// Undo is best-effort compensation for a failed Execute: it reverts the
// product to confirmed and restores the provider sub-status. It never
// returns an error and is a no-op unless Execute got as far as mutating the
// product.
func (c *CancelCommand) Undo(ctx context.Context) {
	if !c.productMutated {
		return
	}
	if err := c.orders.RevertProductStatus(ctx, c.orderID, c.productID, domain.ProductCancelled, domain.ProductConfirmed); err != nil {
		c.log.Error("undo failed to restore product status", "order_id", c.orderID, "product_id", c.productID, "err", err)
	}
	if c.spec.cancelSimStatus {
		if err := c.orders.UpdateSimStatus(ctx, c.orderID, c.productID, c.spec.restoreSimStatus); err != nil {
			c.log.Error("undo failed to restore sim status", "order_id", c.orderID, "product_id", c.productID, "err", err)
		}
	}
	c.log.Info("cancellation undone", "order_id", c.orderID, "product_id", c.productID)
}

// AuditEntry is what the invoker keeps per executed command.
type AuditEntry struct {
	OrderID     string    `json:"orderId"`
	ProductID   string    `json:"productId"`
	Reason      string    `json:"reason,omitempty"`
	ExecutedAt  time.Time `json:"executedAt"`
	CommandType string    `json:"commandType"`
	Error       string    `json:"error,omitempty"`
}

func (c *CancelCommand) auditInfo(err error) AuditEntry {
	e := AuditEntry{
		OrderID:     c.orderID,
		ProductID:   c.productID,
		Reason:      c.reason,
		ExecutedAt:  c.executedAt,
		CommandType: "cancel." + string(c.spec.provider),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Invoker executes commands, keeps an append-only audit trail, and runs
// compensation on failure. The trail is process-lifetime and cleared only
// explicitly; the durable audit sink is the outbox kept by the orchestrator.
type Invoker struct {
	log *slog.Logger

	mu    sync.Mutex
	trail []AuditEntry
}

func NewInvoker(log *slog.Logger) *Invoker {
	return &Invoker{log: log}
}

// Execute calls the command exactly once. On failure it attempts Undo at
// most once; an undo problem is logged inside Undo and never masks the
// original error.
func (inv *Invoker) Execute(ctx context.Context, cmd *CancelCommand) (domain.CancellationResult, error) {
	inv.log.Info("executing cancellation command",
		"order_id", cmd.orderID, "product_id", cmd.productID, "provider", cmd.spec.provider)

	res, err := cmd.Execute(ctx)
	inv.append(cmd.auditInfo(err))
	if err != nil {
		inv.log.Error("cancellation command failed",
			"order_id", cmd.orderID, "product_id", cmd.productID, "err", err)
		cmd.Undo(ctx)
		return domain.CancellationResult{}, err
	}
	return res, nil
}

func (inv *Invoker) append(e AuditEntry) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.trail = append(inv.trail, e)
}

func (inv *Invoker) AuditTrail() []AuditEntry {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]AuditEntry, len(inv.trail))
	copy(out, inv.trail)
	return out
}

func (inv *Invoker) ClearAuditTrail() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.trail = nil
}
