package application

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

// StatusResolver settles pending products a short while after order
// creation, standing in for the provider confirming the booking. The write
// is conditional on the status still being pending, so a manual partner
// update in the meantime wins and the resolver becomes a no-op.
type StatusResolver struct {
	log     *slog.Logger
	orders  OrderStore
	events  EventPublisher
	sink    EventSink
	base    context.Context
	delay   time.Duration
	outcome func() domain.ProductStatus
}

func NewStatusResolver(log *slog.Logger, orders OrderStore, events EventPublisher, sink EventSink, base context.Context, delay time.Duration) *StatusResolver {
	return &StatusResolver{
		log:     log,
		orders:  orders,
		events:  events,
		sink:    sink,
		base:    base,
		delay:   delay,
		outcome: randomOutcome,
	}
}

// SetOutcome swaps the resolution roll; tests inject a deterministic one.
func (r *StatusResolver) SetOutcome(f func() domain.ProductStatus) { r.outcome = f }

func randomOutcome() domain.ProductStatus {
	if rand.Float64() < 0.9 {
		return domain.ProductConfirmed
	}
	return domain.ProductFailed
}

// Watch arms the resolver for one product.
func (r *StatusResolver) Watch(orderID, pnr, productID string) {
	go func() {
		select {
		case <-r.base.Done():
			return
		case <-time.After(r.delay):
		}
		r.Resolve(r.base, orderID, pnr, productID)
	}()
}

// Resolve performs one compare-and-set attempt against pending.
func (r *StatusResolver) Resolve(ctx context.Context, orderID, pnr, productID string) {
	next := r.outcome()
	swapped, err := r.orders.UpdateProductStatusIf(ctx, orderID, productID, domain.ProductPending, next)
	if err != nil {
		r.log.Error("status resolution failed", "order_id", orderID, "product_id", productID, "err", err)
		return
	}
	if !swapped {
		// Someone settled the product first.
		r.log.Info("status already settled", "order_id", orderID, "product_id", productID)
		return
	}
	r.log.Info("product status resolved", "order_id", orderID, "product_id", productID, "status", next)

	if next == domain.ProductFailed {
		ev := domain.OrderStatusEvent{
			OrderID:   orderID,
			PNR:       pnr,
			ProductID: productID,
			Status:    next,
			Source:    "auto_resolver",
		}
		if r.events != nil {
			r.events.Trigger(ctx, domain.EventOrderFailed, ev)
		}
		if r.sink != nil {
			if err := r.sink.Record(ctx, domain.EventOrderFailed, orderID, ev); err != nil {
				r.log.Error("event sink write failed", "event", domain.EventOrderFailed, "err", err)
			}
		}
	}
}
