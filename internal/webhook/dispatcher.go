package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

// SubscriptionStore is the persistence surface the dispatcher needs.
type SubscriptionStore interface {
	ActiveForEvent(ctx context.Context, event string) ([]Subscription, error)
	Create(ctx context.Context, sub Subscription) error
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context) ([]Subscription, error)
}

// AdminMailer is the best-effort email fallback for critical events.
type AdminMailer interface {
	SendAdminNotification(ctx context.Context, email string, details map[string]any) error
}

// Envelope is the serialized delivery body; the signature is computed over
// its exact JSON encoding.
type Envelope struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	WebhookID string    `json:"webhookId"`
}

type Dispatcher struct {
	log        *slog.Logger
	store      SubscriptionStore
	transport  Transport
	mailer     AdminMailer
	adminEmail string
	clock      domain.Clock
}

func NewDispatcher(log *slog.Logger, store SubscriptionStore, transport Transport, mailer AdminMailer, adminEmail string, clock domain.Clock) *Dispatcher {
	return &Dispatcher{
		log:        log,
		store:      store,
		transport:  transport,
		mailer:     mailer,
		adminEmail: adminEmail,
		clock:      clock,
	}
}

// Trigger fans the event out to every active subscription. Delivery is
// at-least-once and independent per subscriber: one failure never blocks the
// rest, it is logged and dropped.
func (d *Dispatcher) Trigger(ctx context.Context, event string, data any) {
	subs, err := d.store.ActiveForEvent(ctx, event)
	if err != nil {
		d.log.Error("webhook lookup failed", "event", event, "err", err)
		subs = nil
	}

	for _, sub := range subs {
		if err := d.deliver(ctx, sub, event, data); err != nil {
			d.log.Error("webhook delivery failed", "event", event, "webhook_id", sub.ID, "url", sub.URL, "err", err)
			continue
		}
		d.log.Info("webhook delivered", "event", event, "webhook_id", sub.ID)
	}

	if strings.Contains(event, "success") || strings.Contains(event, "failed") {
		d.notifyAdmin(ctx, event, data)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub Subscription, event string, data any) error {
	payload, err := json.Marshal(Envelope{
		Event:     event,
		Data:      data,
		Timestamp: d.clock.Now(),
		WebhookID: sub.ID,
	})
	if err != nil {
		return err
	}
	return d.transport.Deliver(ctx, sub.URL, payload, Sign(payload, sub.Secret))
}

// notifyAdmin sends the email summary regardless of webhook delivery
// outcome. Failures are logged only.
func (d *Dispatcher) notifyAdmin(ctx context.Context, event string, data any) {
	if d.mailer == nil || d.adminEmail == "" {
		return
	}
	details := map[string]any{"status": event}
	if ev, ok := data.(domain.CancellationEvent); ok {
		details["cancellationId"] = ev.CancellationID
		details["orderId"] = ev.OrderID
		details["productId"] = ev.ProductID
		details["refundAmount"] = ev.RefundAmount
		details["message"] = ev.Message
	}
	if err := d.mailer.SendAdminNotification(ctx, d.adminEmail, details); err != nil {
		d.log.Error("admin email fallback failed", "event", event, "err", err)
	}
}
