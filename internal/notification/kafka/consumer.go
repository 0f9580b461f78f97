package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcube/ancillary-orders/internal/order/domain"
	"github.com/arcube/ancillary-orders/internal/webhook"
	"github.com/arcube/ancillary-orders/pkg/idempotency"
	"github.com/arcube/ancillary-orders/pkg/tracing"
)

// Consumer reads the order event stream and mails the admin inbox for every
// settled cancellation. It is the durable counterpart of the dispatcher's
// inline email fallback: the outbox guarantees no terminal event is missed.
type Consumer struct {
	log        *slog.Logger
	reader     *kafka.Reader
	mailer     webhook.AdminMailer
	idem       *idempotency.Store
	adminEmail string
	tracer     trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, mailer webhook.AdminMailer, idem *idempotency.Store, adminEmail string) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:        log,
		reader:     r,
		mailer:     mailer,
		idem:       idem,
		adminEmail: adminEmail,
		tracer:     otel.Tracer("notification-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			continue
		}
		if seen {
			c.log.Info("duplicate message skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, "ConsumeCancellationEvent")
		c.handle(msgCtx, headerValue(msg.Headers, "event_type"), msg.Value)
		span.End()
		_ = c.reader.CommitMessages(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, eventType string, payload []byte) {
	if !strings.Contains(eventType, "success") && !strings.Contains(eventType, "failed") {
		return
	}

	details := map[string]any{"status": eventType}
	var ev domain.CancellationEvent
	if err := json.Unmarshal(payload, &ev); err == nil {
		details["cancellationId"] = ev.CancellationID
		details["orderId"] = ev.OrderID
		details["productId"] = ev.ProductID
		details["refundAmount"] = ev.RefundAmount
		details["message"] = ev.Message
	}

	if err := c.mailer.SendAdminNotification(ctx, c.adminEmail, details); err != nil {
		c.log.Error("admin notification failed", "event", eventType, "err", err)
		return
	}
	c.log.Info("admin notified", "event", eventType)
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
