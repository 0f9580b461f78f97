package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcube/ancillary-orders/internal/notification"
	notifkafka "github.com/arcube/ancillary-orders/internal/notification/kafka"
	"github.com/arcube/ancillary-orders/pkg/idempotency"
	"github.com/arcube/ancillary-orders/pkg/logging"
	"github.com/arcube/ancillary-orders/pkg/shutdown"
	"github.com/arcube/ancillary-orders/pkg/tracing"
)

func main() {
	log := logging.New()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	redisAddr := env("REDIS_ADDR", "localhost:6379")
	kafkaBrokers := []string{env("KAFKA_ADDR", "localhost:9092")}
	otlpURL := env("OTLP_ENDPOINT", "http://localhost:4318")
	eventTopic := env("OUTBOX_TOPIC", "ancillary.order.events")
	group := env("CONSUMER_GROUP", "notification-service")
	adminEmail := env("ADMIN_EMAIL", "ops@arcube.example.com")

	tp, err := tracing.Init(ctx, "notification-service", otlpURL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(ctx) }()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, 24*time.Hour)

	mailer := notification.NewMailer(log, notification.LogSender{Log: log}, "noreply@arcube.example.com")
	consumer := notifkafka.NewConsumer(log, kafkaBrokers, eventTopic, group, mailer, idem, adminEmail)

	log.Info("notification-service consuming", "topic", eventTopic, "group", group)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("notification-service shutdown complete")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
