package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcube/ancillary-orders/internal/order/domain"
	orderpg "github.com/arcube/ancillary-orders/internal/order/infrastructure/postgres"
	"github.com/arcube/ancillary-orders/internal/webhook"
)

func TestPostgresStores(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	defer env.Teardown(ctx)

	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, orderpg.Migrate(ctx, pool))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orders := orderpg.NewOrderStore(log, pool)
	cancellations := orderpg.NewCancellationStore(log, pool)
	webhooks := orderpg.NewWebhookStore(log, pool)
	sink := orderpg.NewOutboxStore(log, pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	order, err := domain.NewOrder("ord-1", "ARC123", "tx-1", "cust-1",
		domain.Customer{Email: "kim@example.com", FirstName: "Kim", LastName: "Lee"},
		[]domain.Product{{
			ID: "p-esim", Title: "Japan eSIM", Provider: domain.ProviderAiralo, Type: "esim",
			Price:  domain.Price{Amount: 20, Currency: "USD"},
			Status: domain.ProductConfirmed,
			CancellationPolicy: domain.CancellationPolicy{
				CanCancel: true,
				Windows:   []domain.CancellationWindow{{ThresholdHours: 24, RefundPercentage: 75}},
			},
			ServiceDateTime: now.Add(-10 * time.Hour),
			SimStatus:       domain.SimReadyForActivation,
			Metadata:        map[string]string{"packageId": "pkg-1"},
		}},
		now)
	require.NoError(t, err)
	require.NoError(t, orders.Create(ctx, order))

	t.Run("order round trip", func(t *testing.T) {
		got, err := orders.FindByPNR(ctx, "ARC123")
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
		require.Len(t, got.Products, 1)
		assert.Equal(t, 20.0, got.Products[0].Price.Amount)
		assert.True(t, got.Products[0].CancellationPolicy.CanCancel)
		assert.Equal(t, "pkg-1", got.Products[0].Metadata["packageId"])

		_, err = orders.FindByPNR(ctx, "NOPE")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)

		_, err = orders.FindByPNRAndEmail(ctx, "ARC123", "KIM@EXAMPLE.COM")
		assert.NoError(t, err)
	})

	t.Run("compare and set guards races", func(t *testing.T) {
		swapped, err := orders.UpdateProductStatusIf(ctx, order.ID, "p-esim", domain.ProductPending, domain.ProductConfirmed)
		require.NoError(t, err)
		assert.False(t, swapped)

		swapped, err = orders.UpdateProductStatusIf(ctx, order.ID, "p-esim", domain.ProductConfirmed, domain.ProductCancelled)
		require.NoError(t, err)
		assert.True(t, swapped)

		err = orders.UpdateProductStatus(ctx, order.ID, "p-esim", domain.ProductConfirmed)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("compensation write reverts a stuck cancellation", func(t *testing.T) {
		require.NoError(t, orders.RevertProductStatus(ctx, order.ID, "p-esim", domain.ProductCancelled, domain.ProductConfirmed))
		p, err := orders.FindProduct(ctx, order.ID, "p-esim")
		require.NoError(t, err)
		assert.Equal(t, domain.ProductConfirmed, p.Status)

		// no-op when the status moved on in the meantime
		require.NoError(t, orders.RevertProductStatus(ctx, order.ID, "p-esim", domain.ProductCancelled, domain.ProductConfirmed))
		assert.ErrorIs(t, orders.RevertProductStatus(ctx, order.ID, "missing", domain.ProductCancelled, domain.ProductConfirmed), domain.ErrProductNotFound)
	})

	t.Run("cancellation record lifecycle", func(t *testing.T) {
		rec, err := cancellations.Create(ctx, domain.CancellationRecord{
			OrderID:        order.ID,
			ProductID:      "p-esim",
			PNR:            order.PNR,
			Provider:       domain.ProviderAiralo,
			CancellationID: domain.NewCancellationID(now),
			Status:         domain.CancellationPending,
			RequestSource:  "api",
			RequestedBy:    domain.Requester{UserID: "adm-1", Role: domain.RoleAdmin},
			RequestedAt:    now,
		})
		require.NoError(t, err)
		assert.NotZero(t, rec.ID)

		require.NoError(t, cancellations.UpdateStatus(ctx, rec.CancellationID, domain.CancellationSuccess,
			domain.RefundQuote{RefundAmount: 15, CancellationFee: 5, RefundPercentage: 75}, []byte(`{"status":"success"}`)))
		require.NoError(t, cancellations.MarkEmailSent(ctx, rec.CancellationID))

		trail, err := cancellations.ListByOrder(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, trail, 1)
		assert.Equal(t, domain.CancellationSuccess, trail[0].Status)
		assert.Equal(t, 15.0, trail[0].RefundAmount)
		assert.True(t, trail[0].EmailSent)
	})

	t.Run("webhook subscriptions", func(t *testing.T) {
		sub, err := webhook.NewSubscription("https://partner.example.com/hooks",
			[]string{domain.EventCancellationSuccess}, "adm-1", now)
		require.NoError(t, err)
		require.NoError(t, webhooks.Create(ctx, sub))

		active, err := webhooks.ActiveForEvent(ctx, domain.EventCancellationSuccess)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, sub.Secret, active[0].Secret)

		require.NoError(t, webhooks.Deactivate(ctx, sub.ID))
		active, err = webhooks.ActiveForEvent(ctx, domain.EventCancellationSuccess)
		require.NoError(t, err)
		assert.Empty(t, active)

		assert.ErrorIs(t, webhooks.Deactivate(ctx, "missing"), domain.ErrWebhookNotFound)
	})

	t.Run("outbox records and drains", func(t *testing.T) {
		require.NoError(t, sink.Record(ctx, domain.EventCancellationSuccess, order.ID,
			map[string]string{"pnr": order.PNR}))

		events, err := sink.LockBatch(ctx, "relay-test", 10, 5*time.Second)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventCancellationSuccess, events[0].Type)

		require.NoError(t, sink.MarkSent(ctx, []int64{events[0].ID}))
		events, err = sink.LockBatch(ctx, "relay-test", 10, 5*time.Second)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
