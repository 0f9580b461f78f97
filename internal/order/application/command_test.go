package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

func newCommand(f *fixture, provider domain.Provider, orderID, productID string) *CancelCommand {
	spec, _ := specFor(provider)
	var gateway VendorGateway
	switch provider {
	case domain.ProviderAiralo:
		gateway = f.airalo
	case domain.ProviderMozio:
		gateway = f.mozio
	default:
		gateway = f.dragon
	}
	clock := domain.FixedClock{FixedTime: testNow}
	return NewCancelCommand(testLogger(), f.orders, f.cancellations, gateway, spec, clock,
		orderID, productID, "test", "api", adminReq())
}

func TestCommandExecuteLeavesTerminalRecord(t *testing.T) {
	f := newFixture(t)
	cmd := newCommand(f, domain.ProviderMozio, "ord-1", "p-transfer")

	res, err := f.invoker.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, res.Success)

	recs := f.cancellations.all()
	require.Len(t, recs, 1)
	assert.NotEqual(t, domain.CancellationPending, recs[0].Status)
	assert.NotEmpty(t, recs[0].VendorResponse)
}

func TestCommandWrongProvider(t *testing.T) {
	f := newFixture(t)
	cmd := newCommand(f, domain.ProviderAiralo, "ord-1", "p-transfer")

	_, err := f.invoker.Execute(context.Background(), cmd)
	assert.ErrorIs(t, err, domain.ErrWrongProvider)
	assert.Empty(t, f.cancellations.all())
}

func TestCommandOrderNotFound(t *testing.T) {
	f := newFixture(t)
	cmd := newCommand(f, domain.ProviderMozio, "ghost", "p-transfer")

	_, err := f.invoker.Execute(context.Background(), cmd)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCommandAlreadyCancelled(t *testing.T) {
	o := testOrder()
	o.Products[1].Status = domain.ProductCancelled
	f := newFixture(t, o)
	cmd := newCommand(f, domain.ProviderMozio, "ord-1", "p-transfer")

	_, err := f.invoker.Execute(context.Background(), cmd)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	assert.Empty(t, f.cancellations.all())
	// The re-check agrees with the orchestrator pre-check: the product was
	// never touched.
	assert.Equal(t, domain.ProductCancelled, f.orders.mustProduct("ord-1", "p-transfer").Status)
}

func TestInvokerUndoRevertsPartialWrite(t *testing.T) {
	f := newFixture(t)
	// The airalo flow cancels the product, then fails on the sim update.
	f.orders.failSimUpdate = true
	cmd := newCommand(f, domain.ProviderAiralo, "ord-1", "p-esim")

	_, err := f.invoker.Execute(context.Background(), cmd)
	require.Error(t, err)

	// Compensation restored the product.
	assert.Equal(t, domain.ProductConfirmed, f.orders.mustProduct("ord-1", "p-esim").Status)

	trail := f.invoker.AuditTrail()
	require.Len(t, trail, 1)
	assert.Equal(t, "cancel.airalo", trail[0].CommandType)
	assert.NotEmpty(t, trail[0].Error)
}

func TestInvokerAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.invoker.Execute(ctx, newCommand(f, domain.ProviderMozio, "ord-1", "p-transfer"))
	require.NoError(t, err)
	_, err = f.invoker.Execute(ctx, newCommand(f, domain.ProviderDragonPass, "ord-1", "p-lounge"))
	require.NoError(t, err)

	trail := f.invoker.AuditTrail()
	require.Len(t, trail, 2)
	assert.Equal(t, "cancel.mozio", trail[0].CommandType)
	assert.Equal(t, "ord-1", trail[0].OrderID)
	assert.Equal(t, testNow, trail[0].ExecutedAt)
	assert.Empty(t, trail[0].Error)

	f.invoker.ClearAuditTrail()
	assert.Empty(t, f.invoker.AuditTrail())
}

func TestCommandVendorUnavailableKeepsProductUntouched(t *testing.T) {
	f := newFixture(t)
	f.mozio.Reply = func(p domain.Product, q domain.RefundQuote) (domain.VendorResponse, error) {
		return domain.VendorResponse{}, &domain.VendorUnavailableError{
			Provider: domain.ProviderMozio, RetryAfter: 15 * time.Minute,
		}
	}
	cmd := newCommand(f, domain.ProviderMozio, "ord-1", "p-transfer")

	_, err := f.invoker.Execute(context.Background(), cmd)
	require.Error(t, err)

	var verr *domain.VendorUnavailableError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 15*time.Minute, verr.RetryAfter)

	recs := f.cancellations.all()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CancellationFailed, recs[0].Status)
	assert.Equal(t, domain.ProductConfirmed, f.orders.mustProduct("ord-1", "p-transfer").Status)
}
