package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductStatusTerminal(t *testing.T) {
	for _, s := range []ProductStatus{ProductCancelled, ProductFailed, ProductDenied} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
		assert.False(t, s.CanTransitionTo(ProductConfirmed), "%s must not transition out", s)
	}
	for _, s := range []ProductStatus{ProductPending, ProductSuccess, ProductConfirmed} {
		assert.False(t, s.Terminal())
		assert.True(t, s.CanTransitionTo(ProductCancelled))
	}
}

func TestNewOrderValidation(t *testing.T) {
	now := time.Now().UTC()
	cust := Customer{Email: "jo@example.com", FirstName: "Jo", LastName: "Mensah"}
	valid := Product{ID: "p1", Title: "eSIM 5GB", Provider: ProviderAiralo, Price: Price{Amount: 20, Currency: "USD"}, ServiceDateTime: now}

	_, err := NewOrder("o1", "", "tx1", "c1", cust, []Product{valid}, now)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = NewOrder("o1", "PNR123", "tx1", "c1", cust, nil, now)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	dup := valid
	_, err = NewOrder("o1", "PNR123", "tx1", "c1", cust, []Product{valid, dup}, now)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	bad := valid
	bad.ID = "p2"
	bad.Price.Amount = -5
	_, err = NewOrder("o1", "PNR123", "tx1", "c1", cust, []Product{bad}, now)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	o, err := NewOrder("o1", "PNR123", "tx1", "c1", cust, []Product{valid}, now)
	require.NoError(t, err)
	assert.Equal(t, "PNR123", o.PNR)
	got, ok := o.Product("p1")
	require.True(t, ok)
	assert.Equal(t, ProductPending, got.Status)
	assert.Equal(t, SimReadyForActivation, got.SimStatus)
}

func TestNewCancellationID(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	id := NewCancellationID(now)
	require.True(t, strings.HasPrefix(id, "CXL-"), id)
	assert.Len(t, strings.Split(id, "-"), 3)
	assert.NotEqual(t, id, NewCancellationID(now))
}
