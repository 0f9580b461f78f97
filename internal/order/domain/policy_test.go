package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var standardWindows = []CancellationWindow{
	{ThresholdHours: 72, RefundPercentage: 100, Description: "full refund"},
	{ThresholdHours: 24, RefundPercentage: 75, Description: "partial refund"},
	{ThresholdHours: 0, RefundPercentage: 0, Description: "no refund"},
}

func transferProduct(elapsed time.Duration, ref time.Time) Product {
	return Product{
		ID:       "prd-1",
		Title:    "Airport transfer",
		Provider: ProviderMozio,
		Price:    Price{Amount: 85, Currency: "USD"},
		Status:   ProductConfirmed,
		CancellationPolicy: CancellationPolicy{
			Windows:         standardWindows,
			CanCancel:       true,
			CancelCondition: "only_if_not_consumed",
		},
		ServiceDateTime: ref.Add(-elapsed),
		TransferStatus:  TransferConfirmed,
	}
}

func TestEvaluateCancellation_MatchesWindowByElapsedHours(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := FixedClock{FixedTime: now}

	p := transferProduct(10*time.Hour, now)
	el := EvaluateCancellation(p, clock)

	require.True(t, el.CanCancel)
	assert.Equal(t, 75, el.RefundPercentage)

	q := p.Quote(el.RefundPercentage)
	assert.InDelta(t, 63.75, q.RefundAmount, 1e-9)
	assert.InDelta(t, 21.25, q.CancellationFee, 1e-9)
	assert.Equal(t, 75, q.RefundPercentage)
}

func TestEvaluateCancellation_PercentageAlwaysDeclared(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := FixedClock{FixedTime: now}
	declared := map[int]bool{100: true, 75: true, 0: true}

	for _, elapsed := range []time.Duration{
		time.Minute, 5 * time.Hour, 23 * time.Hour, 25 * time.Hour,
		48 * time.Hour, 71 * time.Hour, 73 * time.Hour, 200 * time.Hour,
	} {
		el := EvaluateCancellation(transferProduct(elapsed, now), clock)
		if el.CanCancel {
			assert.True(t, declared[el.RefundPercentage],
				"elapsed %s produced undeclared percentage %d", elapsed, el.RefundPercentage)
		}
	}
}

func TestEvaluateCancellation_WindowExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := FixedClock{FixedTime: now}

	// Past the largest window: no match.
	el := EvaluateCancellation(transferProduct(100*time.Hour, now), clock)
	require.False(t, el.CanCancel)
	assert.Equal(t, ReasonWindowExpired, el.Reason)

	// Matching a declared zero-percent window is equally a rejection.
	p := transferProduct(time.Hour, now)
	p.CancellationPolicy.Windows = []CancellationWindow{
		{ThresholdHours: 24, RefundPercentage: 0, Description: "no refund"},
	}
	el = EvaluateCancellation(p, clock)
	require.False(t, el.CanCancel)
	assert.Equal(t, ReasonWindowExpired, el.Reason)
}

func TestEvaluateCancellation_TerminalStatuses(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := FixedClock{FixedTime: now}

	cases := []struct {
		status ProductStatus
		reason string
	}{
		{ProductCancelled, ReasonAlreadyCancelled},
		{ProductFailed, ReasonProductFailed},
		{ProductDenied, ReasonProductDenied},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			p := transferProduct(10*time.Hour, now)
			p.Status = tc.status
			el := EvaluateCancellation(p, clock)
			require.False(t, el.CanCancel)
			assert.Equal(t, tc.reason, el.Reason)
		})
	}
}

func TestEvaluateCancellation_PolicyFlag(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p := transferProduct(10*time.Hour, now)
	p.CancellationPolicy.CanCancel = false

	el := EvaluateCancellation(p, FixedClock{FixedTime: now})
	require.False(t, el.CanCancel)
	assert.Equal(t, ReasonNotCancellable, el.Reason)
}

func TestEvaluateCancellation_ProviderGuards(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := FixedClock{FixedTime: now}

	esim := transferProduct(10*time.Hour, now)
	esim.Provider = ProviderAiralo
	esim.TransferStatus = ""
	esim.SimStatus = SimActive
	el := EvaluateCancellation(esim, clock)
	require.False(t, el.CanCancel)
	assert.Contains(t, el.Reason, "activated")

	transfer := transferProduct(10*time.Hour, now)
	transfer.TransferStatus = TransferInProgress
	el = EvaluateCancellation(transfer, clock)
	require.False(t, el.CanCancel)
	assert.Equal(t, ReasonTransferStarted, el.Reason)

	lounge := transferProduct(10*time.Hour, now)
	lounge.Provider = ProviderDragonPass
	lounge.TransferStatus = ""
	lounge.AccessStatus = AccessUsed
	el = EvaluateCancellation(lounge, clock)
	require.False(t, el.CanCancel)
	assert.Equal(t, ReasonLoungeUsed, el.Reason)

	// Unrecognized provider falls through to the window check.
	other := transferProduct(10*time.Hour, now)
	other.Provider = Provider("acme")
	el = EvaluateCancellation(other, clock)
	assert.True(t, el.CanCancel)
}
