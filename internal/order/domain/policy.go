package domain

import "sort"

// Eligibility is the outcome of a refund-policy evaluation.
type Eligibility struct {
	CanCancel        bool
	RefundPercentage int
	Reason           string
}

// Ineligibility reasons surfaced to callers. Wording is load-bearing: the
// orchestrator and the vendor gateways both key off these.
const (
	ReasonAlreadyCancelled = "product is already cancelled"
	ReasonProductFailed    = "product is in failed status and cannot be cancelled"
	ReasonProductDenied    = "product was denied and cannot be cancelled"
	ReasonNotCancellable   = "product is not cancellable under its policy"
	ReasonSimActivated     = "eSIM has already been activated and is in use"
	ReasonTransferStarted  = "transfer is already in progress or completed"
	ReasonLoungeUsed       = "lounge access has already been used or expired"
	ReasonWindowExpired    = "cancellation window has expired"
)

// RefundQuote is the money side of an eligibility decision.
type RefundQuote struct {
	RefundAmount     float64
	CancellationFee  float64
	RefundPercentage int
}

// Quote computes the refund split for a declared percentage. The percentage
// is always one of the policy's declared values, never interpolated.
func (p Product) Quote(percentage int) RefundQuote {
	refund := p.Price.Amount * float64(percentage) / 100
	return RefundQuote{
		RefundAmount:     refund,
		CancellationFee:  p.Price.Amount - refund,
		RefundPercentage: percentage,
	}
}

// EvaluateCancellation is the pure refund-policy check: product state first,
// then the policy flag, then the provider activation guard, then the refund
// windows against hours elapsed since the service reference point.
//
// Window semantics: windows sort ascending by threshold and the first one
// whose threshold covers the elapsed hours wins, so fewer elapsed hours can
// land in a lower-percentage window than more elapsed hours. The percentage
// is always one of the policy's declared values; no match, or a matched 0%,
// means the window has expired.
func EvaluateCancellation(p Product, clock Clock) Eligibility {
	switch p.Status {
	case ProductCancelled:
		return ineligible(ReasonAlreadyCancelled)
	case ProductFailed:
		return ineligible(ReasonProductFailed)
	case ProductDenied:
		return ineligible(ReasonProductDenied)
	}

	if !p.CancellationPolicy.CanCancel {
		return ineligible(ReasonNotCancellable)
	}

	if el, blocked := providerGuard(p); blocked {
		return el
	}

	elapsed := clock.Now().Sub(p.ServiceDateTime).Hours()

	windows := make([]CancellationWindow, len(p.CancellationPolicy.Windows))
	copy(windows, p.CancellationPolicy.Windows)
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].ThresholdHours < windows[j].ThresholdHours
	})

	for _, w := range windows {
		if float64(w.ThresholdHours) >= elapsed {
			if w.RefundPercentage == 0 {
				return ineligible(ReasonWindowExpired)
			}
			return Eligibility{CanCancel: true, RefundPercentage: w.RefundPercentage}
		}
	}
	return ineligible(ReasonWindowExpired)
}

// providerGuard rejects products whose sub-status says the service is
// already consumed. Unrecognized providers fall through.
func providerGuard(p Product) (Eligibility, bool) {
	switch p.Provider {
	case ProviderAiralo:
		if p.SimStatus == SimActive {
			return ineligible(ReasonSimActivated), true
		}
	case ProviderMozio:
		if p.TransferStatus == TransferInProgress || p.TransferStatus == TransferCompleted {
			return ineligible(ReasonTransferStarted), true
		}
	case ProviderDragonPass:
		if p.AccessStatus == AccessUsed || p.AccessStatus == AccessExpired {
			return ineligible(ReasonLoungeUsed), true
		}
	}
	return Eligibility{}, false
}

func ineligible(reason string) Eligibility {
	return Eligibility{CanCancel: false, Reason: reason}
}
