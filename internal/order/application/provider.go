package application

import "github.com/arcube/ancillary-orders/internal/order/domain"

// providerSpec captures what actually differs between the three providers'
// cancellation flows, so one command implementation serves all of them.
type providerSpec struct {
	provider domain.Provider

	// Sub-status handling on the product after a successful vendor call and
	// on compensation. Only airalo mirrors cancellation into its sub-status.
	cancelSimStatus  bool
	restoreSimStatus domain.SimStatus
}

var providerSpecs = map[domain.Provider]providerSpec{
	domain.ProviderAiralo: {
		provider:         domain.ProviderAiralo,
		cancelSimStatus:  true,
		restoreSimStatus: domain.SimReadyForActivation,
	},
	domain.ProviderMozio: {
		provider: domain.ProviderMozio,
	},
	domain.ProviderDragonPass: {
		provider: domain.ProviderDragonPass,
	},
}

func specFor(p domain.Provider) (providerSpec, bool) {
	s, ok := providerSpecs[p]
	return s, ok
}
