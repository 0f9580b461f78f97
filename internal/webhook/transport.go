package webhook

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Transport delivers a signed envelope to a subscriber endpoint. Injected so
// tests can assert on deliveries; production would POST to sub.URL with the
// signature in a header.
type Transport interface {
	Deliver(ctx context.Context, url string, payload []byte, signature string) error
}

var ErrDeliveryFailed = errors.New("webhook delivery failed")

// SimulatedTransport stands in for the real HTTP hop: a short delay and a
// roughly 10% failure rate.
type SimulatedTransport struct {
	Latency     time.Duration
	FailureRate float64
	Rand        func() float64
}

func NewSimulatedTransport() *SimulatedTransport {
	return &SimulatedTransport{
		Latency:     100 * time.Millisecond,
		FailureRate: 0.1,
		Rand:        rand.Float64,
	}
}

func (t *SimulatedTransport) Deliver(ctx context.Context, url string, payload []byte, signature string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.Latency):
	}
	if t.Rand() < t.FailureRate {
		return ErrDeliveryFailed
	}
	return nil
}
