package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

// Subscription is a registered endpoint with an event filter and a signing
// secret. Deactivation is a soft-disable: rows are never deleted.
type Subscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Active    bool      `json:"isActive"`
	Secret    string    `json:"-"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewSubscription validates the event set and mints an id and secret.
func NewSubscription(url string, events []string, createdBy string, now time.Time) (Subscription, error) {
	if url == "" {
		return Subscription{}, fmt.Errorf("webhook url required")
	}
	if len(events) == 0 {
		return Subscription{}, fmt.Errorf("at least one event required")
	}
	for _, e := range events {
		if !domain.KnownEvent(e) {
			return Subscription{}, fmt.Errorf("unknown event %q", e)
		}
	}
	return Subscription{
		ID:        uuid.NewString(),
		URL:       url,
		Events:    events,
		Active:    true,
		Secret:    newSecret(),
		CreatedBy: createdBy,
		CreatedAt: now,
	}, nil
}

func (s Subscription) Subscribed(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

func newSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
