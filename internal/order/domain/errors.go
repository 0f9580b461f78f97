package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidOrder        = errors.New("invalid order")
	ErrOrderNotFound       = errors.New("order not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrWrongProvider       = errors.New("product provider does not match command provider")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrAlreadyCancelled    = errors.New("product already cancelled")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrWebhookNotFound     = errors.New("webhook not found")
)

// IneligibleError carries the user-facing reason a cancellation was refused
// by business rules. Not retryable.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("cancellation not allowed: %s", e.Reason)
}

// VendorUnavailableError marks a transient provider outage. Safe for the
// caller to retry after the hint.
type VendorUnavailableError struct {
	Provider   Provider
	RetryAfter time.Duration
}

func (e *VendorUnavailableError) Error() string {
	return fmt.Sprintf("%s vendor service temporarily unavailable, retry after %s", e.Provider, e.RetryAfter)
}
