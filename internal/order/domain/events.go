package domain

// Webhook/event-stream event names. Closed set: subscriptions are validated
// against it and dispatch only matches exact names.
const (
	EventCancellationSuccess       = "cancellation.success"
	EventCancellationFailed        = "cancellation.failed"
	EventCancellationError         = "cancellation.error"
	EventCancellationBulkCompleted = "cancellation.bulk_completed"
	EventCancellationBulkError     = "cancellation.bulk_error"
	EventOrderPartnerCancelled     = "order.partner_cancelled"
	EventOrderFailed               = "order.failed"
)

func KnownEvent(name string) bool {
	switch name {
	case EventCancellationSuccess, EventCancellationFailed, EventCancellationError,
		EventCancellationBulkCompleted, EventCancellationBulkError,
		EventOrderPartnerCancelled, EventOrderFailed:
		return true
	}
	return false
}

// CancellationEvent is the payload for per-item cancellation events.
type CancellationEvent struct {
	CancellationID  string   `json:"cancellationId,omitempty"`
	OrderID         string   `json:"orderId"`
	ProductID       string   `json:"productId"`
	PNR             string   `json:"pnr"`
	Provider        Provider `json:"provider"`
	RefundAmount    float64  `json:"refundAmount"`
	CancellationFee float64  `json:"cancellationFee"`
	Message         string   `json:"message"`
	RequestedBy     string   `json:"requestedBy,omitempty"`
}

// BulkCompletedEvent summarizes a bulk run after every item was processed.
type BulkCompletedEvent struct {
	OrderID        string  `json:"orderId"`
	PNR            string  `json:"pnr"`
	TotalRequested int     `json:"totalRequested"`
	Successful     int     `json:"successful"`
	Failed         int     `json:"failed"`
	TotalRefund    float64 `json:"totalRefund"`
	TotalFees      float64 `json:"totalFees"`
}

// OrderStatusEvent reports product status changes outside the cancellation
// flow: partner manual updates and automatic pending resolution.
type OrderStatusEvent struct {
	OrderID   string        `json:"orderId"`
	PNR       string        `json:"pnr"`
	ProductID string        `json:"productId"`
	Status    ProductStatus `json:"status"`
	Source    string        `json:"source"`
}
