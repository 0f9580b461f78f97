package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type CancellationStatus string

const (
	CancellationPending CancellationStatus = "pending"
	CancellationSuccess CancellationStatus = "success"
	CancellationFailed  CancellationStatus = "failed"
	CancellationDenied  CancellationStatus = "denied"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RolePartner  Role = "partner"
)

// Requester is the already-authenticated identity behind a request.
type Requester struct {
	UserID string `json:"userId"`
	Role   Role   `json:"userRole"`
	Email  string `json:"email,omitempty"`
}

// CancellationRecord is one row of the audit trail: created in pending state
// before the vendor call, updated with the outcome after, never deleted.
type CancellationRecord struct {
	ID               int64              `json:"id"`
	OrderID          string             `json:"orderId"`
	ProductID        string             `json:"productId"`
	PNR              string             `json:"pnr"`
	Provider         Provider           `json:"provider"`
	CancellationID   string             `json:"cancellationId"`
	Status           CancellationStatus `json:"status"`
	RefundAmount     float64            `json:"refundAmount"`
	CancellationFee  float64            `json:"cancellationFee"`
	RefundPercentage int                `json:"refundPercentage"`
	VendorResponse   []byte             `json:"vendorResponse,omitempty"`
	EmailSent        bool               `json:"emailSent"`
	RequestSource    string             `json:"requestSource"`
	RequestedBy      Requester          `json:"requestedBy"`
	RequestedAt      time.Time          `json:"requestedAt"`
	ProcessedAt      *time.Time         `json:"processedAt,omitempty"`
}

// NewCancellationID generates ids of the form CXL-<unix-millis>-<random>.
func NewCancellationID(now time.Time) string {
	var b [5]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("CXL-%d-%s", now.UnixMilli(), hex.EncodeToString(b[:]))
}

// VendorResponse is the normalized shape of a provider cancellation reply.
type VendorResponse struct {
	Status          string            `json:"status"`
	CancellationID  string            `json:"cancellation_id,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	RefundAmount    float64           `json:"refund_amount,omitempty"`
	CancellationFee float64           `json:"cancellation_fee,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	RefundPolicy    string            `json:"refund_policy,omitempty"`
	EstimatedRefund string            `json:"estimated_refund_time,omitempty"`
	Message         string            `json:"message"`
	PolicyReason    string            `json:"policy_reason,omitempty"`
	RetryAfter      int               `json:"retry_after,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
}

const (
	VendorStatusSuccess = "success"
	VendorStatusError   = "error"

	VendorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	VendorCodeWindowExpired      = "CANCELLATION_WINDOW_EXPIRED"
	VendorCodeSimActivated       = "SIM_ALREADY_ACTIVATED"
	VendorCodeTransferStarted    = "TRANSFER_ALREADY_STARTED"
	VendorCodeLoungeUsed         = "LOUNGE_ACCESS_CONSUMED"
)

func (r VendorResponse) Success() bool { return r.Status == VendorStatusSuccess }

// CancellationResult is the per-item reply returned to callers.
type CancellationResult struct {
	Success         bool            `json:"success"`
	CancellationID  string          `json:"cancellationId,omitempty"`
	RefundAmount    float64         `json:"refundAmount"`
	CancellationFee float64         `json:"cancellationFee"`
	Message         string          `json:"message"`
	VendorResponse  *VendorResponse `json:"vendorResponse,omitempty"`
	ProcessedAt     time.Time       `json:"processedAt"`
}

// BulkItemResult records one product's outcome inside a bulk request.
type BulkItemResult struct {
	ProductID    string             `json:"productId"`
	ProductTitle string             `json:"productTitle,omitempty"`
	Provider     Provider           `json:"provider,omitempty"`
	Result       CancellationResult `json:"result"`
}

type ProviderBreakdown struct {
	Count       int     `json:"count"`
	TotalRefund float64 `json:"totalRefund"`
	TotalFees   float64 `json:"totalFees"`
}

type BulkSummary struct {
	TotalRefund float64                        `json:"totalRefund"`
	TotalFees   float64                        `json:"totalFees"`
	ByProvider  map[Provider]ProviderBreakdown `json:"perProviderBreakdown"`
}

type BulkCancellationResult struct {
	TotalRequested int              `json:"totalRequested"`
	Successful     int              `json:"successful"`
	Failed         int              `json:"failed"`
	Results        []BulkItemResult `json:"results"`
	Summary        BulkSummary      `json:"summary"`
}
