package domain

import (
	"fmt"
	"strings"
	"time"
)

type Provider string

const (
	ProviderAiralo     Provider = "airalo"
	ProviderMozio      Provider = "mozio"
	ProviderDragonPass Provider = "dragonpass"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderAiralo, ProviderMozio, ProviderDragonPass:
		return true
	}
	return false
}

type ProductStatus string

const (
	ProductPending   ProductStatus = "pending"
	ProductSuccess   ProductStatus = "success"
	ProductFailed    ProductStatus = "failed"
	ProductDenied    ProductStatus = "denied"
	ProductConfirmed ProductStatus = "confirmed"
	ProductCancelled ProductStatus = "cancelled"
)

// Terminal reports whether the status is one-way: no transition leaves it.
func (s ProductStatus) Terminal() bool {
	switch s {
	case ProductCancelled, ProductFailed, ProductDenied:
		return true
	}
	return false
}

func (s ProductStatus) CanTransitionTo(next ProductStatus) bool {
	if s.Terminal() {
		return false
	}
	return next != s
}

// SimStatus tracks eSIM activation for airalo products.
type SimStatus string

const (
	SimReadyForActivation SimStatus = "ready_for_activation"
	SimActive             SimStatus = "active"
	SimCancelled          SimStatus = "cancelled"
)

// TransferStatus tracks ride progress for mozio products.
type TransferStatus string

const (
	TransferConfirmed  TransferStatus = "confirmed"
	TransferInProgress TransferStatus = "in_progress"
	TransferCompleted  TransferStatus = "completed"
	TransferCancelled  TransferStatus = "cancelled"
)

// AccessStatus tracks lounge usage for dragonpass products.
type AccessStatus string

const (
	AccessConfirmed AccessStatus = "confirmed"
	AccessUsed      AccessStatus = "used"
	AccessExpired   AccessStatus = "expired"
	AccessCancelled AccessStatus = "cancelled"
)

type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type CancellationWindow struct {
	ThresholdHours   int    `json:"thresholdHours"`
	RefundPercentage int    `json:"refundPercentage"`
	Description      string `json:"description"`
}

type CancellationPolicy struct {
	Windows         []CancellationWindow `json:"windows"`
	CanCancel       bool                 `json:"canCancel"`
	CancelCondition string               `json:"cancelCondition,omitempty"`
}

// Product is one purchased unit from one provider. Exactly one of the
// provider sub-status fields is populated, selected by Provider.
type Product struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title"`
	Provider           Provider           `json:"provider"`
	Type               string             `json:"type"`
	Price              Price              `json:"price"`
	Status             ProductStatus      `json:"status"`
	CancellationPolicy CancellationPolicy `json:"cancellationPolicy"`
	ServiceDateTime    time.Time          `json:"serviceDateTime"`
	ActivationDeadline *time.Time         `json:"activationDeadline,omitempty"`

	SimStatus      SimStatus      `json:"simStatus,omitempty"`
	TransferStatus TransferStatus `json:"transferStatus,omitempty"`
	AccessStatus   AccessStatus   `json:"accessStatus,omitempty"`

	ActivatedAt *time.Time        `json:"activatedAt,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Order struct {
	ID            string    `json:"id"`
	PNR           string    `json:"pnr"`
	TransactionID string    `json:"transactionId"`
	CustomerID    string    `json:"customerId"`
	Customer      Customer  `json:"customer"`
	Products      []Product `json:"products"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewOrder validates and assembles an order. PNR is immutable after this point.
func NewOrder(id, pnr, transactionID, customerID string, customer Customer, products []Product, now time.Time) (Order, error) {
	if pnr == "" {
		return Order{}, fmt.Errorf("%w: pnr required", ErrInvalidOrder)
	}
	if len(products) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one product", ErrInvalidOrder)
	}
	seen := make(map[string]bool, len(products))
	for i := range products {
		p := &products[i]
		if p.ID == "" || seen[p.ID] {
			return Order{}, fmt.Errorf("%w: product ids must be unique and non-empty", ErrInvalidOrder)
		}
		seen[p.ID] = true
		if !p.Provider.Valid() {
			return Order{}, fmt.Errorf("%w: unknown provider %q", ErrInvalidOrder, p.Provider)
		}
		if p.Price.Amount < 0 {
			return Order{}, fmt.Errorf("%w: product %s has negative price", ErrInvalidOrder, p.ID)
		}
		if p.Status == "" {
			p.Status = ProductPending
		}
		applyDefaultSubStatus(p)
	}
	return Order{
		ID:            id,
		PNR:           pnr,
		TransactionID: transactionID,
		CustomerID:    customerID,
		Customer:      customer,
		Products:      products,
		Status:        "confirmed",
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func applyDefaultSubStatus(p *Product) {
	switch p.Provider {
	case ProviderAiralo:
		if p.SimStatus == "" {
			p.SimStatus = SimReadyForActivation
		}
	case ProviderMozio:
		if p.TransferStatus == "" {
			p.TransferStatus = TransferConfirmed
		}
	case ProviderDragonPass:
		if p.AccessStatus == "" {
			p.AccessStatus = AccessConfirmed
		}
	}
}

// Product returns the line item with the given id, or false.
func (o Order) Product(productID string) (Product, bool) {
	for _, p := range o.Products {
		if p.ID == productID {
			return p, true
		}
	}
	return Product{}, false
}
