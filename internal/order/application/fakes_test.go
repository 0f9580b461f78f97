package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

// memOrders is an in-memory OrderStore that enforces the same transition
// rules as the postgres store: terminal statuses are one-way.
type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	failSimUpdate bool
}

func newMemOrders(orders ...domain.Order) *memOrders {
	m := &memOrders{orders: map[string]*domain.Order{}}
	for _, o := range orders {
		oc := o
		m.orders[o.ID] = &oc
	}
	return m
}

func (m *memOrders) Create(ctx context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("duplicate order %s", o.ID)
	}
	oc := o
	m.orders[o.ID] = &oc
	return nil
}

func (m *memOrders) FindByID(ctx context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	return cloneOrder(*o), nil
}

func (m *memOrders) FindByPNR(ctx context.Context, pnr string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PNR == pnr {
			return cloneOrder(*o), nil
		}
	}
	return domain.Order{}, fmt.Errorf("pnr %s: %w", pnr, domain.ErrOrderNotFound)
}

func (m *memOrders) FindByPNRAndEmail(ctx context.Context, pnr, email string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PNR == pnr && o.Customer.Email == email {
			return cloneOrder(*o), nil
		}
	}
	return domain.Order{}, fmt.Errorf("pnr %s: %w", pnr, domain.ErrOrderNotFound)
}

func (m *memOrders) FindProduct(ctx context.Context, orderID, productID string) (domain.Product, error) {
	o, err := m.FindByID(ctx, orderID)
	if err != nil {
		return domain.Product{}, err
	}
	p, ok := o.Product(productID)
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", productID, domain.ErrProductNotFound)
	}
	return p, nil
}

func (m *memOrders) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, cloneOrder(*o))
		}
	}
	return out, nil
}

func (m *memOrders) product(orderID, productID string) (*domain.Product, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	for i := range o.Products {
		if o.Products[i].ID == productID {
			return &o.Products[i], nil
		}
	}
	return nil, fmt.Errorf("product %s: %w", productID, domain.ErrProductNotFound)
}

func (m *memOrders) UpdateProductStatus(ctx context.Context, orderID, productID string, status domain.ProductStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.product(orderID, productID)
	if err != nil {
		return err
	}
	if !p.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, p.Status, status)
	}
	p.Status = status
	return nil
}

func (m *memOrders) UpdateProductStatusIf(ctx context.Context, orderID, productID string, expected, next domain.ProductStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.product(orderID, productID)
	if err != nil {
		return false, err
	}
	if p.Status != expected {
		return false, nil
	}
	p.Status = next
	return true, nil
}

func (m *memOrders) RevertProductStatus(ctx context.Context, orderID, productID string, from, to domain.ProductStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.product(orderID, productID)
	if err != nil {
		return err
	}
	if p.Status != from {
		return nil
	}
	p.Status = to
	return nil
}

func (m *memOrders) UpdateSimStatus(ctx context.Context, orderID, productID string, status domain.SimStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSimUpdate {
		return fmt.Errorf("sim status write refused")
	}
	p, err := m.product(orderID, productID)
	if err != nil {
		return err
	}
	p.SimStatus = status
	if status == domain.SimActive {
		now := time.Now().UTC()
		p.ActivatedAt = &now
	}
	return nil
}

func (m *memOrders) ProductStatusBreakdown(ctx context.Context) (map[domain.ProductStatus]domain.ProviderBreakdown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.ProductStatus]domain.ProviderBreakdown{}
	for _, o := range m.orders {
		for _, p := range o.Products {
			bd := out[p.Status]
			bd.Count++
			bd.TotalRefund += p.Price.Amount
			out[p.Status] = bd
		}
	}
	return out, nil
}

func (m *memOrders) mustProduct(orderID, productID string) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.product(orderID, productID)
	if err != nil {
		panic(err)
	}
	return *p
}

func cloneOrder(o domain.Order) domain.Order {
	products := make([]domain.Product, len(o.Products))
	copy(products, o.Products)
	o.Products = products
	return o
}

type memCancellations struct {
	mu      sync.Mutex
	nextID  int64
	records []domain.CancellationRecord
}

func (m *memCancellations) Create(ctx context.Context, rec domain.CancellationRecord) (domain.CancellationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memCancellations) UpdateStatus(ctx context.Context, cancellationID string, status domain.CancellationStatus, quote domain.RefundQuote, vendorResponse []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].CancellationID == cancellationID {
			now := time.Now().UTC()
			m.records[i].Status = status
			m.records[i].RefundAmount = quote.RefundAmount
			m.records[i].CancellationFee = quote.CancellationFee
			m.records[i].RefundPercentage = quote.RefundPercentage
			m.records[i].VendorResponse = vendorResponse
			m.records[i].ProcessedAt = &now
			return nil
		}
	}
	return fmt.Errorf("cancellation %s not found", cancellationID)
}

func (m *memCancellations) MarkEmailSent(ctx context.Context, cancellationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].CancellationID == cancellationID {
			m.records[i].EmailSent = true
			return nil
		}
	}
	return fmt.Errorf("cancellation %s not found", cancellationID)
}

func (m *memCancellations) all() []domain.CancellationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.CancellationRecord, len(m.records))
	copy(out, m.records)
	return out
}

// scriptVendor replies with the quote by default; tests override Reply.
type scriptVendor struct {
	Reply func(p domain.Product, q domain.RefundQuote) (domain.VendorResponse, error)
	calls int
}

func (v *scriptVendor) CancelBooking(ctx context.Context, p domain.Product, q domain.RefundQuote) (domain.VendorResponse, error) {
	v.calls++
	if v.Reply != nil {
		return v.Reply(p, q)
	}
	return domain.VendorResponse{
		Status:          domain.VendorStatusSuccess,
		CancellationID:  "VND-1",
		RefundAmount:    q.RefundAmount,
		CancellationFee: q.CancellationFee,
		Currency:        p.Price.Currency,
		Message:         "cancellation processed",
	}, nil
}

type publishedEvent struct {
	name string
	data any
}

type memPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *memPublisher) Trigger(ctx context.Context, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{event, data})
}

func (p *memPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.name)
	}
	return out
}

type memSink struct {
	mu      sync.Mutex
	entries []publishedEvent
}

func (s *memSink) Record(ctx context.Context, eventType, aggregateID string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, publishedEvent{eventType, payload})
	return nil
}

type memNotifier struct {
	mu            sync.Mutex
	confirmations []domain.CancellationResult
	bulk          []BulkConfirmation
}

func (n *memNotifier) SendCancellationConfirmation(ctx context.Context, email, name string, details domain.CancellationResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, details)
	return nil
}

func (n *memNotifier) SendBulkCancellationConfirmation(ctx context.Context, email, name string, summary BulkConfirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bulk = append(n.bulk, summary)
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }
