package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

// Service is the cancellation orchestrator: access-scoped lookup,
// eligibility, command selection and execution, and event/notification
// fan-out for single and bulk flows.
type Service struct {
	log           *slog.Logger
	orders        OrderStore
	cancellations CancellationStore
	vendors       map[domain.Provider]VendorGateway
	invoker       *Invoker
	events        EventPublisher
	sink          EventSink
	notifier      Notifier
	resolver      *StatusResolver
	clock         domain.Clock
	bulkDelay     time.Duration
}

func NewService(log *slog.Logger, orders OrderStore, cancellations CancellationStore, vendors map[domain.Provider]VendorGateway, invoker *Invoker, events EventPublisher, sink EventSink, notifier Notifier, resolver *StatusResolver, clock domain.Clock, bulkDelay time.Duration) *Service {
	return &Service{
		log:           log,
		orders:        orders,
		cancellations: cancellations,
		vendors:       vendors,
		invoker:       invoker,
		events:        events,
		sink:          sink,
		notifier:      notifier,
		resolver:      resolver,
		clock:         clock,
		bulkDelay:     bulkDelay,
	}
}

type CancelRequest struct {
	OrderID      string           `json:"orderId,omitempty"`
	PNR          string           `json:"pnr,omitempty"`
	ContactEmail string           `json:"contactEmail,omitempty"`
	ProductID    string           `json:"productId"`
	Reason       string           `json:"reason,omitempty"`
	Source       string           `json:"source,omitempty"`
	Requester    domain.Requester `json:"-"`
}

type BulkCancelRequest struct {
	OrderID      string           `json:"orderId,omitempty"`
	PNR          string           `json:"pnr,omitempty"`
	ContactEmail string           `json:"contactEmail,omitempty"`
	ProductIDs   []string         `json:"productIds"`
	Reason       string           `json:"reason,omitempty"`
	Source       string           `json:"source,omitempty"`
	Requester    domain.Requester `json:"-"`
}

// Cancel runs the single-item flow. Pre-check ineligibility comes back as an
// *domain.IneligibleError without creating a record or firing a webhook;
// events fire only once a command actually executed.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (domain.CancellationResult, error) {
	order, err := s.resolveOrder(ctx, req.OrderID, req.PNR, req.ContactEmail, req.Requester)
	if err != nil {
		return domain.CancellationResult{}, err
	}
	product, ok := order.Product(req.ProductID)
	if !ok {
		return domain.CancellationResult{}, fmt.Errorf("product %s: %w", req.ProductID, domain.ErrProductNotFound)
	}

	if el := domain.EvaluateCancellation(product, s.clock); !el.CanCancel {
		return domain.CancellationResult{}, &domain.IneligibleError{Reason: el.Reason}
	}

	cmd, err := s.commandFor(order, product, req.Reason, req.Source, req.Requester)
	if err != nil {
		return domain.CancellationResult{}, err
	}

	res, err := s.invoker.Execute(ctx, cmd)
	if err != nil {
		s.publish(ctx, domain.EventCancellationError, order.ID, domain.CancellationEvent{
			OrderID:     order.ID,
			ProductID:   product.ID,
			PNR:         order.PNR,
			Provider:    product.Provider,
			Message:     err.Error(),
			RequestedBy: req.Requester.UserID,
		})
		return domain.CancellationResult{}, err
	}

	event := domain.EventCancellationFailed
	if res.Success {
		event = domain.EventCancellationSuccess
	}
	s.publish(ctx, event, order.ID, domain.CancellationEvent{
		CancellationID:  res.CancellationID,
		OrderID:         order.ID,
		ProductID:       product.ID,
		PNR:             order.PNR,
		Provider:        product.Provider,
		RefundAmount:    res.RefundAmount,
		CancellationFee: res.CancellationFee,
		Message:         res.Message,
		RequestedBy:     req.Requester.UserID,
	})

	if res.Success {
		s.confirmToCustomer(ctx, order, res)
	}
	return res, nil
}

// BulkCancel processes product ids sequentially with a fixed delay between
// items. Failures are isolated per item; the run always accounts for every
// requested id.
func (s *Service) BulkCancel(ctx context.Context, req BulkCancelRequest) (domain.BulkCancellationResult, error) {
	order, err := s.resolveOrder(ctx, req.OrderID, req.PNR, req.ContactEmail, req.Requester)
	if err != nil {
		s.publish(ctx, domain.EventCancellationBulkError, req.OrderID, map[string]any{
			"orderId": req.OrderID, "pnr": req.PNR, "error": err.Error(),
		})
		return domain.BulkCancellationResult{}, err
	}

	out := domain.BulkCancellationResult{
		TotalRequested: len(req.ProductIDs),
		Summary:        domain.BulkSummary{ByProvider: map[domain.Provider]domain.ProviderBreakdown{}},
	}
	var confirmed []BulkConfirmationItem

	for i, productID := range req.ProductIDs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(s.bulkDelay):
			}
		}
		item := s.cancelBulkItem(ctx, order, productID, req)
		out.Results = append(out.Results, item)
		if item.Result.Success {
			out.Successful++
			out.Summary.TotalRefund += item.Result.RefundAmount
			out.Summary.TotalFees += item.Result.CancellationFee
			bd := out.Summary.ByProvider[item.Provider]
			bd.Count++
			bd.TotalRefund += item.Result.RefundAmount
			bd.TotalFees += item.Result.CancellationFee
			out.Summary.ByProvider[item.Provider] = bd
			confirmed = append(confirmed, BulkConfirmationItem{
				ProductTitle:   item.ProductTitle,
				CancellationID: item.Result.CancellationID,
				RefundAmount:   item.Result.RefundAmount,
				Message:        item.Result.Message,
			})
		} else {
			out.Failed++
		}
	}

	s.publish(ctx, domain.EventCancellationBulkCompleted, order.ID, domain.BulkCompletedEvent{
		OrderID:        order.ID,
		PNR:            order.PNR,
		TotalRequested: out.TotalRequested,
		Successful:     out.Successful,
		Failed:         out.Failed,
		TotalRefund:    out.Summary.TotalRefund,
		TotalFees:      out.Summary.TotalFees,
	})

	if len(confirmed) > 0 && s.notifier != nil {
		err := s.notifier.SendBulkCancellationConfirmation(ctx, order.Customer.Email, order.Customer.FullName(), BulkConfirmation{
			OrderPNR:    order.PNR,
			Items:       confirmed,
			TotalRefund: out.Summary.TotalRefund,
		})
		if err != nil {
			s.log.Error("bulk confirmation email failed", "pnr", order.PNR, "err", err)
		}
	}
	return out, nil
}

func (s *Service) cancelBulkItem(ctx context.Context, order domain.Order, productID string, req BulkCancelRequest) domain.BulkItemResult {
	now := s.clock.Now()
	fail := func(p domain.Product, msg string) domain.BulkItemResult {
		s.publish(ctx, domain.EventCancellationFailed, order.ID, domain.CancellationEvent{
			OrderID:     order.ID,
			ProductID:   productID,
			PNR:         order.PNR,
			Provider:    p.Provider,
			Message:     msg,
			RequestedBy: req.Requester.UserID,
		})
		return domain.BulkItemResult{
			ProductID:    productID,
			ProductTitle: p.Title,
			Provider:     p.Provider,
			Result:       domain.CancellationResult{Success: false, Message: msg, ProcessedAt: now},
		}
	}

	product, ok := order.Product(productID)
	if !ok {
		return fail(domain.Product{}, "product not found")
	}
	if el := domain.EvaluateCancellation(product, s.clock); !el.CanCancel {
		return fail(product, el.Reason)
	}

	cmd, err := s.commandFor(order, product, req.Reason, req.Source, req.Requester)
	if err != nil {
		return fail(product, err.Error())
	}

	res, err := s.invoker.Execute(ctx, cmd)
	if err != nil {
		s.publish(ctx, domain.EventCancellationError, order.ID, domain.CancellationEvent{
			OrderID:     order.ID,
			ProductID:   productID,
			PNR:         order.PNR,
			Provider:    product.Provider,
			Message:     err.Error(),
			RequestedBy: req.Requester.UserID,
		})
		return domain.BulkItemResult{
			ProductID:    productID,
			ProductTitle: product.Title,
			Provider:     product.Provider,
			Result:       domain.CancellationResult{Success: false, Message: err.Error(), ProcessedAt: now},
		}
	}

	event := domain.EventCancellationFailed
	if res.Success {
		event = domain.EventCancellationSuccess
	}
	s.publish(ctx, event, order.ID, domain.CancellationEvent{
		CancellationID:  res.CancellationID,
		OrderID:         order.ID,
		ProductID:       productID,
		PNR:             order.PNR,
		Provider:        product.Provider,
		RefundAmount:    res.RefundAmount,
		CancellationFee: res.CancellationFee,
		Message:         res.Message,
		RequestedBy:     req.Requester.UserID,
	})
	return domain.BulkItemResult{
		ProductID:    productID,
		ProductTitle: product.Title,
		Provider:     product.Provider,
		Result:       res,
	}
}

func (s *Service) commandFor(order domain.Order, product domain.Product, reason, source string, requestedBy domain.Requester) (*CancelCommand, error) {
	spec, ok := specFor(product.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, product.Provider)
	}
	gateway, ok := s.vendors[product.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway for %s", domain.ErrUnsupportedProvider, product.Provider)
	}
	if source == "" {
		source = "api"
	}
	return NewCancelCommand(s.log, s.orders, s.cancellations, gateway, spec, s.clock, order.ID, product.ID, reason, source, requestedBy), nil
}

// resolveOrder enforces access scope: customers only reach orders matching
// their contact email, admins and partners look up by reference or id.
func (s *Service) resolveOrder(ctx context.Context, orderID, pnr, contactEmail string, req domain.Requester) (domain.Order, error) {
	if req.Role == domain.RoleCustomer {
		email := contactEmail
		if email == "" {
			email = req.Email
		}
		if pnr == "" || email == "" {
			return domain.Order{}, fmt.Errorf("customer lookup needs pnr and contact email: %w", domain.ErrOrderNotFound)
		}
		return s.orders.FindByPNRAndEmail(ctx, pnr, email)
	}
	if pnr != "" {
		return s.orders.FindByPNR(ctx, pnr)
	}
	if orderID != "" {
		return s.orders.FindByID(ctx, orderID)
	}
	return domain.Order{}, fmt.Errorf("order reference required: %w", domain.ErrOrderNotFound)
}

func (s *Service) confirmToCustomer(ctx context.Context, order domain.Order, res domain.CancellationResult) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendCancellationConfirmation(ctx, order.Customer.Email, order.Customer.FullName(), res); err != nil {
		s.log.Error("confirmation email failed", "pnr", order.PNR, "cancellation_id", res.CancellationID, "err", err)
		return
	}
	if err := s.cancellations.MarkEmailSent(ctx, res.CancellationID); err != nil {
		s.log.Error("mark email sent failed", "cancellation_id", res.CancellationID, "err", err)
	}
}

// publish fans the event out to webhook subscribers and records it in the
// durable event sink. Sink errors are logged, never propagated.
func (s *Service) publish(ctx context.Context, event, aggregateID string, data any) {
	if s.events != nil {
		s.events.Trigger(ctx, event, data)
	}
	if s.sink != nil {
		if err := s.sink.Record(ctx, event, aggregateID, data); err != nil {
			s.log.Error("event sink write failed", "event", event, "aggregate_id", aggregateID, "err", err)
		}
	}
}

// RetryAfterHint extracts the retry hint for vendor outages; zero otherwise.
func RetryAfterHint(err error) time.Duration {
	var verr *domain.VendorUnavailableError
	if errors.As(err, &verr) {
		return verr.RetryAfter
	}
	return 0
}

type CreateOrderRequest struct {
	PNR           string           `json:"pnr,omitempty"`
	TransactionID string           `json:"transactionId,omitempty"`
	Customer      domain.Customer  `json:"customer"`
	Products      []domain.Product `json:"products"`
	Requester     domain.Requester `json:"-"`
}

// CreateOrder persists a new order and arms the automatic resolver for its
// pending products.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	pnr := req.PNR
	if pnr == "" {
		pnr = newPNR()
	}
	txID := req.TransactionID
	if txID == "" {
		txID = uuid.NewString()
	}
	order, err := domain.NewOrder(uuid.NewString(), pnr, txID, req.Requester.UserID, req.Customer, req.Products, s.clock.Now())
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("persist order %s: %w", order.PNR, err)
	}
	if s.resolver != nil {
		for _, p := range order.Products {
			if p.Status == domain.ProductPending {
				s.resolver.Watch(order.ID, order.PNR, p.ID)
			}
		}
	}
	s.log.Info("order created", "pnr", order.PNR, "products", len(order.Products))
	return order, nil
}

func newPNR() string {
	return "PNR-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// GetOrder is the role-scoped read used by the API.
func (s *Service) GetOrder(ctx context.Context, pnr, contactEmail string, req domain.Requester) (domain.Order, error) {
	return s.resolveOrder(ctx, "", pnr, contactEmail, req)
}

func (s *Service) ListCustomerOrders(ctx context.Context, req domain.Requester) ([]domain.Order, error) {
	return s.orders.ListByCustomer(ctx, req.UserID)
}

type ActivateESIMRequest struct {
	PNR       string           `json:"pnr"`
	ProductID string           `json:"productId"`
	Requester domain.Requester `json:"-"`
}

// ActivateESIM is the customer action that consumes an eSIM. A cancelled
// eSIM can never activate.
func (s *Service) ActivateESIM(ctx context.Context, req ActivateESIMRequest) error {
	order, err := s.resolveOrder(ctx, "", req.PNR, req.Requester.Email, req.Requester)
	if err != nil {
		return err
	}
	product, ok := order.Product(req.ProductID)
	if !ok {
		return fmt.Errorf("product %s: %w", req.ProductID, domain.ErrProductNotFound)
	}
	if product.Provider != domain.ProviderAiralo {
		return fmt.Errorf("product %s is not an eSIM: %w", req.ProductID, domain.ErrWrongProvider)
	}
	if product.SimStatus == domain.SimCancelled || product.Status.Terminal() {
		return fmt.Errorf("%w: cannot activate a cancelled eSIM", domain.ErrInvalidTransition)
	}
	if product.SimStatus == domain.SimActive {
		return fmt.Errorf("%w: eSIM already active", domain.ErrInvalidTransition)
	}
	return s.orders.UpdateSimStatus(ctx, order.ID, product.ID, domain.SimActive)
}

type UpdateProductStatusRequest struct {
	PNR       string               `json:"pnr"`
	ProductID string               `json:"productId"`
	Status    domain.ProductStatus `json:"status"`
	Requester domain.Requester     `json:"-"`
}

// UpdateProductStatus is the partner's manual override. The write is a
// compare-and-set against the status that was just read, so it cannot
// clobber a concurrent transition (the automatic resolver uses the same
// guard from the other side).
func (s *Service) UpdateProductStatus(ctx context.Context, req UpdateProductStatusRequest) error {
	order, err := s.orders.FindByPNR(ctx, req.PNR)
	if err != nil {
		return err
	}
	product, ok := order.Product(req.ProductID)
	if !ok {
		return fmt.Errorf("product %s: %w", req.ProductID, domain.ErrProductNotFound)
	}
	if !product.Status.CanTransitionTo(req.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, product.Status, req.Status)
	}
	swapped, err := s.orders.UpdateProductStatusIf(ctx, order.ID, product.ID, product.Status, req.Status)
	if err != nil {
		return err
	}
	if !swapped {
		return fmt.Errorf("%w: product %s changed concurrently", domain.ErrInvalidTransition, product.ID)
	}
	if req.Status == domain.ProductCancelled {
		s.publish(ctx, domain.EventOrderPartnerCancelled, order.ID, domain.OrderStatusEvent{
			OrderID:   order.ID,
			PNR:       order.PNR,
			ProductID: product.ID,
			Status:    req.Status,
			Source:    "partner",
		})
	}
	return nil
}

// Stats returns the product-status breakdown used by the admin and partner
// dashboards.
func (s *Service) Stats(ctx context.Context) (map[domain.ProductStatus]domain.ProviderBreakdown, error) {
	return s.orders.ProductStatusBreakdown(ctx)
}
