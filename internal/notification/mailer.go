// Package notification renders and sends the customer and admin emails.
// Actual SMTP delivery sits behind the Sender interface; the default
// implementation just logs, matching the simulated vendor integrations.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arcube/ancillary-orders/internal/order/application"
	"github.com/arcube/ancillary-orders/internal/order/domain"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes the email to the log instead of delivering it.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Log.Info("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

type Mailer struct {
	log    *slog.Logger
	sender Sender
	from   string
}

func NewMailer(log *slog.Logger, sender Sender, from string) *Mailer {
	return &Mailer{log: log, sender: sender, from: from}
}

func (m *Mailer) SendCancellationConfirmation(ctx context.Context, email, name string, details domain.CancellationResult) error {
	body := fmt.Sprintf("Hi %s,\n\nYour cancellation %s has been processed.\nRefund: %.2f (fee %.2f)\n%s\n",
		name, details.CancellationID, details.RefundAmount, details.CancellationFee, details.Message)
	return m.sender.Send(ctx, Message{
		To:      email,
		Subject: fmt.Sprintf("Cancellation confirmed - %s", details.CancellationID),
		Body:    body,
	})
}

func (m *Mailer) SendBulkCancellationConfirmation(ctx context.Context, email, name string, summary application.BulkConfirmation) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nThe following items on booking %s were cancelled:\n\n", name, summary.OrderPNR)
	for _, item := range summary.Items {
		fmt.Fprintf(&b, "- %s (%s): refund %.2f\n", item.ProductTitle, item.CancellationID, item.RefundAmount)
	}
	fmt.Fprintf(&b, "\nTotal refund: %.2f\n", summary.TotalRefund)
	return m.sender.Send(ctx, Message{
		To:      email,
		Subject: fmt.Sprintf("Cancellation summary for %s", summary.OrderPNR),
		Body:    b.String(),
	})
}

func (m *Mailer) SendAdminNotification(ctx context.Context, email string, details map[string]any) error {
	var b strings.Builder
	b.WriteString("Cancellation activity:\n\n")
	for k, v := range details {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	return m.sender.Send(ctx, Message{
		To:      email,
		Subject: "Cancellation activity alert",
		Body:    b.String(),
	})
}
