package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/hibiken/asynq"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/driverinvoices"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/money"
)

// ErrNoRecipient is returned when a notification has nobody to go to.
var ErrNoRecipient = errors.New("jobs: notification has no recipient")

const notificationMaxRetry = 3

var approvedBody = template.Must(template.New("driver_invoice_approved").Parse(
	`Driver invoice #{{.InvoiceNum}} for {{.DriverName}} was approved on {{.ApprovedDate}}.

Amount: {{.Amount}}
Period: {{.FromDate}} - {{.ToDate}}
Assignments: {{.AssignmentCount}}

{{.CarrierName}}
Invoice reference: {{.InvoiceID}}
`))

type approvedView struct {
	InvoiceNum      int
	InvoiceID       string
	DriverName      string
	CarrierName     string
	Amount          string
	ApprovedDate    string
	FromDate        string
	ToDate          string
	AssignmentCount int
}

// RenderDriverInvoiceApproved builds the carrier-facing approval email.
func RenderDriverInvoiceApproved(n driverinvoices.ApprovalNotice) (SendEmailPayload, error) {
	const dateLayout = "Jan 2, 2006"
	view := approvedView{
		InvoiceNum:      n.InvoiceNum,
		InvoiceID:       n.InvoiceID.String(),
		DriverName:      n.DriverName,
		CarrierName:     n.CarrierName,
		Amount:          money.FormatUSD(n.Amount),
		ApprovedDate:    n.ApprovedAt.Format(dateLayout),
		FromDate:        n.FromDate.Format(dateLayout),
		ToDate:          n.ToDate.Format(dateLayout),
		AssignmentCount: n.AssignmentCount,
	}
	var body strings.Builder
	if err := approvedBody.Execute(&body, view); err != nil {
		return SendEmailPayload{}, fmt.Errorf("jobs: render approval: %w", err)
	}
	return SendEmailPayload{
		To:      n.CarrierEmail,
		Subject: fmt.Sprintf("Driver Invoice #%d Approved - %s", n.InvoiceNum, n.DriverName),
		Body:    body.String(),
		Kind:    "driver_invoice_approved",
	}, nil
}

// NotifyDriverInvoiceApproved queues the approval email on the notifications
// queue with its own retry budget.
func (c *Client) NotifyDriverInvoiceApproved(ctx context.Context, n driverinvoices.ApprovalNotice) error {
	payload, err := RenderDriverInvoiceApproved(n)
	if err != nil {
		return err
	}
	if payload.To == "" {
		return ErrNoRecipient
	}
	if _, err := c.EnqueueSendEmail(ctx, payload, asynq.Queue(QueueNotifications), asynq.MaxRetry(notificationMaxRetry)); err != nil {
		return fmt.Errorf("jobs: enqueue approval email: %w", err)
	}
	return nil
}
