// Package invoices manages customer invoices and the payments applied to them.
package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the payment state of a customer invoice.
type Status string

const (
	StatusNotPaid       Status = "NOT_PAID"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
)

// FilterOverdue is a list filter, not a stored status: unpaid or partially
// paid invoices with net terms whose due date has passed.
const FilterOverdue = "OVERDUE"

// Invoice is a bill issued by a carrier to a customer for a load.
type Invoice struct {
	ID              uuid.UUID       `json:"id"`
	CarrierID       uuid.UUID       `json:"carrierId"`
	UserID          uuid.UUID       `json:"userId"`
	LoadID          *uuid.UUID      `json:"loadId"`
	InvoiceNum      int             `json:"invoiceNum"`
	Status          Status          `json:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	InvoicedAt      time.Time       `json:"invoicedAt"`
	DueNetDays      int             `json:"dueNetDays"`
	DueDate         time.Time       `json:"dueDate"`
	LastPaymentAt   *time.Time      `json:"lastPaymentAt"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	ExtraItems      []ExtraItem     `json:"extraItems,omitempty"`
	Payments        []Payment       `json:"payments,omitempty"`
}

// ExtraItem is an additional charge billed on top of the load rate.
type ExtraItem struct {
	ID     uuid.UUID       `json:"id"`
	Title  string          `json:"title"`
	Amount decimal.Decimal `json:"amount"`
}

// Payment is money received against an invoice.
type Payment struct {
	ID        uuid.UUID       `json:"id"`
	InvoiceID uuid.UUID       `json:"invoiceId"`
	CarrierID uuid.UUID       `json:"carrierId"`
	UserID    uuid.UUID       `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paidAt"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ExtraItemInput is a caller supplied extra charge.
type ExtraItemInput struct {
	Title  string
	Amount decimal.Decimal
}

// CreateInvoiceInput describes a new invoice. A zero InvoiceNum asks for the
// next number of the carrier's sequence.
type CreateInvoiceInput struct {
	CarrierID   uuid.UUID
	UserID      uuid.UUID
	LoadID      *uuid.UUID
	InvoiceNum  int
	TotalAmount decimal.Decimal
	InvoicedAt  time.Time
	DueNetDays  int
	ExtraItems  []ExtraItemInput
}

// UpdateInvoiceInput replaces the editable fields of an invoice.
type UpdateInvoiceInput struct {
	CarrierID   uuid.UUID
	ID          uuid.UUID
	InvoiceNum  int
	TotalAmount decimal.Decimal
	InvoicedAt  time.Time
	DueNetDays  int
	ExtraItems  []ExtraItemInput
}

// AddPaymentInput records a payment against an invoice.
type AddPaymentInput struct {
	CarrierID uuid.UUID
	UserID    uuid.UUID
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	PaidAt    time.Time
}

// DeletePaymentInput identifies a payment through its parent invoice.
type DeletePaymentInput struct {
	CarrierID uuid.UUID
	UserID    uuid.UUID
	InvoiceID uuid.UUID
	PaymentID uuid.UUID
}

// Expand selects child collections loaded with an invoice.
type Expand struct {
	ExtraItems bool
	Payments   bool
}

// ListInvoicesRequest filters and pages a carrier's invoices.
type ListInvoicesRequest struct {
	CarrierID uuid.UUID
	Status    string
	Limit     int
	Offset    int
	SortBy    string
	SortDir   string
	Now       time.Time
}

// Stats summarises receivables for a carrier.
type Stats struct {
	TotalPaid    decimal.Decimal `json:"totalPaid"`
	TotalUnpaid  decimal.Decimal `json:"totalUnpaid"`
	TotalOverdue decimal.Decimal `json:"totalOverdue"`
}

// DueDateFor returns invoicedAt advanced by netDays calendar days.
func DueDateFor(invoicedAt time.Time, netDays int) time.Time {
	return invoicedAt.AddDate(0, 0, netDays)
}

// IsOverdue mirrors the OVERDUE list filter for a single invoice.
func (inv Invoice) IsOverdue(now time.Time) bool {
	if inv.DueNetDays <= 0 || !inv.DueDate.Before(now) {
		return false
	}
	return inv.Status == StatusNotPaid || inv.Status == StatusPartiallyPaid
}
