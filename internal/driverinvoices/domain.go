// Package driverinvoices manages settlements owed by a carrier to its drivers:
// invoice assembly from assignment charges, approval, and payout tracking.
package driverinvoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a driver invoice.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusApproved      Status = "APPROVED"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
)

// ParseStatus reports whether raw names a driver invoice status.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusApproved, StatusPartiallyPaid, StatusPaid:
		return s, true
	default:
		return "", false
	}
}

// ChargeType selects how an assignment's pay is computed.
type ChargeType string

const (
	ChargeFixedPay         ChargeType = "FIXED_PAY"
	ChargePerMile          ChargeType = "PER_MILE"
	ChargePerHour          ChargeType = "PER_HOUR"
	ChargePercentageOfLoad ChargeType = "PERCENTAGE_OF_LOAD"
)

// Driver is the payee of a driver invoice.
type Driver struct {
	ID        uuid.UUID `json:"id"`
	CarrierID uuid.UUID `json:"carrierId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Active    bool      `json:"active"`
}

// Invoice is a driver settlement for a date range.
type Invoice struct {
	ID          uuid.UUID       `json:"id"`
	CarrierID   uuid.UUID       `json:"carrierId"`
	DriverID    uuid.UUID       `json:"driverId"`
	CreatedByID uuid.UUID       `json:"createdById"`
	InvoiceNum  int             `json:"invoiceNum"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	FromDate    time.Time       `json:"fromDate"`
	ToDate      time.Time       `json:"toDate"`
	Notes       string          `json:"notes"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Driver      *Driver         `json:"driver,omitempty"`
	Assignments []Assignment    `json:"assignments,omitempty"`
	LineItems   []LineItem      `json:"lineItems,omitempty"`
	Payments    []Payment       `json:"payments,omitempty"`
}

// Assignment is a billed unit of driver work on an invoice.
type Assignment struct {
	ID                  uuid.UUID        `json:"id"`
	AssignmentID        uuid.UUID        `json:"assignmentId"`
	LoadID              *uuid.UUID       `json:"loadId"`
	ChargeType          ChargeType       `json:"chargeType"`
	ChargeValue         decimal.Decimal  `json:"chargeValue"`
	BilledDistanceMiles *decimal.Decimal `json:"billedDistanceMiles"`
	BilledDurationHours *decimal.Decimal `json:"billedDurationHours"`
	BilledLoadRate      *decimal.Decimal `json:"billedLoadRate"`
	EmptyMiles          *decimal.Decimal `json:"emptyMiles"`
	Amount              decimal.Decimal  `json:"amount"`
}

// LineItem is a manual addition or deduction on a driver invoice.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ChargeID    *uuid.UUID      `json:"chargeId"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Payment is a payout recorded against a driver invoice.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceID   uuid.UUID       `json:"invoiceId"`
	CarrierID   uuid.UUID       `json:"carrierId"`
	CreatedBy   uuid.UUID       `json:"createdBy"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"paymentDate"`
	Notes       string          `json:"notes"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Summary is the list representation of a driver invoice.
type Summary struct {
	ID              uuid.UUID       `json:"id"`
	InvoiceNum      int             `json:"invoiceNum"`
	CreatedAt       time.Time       `json:"createdAt"`
	Status          Status          `json:"status"`
	Driver          Driver          `json:"driver"`
	AssignmentCount int             `json:"assignmentCount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
}

// AssignmentInput carries the charge basis of one assignment.
type AssignmentInput struct {
	AssignmentID        uuid.UUID
	LoadID              *uuid.UUID
	ChargeType          ChargeType
	ChargeValue         decimal.Decimal
	BilledDistanceMiles *decimal.Decimal
	BilledDurationHours *decimal.Decimal
	BilledLoadRate      *decimal.Decimal
	EmptyMiles          *decimal.Decimal
}

// LineItemInput is a caller supplied line item.
type LineItemInput struct {
	Description string
	Amount      decimal.Decimal
	ChargeID    *uuid.UUID
}

// CreateInvoiceInput assembles a new driver invoice. A zero InvoiceNum asks
// for the next number of the carrier's sequence; an empty Status means PENDING.
type CreateInvoiceInput struct {
	CarrierID   uuid.UUID
	UserID      uuid.UUID
	DriverID    uuid.UUID
	InvoiceNum  int
	Status      Status
	FromDate    time.Time
	ToDate      time.Time
	Notes       string
	Assignments []AssignmentInput
	LineItems   []LineItemInput
}

// AddPaymentInput records a payout against a driver invoice.
type AddPaymentInput struct {
	CarrierID   uuid.UUID
	UserID      uuid.UUID
	InvoiceID   uuid.UUID
	Amount      decimal.Decimal
	PaymentDate time.Time
	Notes       string
}

// DeletePaymentInput identifies a payout through its parent invoice.
type DeletePaymentInput struct {
	CarrierID uuid.UUID
	UserID    uuid.UUID
	InvoiceID uuid.UUID
	PaymentID uuid.UUID
}

// ListRequest filters and pages a carrier's driver invoices.
type ListRequest struct {
	CarrierID uuid.UUID
	Status    Status
	Limit     int
	Offset    int
	SortBy    string
	SortDir   string
}

// Stats summarises what a carrier owes its drivers.
type Stats struct {
	PayableBalance     decimal.Decimal `json:"payableBalance"`
	ApprovedBalance    decimal.Decimal `json:"approvedBalance"`
	TotalPaidThisMonth decimal.Decimal `json:"totalPaidThisMonth"`
}

// ApprovalNotice is everything the approval email needs.
type ApprovalNotice struct {
	InvoiceID       uuid.UUID
	InvoiceNum      int
	CarrierName     string
	CarrierEmail    string
	DriverName      string
	Amount          decimal.Decimal
	ApprovedAt      time.Time
	AssignmentCount int
	FromDate        time.Time
	ToDate          time.Time
}
