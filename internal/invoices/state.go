package invoices

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/money"
)

// State holds the fields derived from an invoice's payment set.
type State struct {
	PaidAmount      decimal.Decimal
	RemainingAmount decimal.Decimal
	Status          Status
	LastPaymentAt   *time.Time
}

// DeriveState recomputes paid, remaining, status and last payment time from
// the complete set of payments currently on the invoice.
func DeriveState(total decimal.Decimal, payments []Payment) State {
	amounts := make([]decimal.Decimal, 0, len(payments))
	var last *time.Time
	for i := range payments {
		amounts = append(amounts, payments[i].Amount)
		if last == nil || payments[i].PaidAt.After(*last) {
			paidAt := payments[i].PaidAt
			last = &paidAt
		}
	}
	paid := money.Sum(amounts...)
	return State{
		PaidAmount:      paid,
		RemainingAmount: money.Remaining(total, paid),
		Status:          StatusFor(total, paid),
		LastPaymentAt:   last,
	}
}

// StatusFor maps paid against total onto a customer invoice status.
func StatusFor(total, paid decimal.Decimal) Status {
	switch {
	case paid.IsZero():
		return StatusNotPaid
	case paid.LessThan(total):
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}

// Apply copies s onto inv.
func (s State) Apply(inv *Invoice) {
	inv.PaidAmount = s.PaidAmount
	inv.RemainingAmount = s.RemainingAmount
	inv.Status = s.Status
	inv.LastPaymentAt = s.LastPaymentAt
}

// Rank orders statuses by how much of the invoice has been settled.
func (s Status) Rank() int {
	switch s {
	case StatusNotPaid:
		return 0
	case StatusPartiallyPaid:
		return 1
	case StatusPaid:
		return 2
	default:
		return -1
	}
}
