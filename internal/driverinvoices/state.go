package driverinvoices

import (
	"github.com/shopspring/decimal"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/money"
)

// State is what a driver invoice's payouts determine.
type State struct {
	PaidAmount decimal.Decimal
	Status     Status
}

// DeriveState sums the payouts on an invoice and maps them onto a status.
// Adding and removing payouts go through the same rule.
func DeriveState(total decimal.Decimal, payments []Payment) State {
	amounts := make([]decimal.Decimal, 0, len(payments))
	for i := range payments {
		amounts = append(amounts, payments[i].Amount)
	}
	paid := money.Sum(amounts...)
	return State{PaidAmount: paid, Status: StatusFor(total, paid)}
}

// StatusFor maps paid against total. A fully paid zero-total invoice is PAID.
func StatusFor(total, paid decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsZero():
		return StatusApproved
	default:
		return StatusPartiallyPaid
	}
}
