package driverinvoices

import (
	"github.com/shopspring/decimal"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/money"
)

var hundred = decimal.NewFromInt(100)

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// ChargeAmount computes the pay for one assignment, rounded to cents. Only
// the basis matching the charge type contributes; empty miles count toward
// PER_MILE pay.
func ChargeAmount(a AssignmentInput) (decimal.Decimal, error) {
	switch a.ChargeType {
	case ChargeFixedPay:
		return money.Round2(a.ChargeValue), nil
	case ChargePerMile:
		miles := orZero(a.BilledDistanceMiles).Add(orZero(a.EmptyMiles))
		return money.Round2(miles.Mul(a.ChargeValue)), nil
	case ChargePerHour:
		return money.Round2(orZero(a.BilledDurationHours).Mul(a.ChargeValue)), nil
	case ChargePercentageOfLoad:
		return money.Round2(orZero(a.BilledLoadRate).Mul(a.ChargeValue.Div(hundred))), nil
	default:
		return decimal.Zero, ErrInvalidChargeType
	}
}

// buildAssignment normalises the charge basis and prices the assignment.
func buildAssignment(a AssignmentInput) (Assignment, error) {
	amount, err := ChargeAmount(a)
	if err != nil {
		return Assignment{}, err
	}
	out := Assignment{
		AssignmentID: a.AssignmentID,
		LoadID:       a.LoadID,
		ChargeType:   a.ChargeType,
		ChargeValue:  a.ChargeValue,
		EmptyMiles:   a.EmptyMiles,
		Amount:       amount,
	}
	switch a.ChargeType {
	case ChargePerMile:
		out.BilledDistanceMiles = a.BilledDistanceMiles
	case ChargePerHour:
		out.BilledDurationHours = a.BilledDurationHours
	case ChargePercentageOfLoad:
		out.BilledLoadRate = a.BilledLoadRate
	}
	return out, nil
}

// InvoiceTotal adds priced assignments and line items.
func InvoiceTotal(assignments []Assignment, items []LineItem) decimal.Decimal {
	amounts := make([]decimal.Decimal, 0, len(assignments)+len(items))
	for _, a := range assignments {
		amounts = append(amounts, a.Amount)
	}
	for _, item := range items {
		amounts = append(amounts, item.Amount)
	}
	return money.Round2(money.Sum(amounts...))
}
