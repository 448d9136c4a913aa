package invoices

import "github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"

var (
	ErrInvoiceNotFound     = httpx.NewError(httpx.ErrNotFound, "Invoice not found")
	ErrPaymentNotFound     = httpx.NewError(httpx.ErrNotFound, "Invoice payment not found")
	ErrLoadNotFound        = httpx.NewError(httpx.ErrNotFound, "Load not found")
	ErrPaymentMismatch     = httpx.Validation("Payment does not belong to the specified invoice")
	ErrInvalidAmount       = httpx.Validation("Payment amount must be greater than zero")
	ErrInvalidTotal        = httpx.Validation("Total amount cannot be negative")
	ErrInvalidDueNetDays   = httpx.Validation("Due net days cannot be negative")
	ErrDuplicateInvoiceNum = httpx.Validation("Invoice number already exists")
	ErrInvalidStatusFilter = httpx.Validation("Invalid status filter")
)
