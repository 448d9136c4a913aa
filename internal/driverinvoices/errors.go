package driverinvoices

import "github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"

var (
	ErrInvoiceNotFound      = httpx.NewError(httpx.ErrNotFound, "Invoice not found or unauthorized")
	ErrPortalNotFound       = httpx.NewError(httpx.ErrNotFound, "Invoice not found")
	ErrApproveNotFound      = httpx.NewError(httpx.ErrNotFound, "Invoice not found, already approved, or unauthorized")
	ErrPaymentNotFound      = httpx.NewError(httpx.ErrNotFound, "Payment not found")
	ErrDriverNotFound       = httpx.NewError(httpx.ErrNotFound, "Driver not found")
	ErrPaymentIDRequired    = httpx.Validation("Payment ID is required")
	ErrPaymentFields        = httpx.Validation("Missing required fields: amount, paymentDate")
	ErrPaymentMismatch      = httpx.Validation("Payment does not belong to the specified invoice")
	ErrInvalidAmount        = httpx.Validation("Payment amount must be greater than zero")
	ErrInvalidStatus        = httpx.Validation("Invalid status provided")
	ErrSameStatus           = httpx.Validation("The invoice is already in the requested status")
	ErrNotPending           = httpx.Validation("Invoice is not in pending status")
	ErrInactiveDriver       = httpx.Validation("Cannot create invoices for inactive drivers. Please activate the driver first.")
	ErrDuplicateInvoiceNum  = httpx.Validation("Invoice number already exists")
	ErrInvalidAssignments   = httpx.Validation("One or more assignments are invalid or unauthorized")
	ErrInvalidChargeType    = httpx.Validation("Invalid charge type")
	ErrInvalidPeriod        = httpx.Validation("fromDate must not be after toDate")
	ErrDriverPhoneRequired  = httpx.Validation("Driver phone number is required")
	ErrInvalidInitialStatus = httpx.Validation("New invoices must be PENDING or APPROVED")
)
