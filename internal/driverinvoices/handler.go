package driverinvoices

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/shared"
)

// Handler exposes the driver invoice JSON API and the driver portal.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	idempotency *shared.IdempotencyStore
}

// NewHandler builds a Handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator(), idempotency: idempotency}
}

// MountRoutes registers the carrier facing routes. Callers must install
// shared.RequireTenant.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/stats", h.stats)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.remove)
		r.Post("/approve", h.approve)
		r.Post("/status", h.setStatus)
		r.With(shared.Idempotent(h.idempotency, "driver_invoice_payments", h.logger)).Post("/payments", h.addPayment)
		r.Delete("/payments/{paymentId}", h.deletePayment)
		r.Delete("/payments/", h.deletePayment)
	})
}

// MountPortalRoutes registers the unauthenticated driver routes, limited to
// requestsPerMinute per client IP.
func (h *Handler) MountPortalRoutes(r chi.Router, requestsPerMinute int) {
	r.Use(httprate.Limit(requestsPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		}),
	))
	r.Get("/invoices/{id}", h.portalGet)
	r.Post("/invoices/{id}/approve", h.portalApprove)
}

type assignmentRequest struct {
	ID                  *uuid.UUID       `json:"id" validate:"required"`
	LoadID              *uuid.UUID       `json:"loadId"`
	ChargeType          string           `json:"chargeType" validate:"required,oneof=FIXED_PAY PER_MILE PER_HOUR PERCENTAGE_OF_LOAD"`
	ChargeValue         *decimal.Decimal `json:"chargeValue" validate:"required"`
	BilledDistanceMiles *decimal.Decimal `json:"billedDistanceMiles"`
	BilledDurationHours *decimal.Decimal `json:"billedDurationHours"`
	BilledLoadRate      *decimal.Decimal `json:"billedLoadRate"`
	EmptyMiles          *decimal.Decimal `json:"emptyMiles"`
}

type lineItemRequest struct {
	Description string           `json:"description" validate:"required"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	ChargeID    *uuid.UUID       `json:"chargeId"`
}

type createRequest struct {
	DriverID    *uuid.UUID          `json:"driverId" validate:"required"`
	FromDate    *time.Time          `json:"fromDate" validate:"required"`
	ToDate      *time.Time          `json:"toDate" validate:"required"`
	InvoiceNum  int                 `json:"invoiceNum" validate:"gte=0"`
	Status      string              `json:"status"`
	Notes       string              `json:"notes"`
	Assignments []assignmentRequest `json:"assignments" validate:"dive"`
	LineItems   []lineItemRequest   `json:"lineItems" validate:"dive"`
}

func (req createRequest) input(tenant shared.Tenant) CreateInvoiceInput {
	in := CreateInvoiceInput{
		CarrierID:  tenant.CarrierID,
		UserID:     tenant.UserID,
		DriverID:   *req.DriverID,
		InvoiceNum: req.InvoiceNum,
		Status:     Status(req.Status),
		FromDate:   *req.FromDate,
		ToDate:     *req.ToDate,
		Notes:      req.Notes,
	}
	for _, a := range req.Assignments {
		in.Assignments = append(in.Assignments, AssignmentInput{
			AssignmentID:        *a.ID,
			LoadID:              a.LoadID,
			ChargeType:          ChargeType(a.ChargeType),
			ChargeValue:         *a.ChargeValue,
			BilledDistanceMiles: a.BilledDistanceMiles,
			BilledDurationHours: a.BilledDurationHours,
			BilledLoadRate:      a.BilledLoadRate,
			EmptyMiles:          a.EmptyMiles,
		})
	}
	for _, item := range req.LineItems {
		in.LineItems = append(in.LineItems, LineItemInput{Description: item.Description, Amount: *item.Amount, ChargeID: item.ChargeID})
	}
	return in
}

type paymentRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	PaymentDate *time.Time       `json:"paymentDate"`
	Notes       string           `json:"notes"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type portalRequest struct {
	DriverPhone string `json:"driverPhone"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	query := r.URL.Query()
	page, err := shared.ParsePageQuery(query)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	items, total, err := h.service.ListInvoices(r.Context(), ListRequest{
		CarrierID: tenant.CarrierID,
		Status:    Status(strings.ToUpper(query.Get("status"))),
		Limit:     page.Limit,
		Offset:    page.Offset,
		SortBy:    query.Get("sortBy"),
		SortDir:   query.Get("sortDir"),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []Summary{}
	}
	httpx.OK(w, map[string]any{"metadata": shared.NewPageMetadata(total, page), "invoices": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), req.input(tenant))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"invoiceId": inv.ID})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, ok := h.pathID(w, r, "id", ErrInvoiceNotFound)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), tenant.CarrierID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, ok := h.pathID(w, r, "id", ErrInvoiceNotFound)
	if !ok {
		return
	}
	if err := h.service.DeleteInvoice(r.Context(), tenant.CarrierID, tenant.UserID, id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"message": "Invoice deleted successfully"})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, ok := h.pathID(w, r, "id", ErrApproveNotFound)
	if !ok {
		return
	}
	status, err := h.service.Approve(r.Context(), tenant.CarrierID, tenant.UserID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"message": "Invoice approved successfully", "status": status})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, ok := h.pathID(w, r, "id", ErrInvoiceNotFound)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	status, err := h.service.SetStatus(r.Context(), tenant.CarrierID, tenant.UserID, id, req.Status)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"message": "Invoice status updated successfully", "status": status})
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, ok := h.pathID(w, r, "id", ErrInvoiceNotFound)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if req.Amount == nil || req.PaymentDate == nil {
		httpx.RespondError(w, h.logger, ErrPaymentFields)
		return
	}
	paymentID, err := h.service.AddPayment(r.Context(), AddPaymentInput{
		CarrierID:   tenant.CarrierID,
		UserID:      tenant.UserID,
		InvoiceID:   id,
		Amount:      *req.Amount,
		PaymentDate: *req.PaymentDate,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"paymentId": paymentID})
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	raw := chi.URLParam(r, "paymentId")
	if raw == "" {
		httpx.RespondError(w, h.logger, ErrPaymentIDRequired)
		return
	}
	paymentID, err := uuid.Parse(raw)
	if err != nil {
		httpx.RespondError(w, h.logger, ErrPaymentNotFound)
		return
	}
	// a malformed parent id stays uuid.Nil and fails the ownership check
	invoiceID, _ := uuid.Parse(chi.URLParam(r, "id"))
	_, err = h.service.DeletePayment(r.Context(), DeletePaymentInput{
		CarrierID: tenant.CarrierID,
		UserID:    tenant.UserID,
		InvoiceID: invoiceID,
		PaymentID: paymentID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"message": "Payment deleted successfully"})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	stats, err := h.service.Stats(r.Context(), tenant.CarrierID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"stats": stats})
}

func (h *Handler) portalGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", ErrPortalNotFound)
	if !ok {
		return
	}
	inv, err := h.service.PortalInvoice(r.Context(), id, r.URL.Query().Get("driverPhone"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) portalApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", ErrPortalNotFound)
	if !ok {
		return
	}
	phone := r.URL.Query().Get("driverPhone")
	if phone == "" && r.Body != nil {
		var req portalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			phone = req.DriverPhone
		}
	}
	status, err := h.service.PortalApprove(r.Context(), id, phone)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"message": "Invoice approved successfully", "status": status})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string, notFound error) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.RespondError(w, h.logger, notFound)
		return uuid.Nil, false
	}
	return id, true
}
