package invoices

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/shared"
)

// Handler exposes the invoice JSON API.
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

// MountRoutes registers invoice routes. Callers must install shared.RequireTenant.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/stats", h.stats)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.remove)
		r.With(shared.Idempotent(h.idempotency, "invoice_payments", h.logger)).Post("/payments", h.addPayment)
		r.Delete("/payments/{pid}", h.deletePayment)
	})
}

type extraItemRequest struct {
	Title  string           `json:"title" validate:"required"`
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type invoiceRequest struct {
	InvoiceNum  int                `json:"invoiceNum" validate:"gte=0"`
	LoadID      *uuid.UUID         `json:"loadId"`
	TotalAmount *decimal.Decimal   `json:"totalAmount" validate:"required"`
	InvoicedAt  *time.Time         `json:"invoicedAt" validate:"required"`
	DueNetDays  int                `json:"dueNetDays"`
	ExtraItems  []extraItemRequest `json:"extraItems" validate:"dive"`
}

func (req invoiceRequest) extraItems() []ExtraItemInput {
	items := make([]ExtraItemInput, 0, len(req.ExtraItems))
	for _, item := range req.ExtraItems {
		items = append(items, ExtraItemInput{Title: item.Title, Amount: *item.Amount})
	}
	return items
}

type paymentRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
	PaidAt *time.Time       `json:"paidAt" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	query := r.URL.Query()
	page, err := shared.ParsePageQuery(query)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	items, total, err := h.service.ListInvoices(r.Context(), ListInvoicesRequest{
		CarrierID: tenant.CarrierID,
		Status:    strings.ToUpper(query.Get("status")),
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
		items = []Invoice{}
	}
	httpx.OK(w, map[string]any{"metadata": shared.NewPageMetadata(total, page), "invoices": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	var req invoiceRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		CarrierID:   tenant.CarrierID,
		UserID:      tenant.UserID,
		LoadID:      req.LoadID,
		InvoiceNum:  req.InvoiceNum,
		TotalAmount: *req.TotalAmount,
		InvoicedAt:  *req.InvoicedAt,
		DueNetDays:  req.DueNetDays,
		ExtraItems:  req.extraItems(),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"invoice": inv})
}

func parseExpand(raw string) Expand {
	return Expand{
		ExtraItems: strings.Contains(raw, "extraItems"),
		Payments:   strings.Contains(raw, "payments"),
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, ok := h.pathID(w, r, "id", ErrInvoiceNotFound)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), tenant.CarrierID, id, parseExpand(r.URL.Query().Get("expand")))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"invoice": inv})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, ok := h.pathID(w, r, "id", ErrInvoiceNotFound)
	if !ok {
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.UpdateInvoice(r.Context(), UpdateInvoiceInput{
		CarrierID:   tenant.CarrierID,
		ID:          id,
		InvoiceNum:  req.InvoiceNum,
		TotalAmount: *req.TotalAmount,
		InvoicedAt:  *req.InvoicedAt,
		DueNetDays:  req.DueNetDays,
		ExtraItems:  req.extraItems(),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"updatedInvoice": inv})
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
	httpx.OK(w, map[string]any{"result": "Invoice deleted"})
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, ok := h.pathID(w, r, "id", ErrInvoiceNotFound)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.AddPayment(r.Context(), AddPaymentInput{
		CarrierID: tenant.CarrierID,
		UserID:    tenant.UserID,
		InvoiceID: id,
		Amount:    *req.Amount,
		PaidAt:    *req.PaidAt,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"updatedInvoice": inv})
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, ok := h.pathID(w, r, "id", ErrPaymentNotFound)
	if !ok {
		return
	}
	pid, ok := h.pathID(w, r, "pid", ErrPaymentNotFound)
	if !ok {
		return
	}
	_, err := h.service.DeletePayment(r.Context(), DeletePaymentInput{
		CarrierID: tenant.CarrierID,
		UserID:    tenant.UserID,
		InvoiceID: id,
		PaymentID: pid,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"result": "Invoice payment deleted"})
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

// pathID parses a UUID path parameter. Malformed ids cannot exist, so they
// are answered with notFound.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string, notFound error) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.RespondError(w, h.logger, notFound)
		return uuid.Nil, false
	}
	return id, true
}
