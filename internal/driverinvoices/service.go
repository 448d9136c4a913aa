package driverinvoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/money"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/shared"
)

// Notifier delivers approval notifications, typically by enqueueing a job.
type Notifier interface {
	NotifyDriverInvoiceApproved(ctx context.Context, notice ApprovalNotice) error
}

// Auditor records business events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder counts committed reconciliations.
type Recorder interface {
	ObserveReconciliation(kind, operation, status string)
}

const metricKind = "driver"

// Service orchestrates driver invoice use cases.
type Service struct {
	repo     Repository
	notifier Notifier
	audit    Auditor
	metrics  Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises the Service.
type Option func(*Service)

// WithNotifier attaches the approval notification sink.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithAuditor attaches an audit sink.
func WithAuditor(a Auditor) Option { return func(s *Service) { s.audit = a } }

// WithRecorder attaches a metrics sink.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.metrics = r } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService constructs the driver invoice service.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInvoice prices the assignments and line items and stores the invoice.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	status := input.Status
	switch status {
	case "":
		status = StatusPending
	case StatusPending, StatusApproved:
	default:
		return Invoice{}, ErrInvalidInitialStatus
	}
	if input.FromDate.After(input.ToDate) {
		return Invoice{}, ErrInvalidPeriod
	}
	now := s.now()
	inv := Invoice{
		ID:          uuid.New(),
		CarrierID:   input.CarrierID,
		DriverID:    input.DriverID,
		CreatedByID: input.UserID,
		InvoiceNum:  input.InvoiceNum,
		Status:      status,
		FromDate:    input.FromDate,
		ToDate:      input.ToDate,
		Notes:       strings.TrimSpace(input.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var loadIDs []uuid.UUID
	for _, in := range input.Assignments {
		a, err := buildAssignment(in)
		if err != nil {
			return Invoice{}, err
		}
		a.ID = uuid.New()
		inv.Assignments = append(inv.Assignments, a)
		if a.LoadID != nil {
			loadIDs = append(loadIDs, *a.LoadID)
		}
	}
	for _, in := range input.LineItems {
		inv.LineItems = append(inv.LineItems, LineItem{
			ID:          uuid.New(),
			Description: in.Description,
			Amount:      money.Round2(in.Amount),
			ChargeID:    in.ChargeID,
			CreatedAt:   now,
		})
	}
	inv.TotalAmount = InvoiceTotal(inv.Assignments, inv.LineItems)

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		driver, err := tx.FindDriver(ctx, inv.CarrierID, inv.DriverID)
		if err != nil {
			return err
		}
		if !driver.Active {
			return ErrInactiveDriver
		}
		owned, err := tx.LoadsOwned(ctx, inv.CarrierID, uniqueIDs(loadIDs))
		if err != nil {
			return err
		}
		if !owned {
			return ErrInvalidAssignments
		}
		if inv.InvoiceNum == 0 {
			if inv.InvoiceNum, err = tx.NextInvoiceNum(ctx, inv.CarrierID); err != nil {
				return err
			}
		} else {
			exists, err := tx.InvoiceNumExists(ctx, inv.CarrierID, inv.InvoiceNum)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateInvoiceNum
			}
		}
		inv.Driver = &driver
		return tx.InsertInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("driverinvoices: create: %w", err)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:   input.UserID,
		CarrierID: inv.CarrierID,
		Action:    "driver_invoice.create",
		Entity:    "driver_invoice",
		EntityID:  inv.ID.String(),
		Meta:      map[string]any{"invoiceNum": inv.InvoiceNum, "totalAmount": inv.TotalAmount.String()},
	})
	return inv, nil
}

// GetInvoice loads one of the carrier's driver invoices with its children.
func (s *Service) GetInvoice(ctx context.Context, carrierID, id uuid.UUID) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, carrierID, id)
	if err != nil {
		return Invoice{}, fmt.Errorf("driverinvoices: get: %w", err)
	}
	return inv, nil
}

// ListInvoices pages the carrier's driver invoices.
func (s *Service) ListInvoices(ctx context.Context, req ListRequest) ([]Summary, int, error) {
	if req.Status != "" {
		if _, ok := ParseStatus(string(req.Status)); !ok {
			return nil, 0, ErrInvalidStatus
		}
	}
	items, total, err := s.repo.ListInvoices(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("driverinvoices: list: %w", err)
	}
	return items, total, nil
}

// DeleteInvoice removes a driver invoice and everything hanging off it.
func (s *Service) DeleteInvoice(ctx context.Context, carrierID, userID, id uuid.UUID) error {
	var removed Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, carrierID, id)
		if err != nil {
			return err
		}
		removed = inv
		return tx.DeleteInvoice(ctx, inv.ID)
	})
	if err != nil {
		return fmt.Errorf("driverinvoices: delete: %w", err)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:   userID,
		CarrierID: carrierID,
		Action:    "driver_invoice.delete",
		Entity:    "driver_invoice",
		EntityID:  removed.ID.String(),
		Meta:      map[string]any{"invoiceNum": removed.InvoiceNum, "status": string(removed.Status)},
	})
	return nil
}

// AddPayment records a payout and re-derives the invoice status from the
// full payout set in one transaction. It returns the new payment id.
func (s *Service) AddPayment(ctx context.Context, input AddPaymentInput) (uuid.UUID, error) {
	if input.PaymentDate.IsZero() {
		return uuid.Nil, ErrPaymentFields
	}
	amount := money.Round2(input.Amount)
	if !amount.IsPositive() {
		return uuid.Nil, ErrInvalidAmount
	}
	var payment Payment
	var state State
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, input.CarrierID, input.InvoiceID)
		if err != nil {
			return err
		}
		payments, err := tx.ListPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		payment = Payment{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			CarrierID:   inv.CarrierID,
			CreatedBy:   input.UserID,
			Amount:      amount,
			PaymentDate: input.PaymentDate,
			Notes:       input.Notes,
			CreatedAt:   s.now(),
		}
		state = DeriveState(inv.TotalAmount, append(payments, payment))
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		return tx.SetStatus(ctx, inv.ID, state.Status, s.now())
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("driverinvoices: add payment: %w", err)
	}
	s.observe("payment.create", state.Status)
	s.record(ctx, shared.AuditLog{
		ActorID:   input.UserID,
		CarrierID: input.CarrierID,
		Action:    "driver_invoice.payment.create",
		Entity:    "driver_invoice",
		EntityID:  input.InvoiceID.String(),
		Meta:      map[string]any{"paymentId": payment.ID.String(), "amount": payment.Amount.String(), "status": string(state.Status)},
	})
	return payment.ID, nil
}

// DeletePayment removes a payout and re-derives the status from the payouts
// that remain.
func (s *Service) DeletePayment(ctx context.Context, input DeletePaymentInput) (Status, error) {
	if input.PaymentID == uuid.Nil {
		return "", ErrPaymentIDRequired
	}
	var state State
	var removed Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment, err := tx.GetPayment(ctx, input.CarrierID, input.PaymentID)
		if err != nil {
			return err
		}
		if payment.InvoiceID != input.InvoiceID {
			return ErrPaymentMismatch
		}
		inv, err := tx.LockInvoice(ctx, input.CarrierID, payment.InvoiceID)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, payment.ID); err != nil {
			return err
		}
		remaining, err := tx.ListPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		state = DeriveState(inv.TotalAmount, remaining)
		removed = payment
		return tx.SetStatus(ctx, inv.ID, state.Status, s.now())
	})
	if err != nil {
		return "", fmt.Errorf("driverinvoices: delete payment: %w", err)
	}
	s.observe("payment.delete", state.Status)
	s.record(ctx, shared.AuditLog{
		ActorID:   input.UserID,
		CarrierID: input.CarrierID,
		Action:    "driver_invoice.payment.delete",
		Entity:    "driver_invoice",
		EntityID:  input.InvoiceID.String(),
		Meta:      map[string]any{"paymentId": removed.ID.String(), "amount": removed.Amount.String(), "status": string(state.Status)},
	})
	return state.Status, nil
}

// Approve moves a PENDING invoice of the carrier to APPROVED.
func (s *Service) Approve(ctx context.Context, carrierID, userID, id uuid.UUID) (Status, error) {
	notice, err := s.approve(ctx, carrierID, id, ErrApproveNotFound)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			err = ErrApproveNotFound
		}
		return "", fmt.Errorf("driverinvoices: approve: %w", err)
	}
	s.afterApprove(ctx, userID, carrierID, notice, "driver_invoice.approve")
	return StatusApproved, nil
}

// SetStatus changes the status of a PENDING or APPROVED invoice. Approving
// through here notifies just like Approve.
func (s *Service) SetStatus(ctx context.Context, carrierID, userID, id uuid.UUID, raw string) (Status, error) {
	target, ok := ParseStatus(raw)
	if !ok {
		return "", ErrInvalidStatus
	}
	var notice *ApprovalNotice
	var previous Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, carrierID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusPending && inv.Status != StatusApproved {
			return ErrInvoiceNotFound
		}
		if inv.Status == target {
			return ErrSameStatus
		}
		previous = inv.Status
		if err := tx.SetStatus(ctx, inv.ID, target, s.now()); err != nil {
			return err
		}
		if target == StatusApproved {
			n, err := tx.ApprovalNotice(ctx, inv.ID)
			if err != nil {
				return err
			}
			notice = &n
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("driverinvoices: set status: %w", err)
	}
	if notice != nil {
		s.afterApprove(ctx, userID, carrierID, *notice, "driver_invoice.status")
		return target, nil
	}
	s.record(ctx, shared.AuditLog{
		ActorID:   userID,
		CarrierID: carrierID,
		Action:    "driver_invoice.status",
		Entity:    "driver_invoice",
		EntityID:  id.String(),
		Meta:      map[string]any{"from": string(previous), "to": string(target)},
	})
	return target, nil
}

// Stats summarises driver balances for a carrier.
func (s *Service) Stats(ctx context.Context, carrierID uuid.UUID) (Stats, error) {
	stats, err := s.repo.Stats(ctx, carrierID, s.now())
	if err != nil {
		return Stats{}, fmt.Errorf("driverinvoices: stats: %w", err)
	}
	return stats, nil
}

// PortalInvoice returns an invoice to the driver it belongs to. A phone that
// does not match is indistinguishable from a missing invoice.
func (s *Service) PortalInvoice(ctx context.Context, id uuid.UUID, driverPhone string) (Invoice, error) {
	inv, err := s.portalLookup(ctx, id, driverPhone)
	if err != nil {
		return Invoice{}, fmt.Errorf("driverinvoices: portal get: %w", err)
	}
	return inv, nil
}

// PortalApprove lets the driver approve their own PENDING invoice.
func (s *Service) PortalApprove(ctx context.Context, id uuid.UUID, driverPhone string) (Status, error) {
	inv, err := s.portalLookup(ctx, id, driverPhone)
	if err != nil {
		return "", fmt.Errorf("driverinvoices: portal approve: %w", err)
	}
	notice, err := s.approve(ctx, inv.CarrierID, inv.ID, ErrNotPending)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			err = ErrPortalNotFound
		}
		return "", fmt.Errorf("driverinvoices: portal approve: %w", err)
	}
	s.afterApprove(ctx, uuid.Nil, inv.CarrierID, notice, "driver_invoice.portal_approve")
	return StatusApproved, nil
}

func (s *Service) portalLookup(ctx context.Context, id uuid.UUID, driverPhone string) (Invoice, error) {
	phone := normalizePhone(driverPhone)
	if phone == "" {
		return Invoice{}, ErrDriverPhoneRequired
	}
	inv, err := s.repo.FindInvoice(ctx, id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return Invoice{}, ErrPortalNotFound
		}
		return Invoice{}, err
	}
	if inv.Driver == nil || normalizePhone(inv.Driver.Phone) != phone {
		return Invoice{}, ErrPortalNotFound
	}
	return inv, nil
}

// approve flips PENDING to APPROVED under the row lock; notPending is
// returned when the invoice is in any other status.
func (s *Service) approve(ctx context.Context, carrierID, id uuid.UUID, notPending error) (ApprovalNotice, error) {
	var notice ApprovalNotice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, carrierID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusPending {
			return notPending
		}
		if err := tx.SetStatus(ctx, inv.ID, StatusApproved, s.now()); err != nil {
			return err
		}
		notice, err = tx.ApprovalNotice(ctx, inv.ID)
		return err
	})
	return notice, err
}

// afterApprove runs the post-commit side effects. None of them can undo the
// approval.
func (s *Service) afterApprove(ctx context.Context, actor, carrierID uuid.UUID, notice ApprovalNotice, action string) {
	notice.ApprovedAt = s.now()
	s.observe("invoice.approve", StatusApproved)
	s.record(ctx, shared.AuditLog{
		ActorID:   actor,
		CarrierID: carrierID,
		Action:    action,
		Entity:    "driver_invoice",
		EntityID:  notice.InvoiceID.String(),
		Meta:      map[string]any{"invoiceNum": notice.InvoiceNum, "to": string(StatusApproved)},
	})
	if s.notifier == nil || notice.CarrierEmail == "" {
		return
	}
	if err := s.notifier.NotifyDriverInvoiceApproved(context.WithoutCancel(ctx), notice); err != nil {
		s.logger.Warn("approval notification failed",
			slog.String("invoice_id", notice.InvoiceID.String()), slog.Any("error", err))
	}
}

func (s *Service) observe(operation string, status Status) {
	if s.metrics != nil {
		s.metrics.ObserveReconciliation(metricKind, operation, string(status))
	}
}

func (s *Service) record(ctx context.Context, entry shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

func normalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
