package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/money"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/shared"
)

// Auditor records business events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder counts committed reconciliations.
type Recorder interface {
	ObserveReconciliation(kind, operation, status string)
}

const metricKind = "customer"

// Service orchestrates invoice use cases.
type Service struct {
	repo    Repository
	audit   Auditor
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// Option customises the Service.
type Option func(*Service)

// WithAuditor attaches an audit sink.
func WithAuditor(a Auditor) Option { return func(s *Service) { s.audit = a } }

// WithRecorder attaches a metrics sink.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.metrics = r } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService constructs the invoice service.
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

// CreateInvoice stores a new NOT_PAID invoice.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if err := validateTotals(input.TotalAmount, input.DueNetDays); err != nil {
		return Invoice{}, err
	}
	now := s.now()
	inv := Invoice{
		ID:          uuid.New(),
		CarrierID:   input.CarrierID,
		UserID:      input.UserID,
		LoadID:      input.LoadID,
		InvoiceNum:  input.InvoiceNum,
		TotalAmount: money.Round2(input.TotalAmount),
		InvoicedAt:  input.InvoicedAt,
		DueNetDays:  input.DueNetDays,
		DueDate:     DueDateFor(input.InvoicedAt, input.DueNetDays),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExtraItems:  newExtraItems(input.ExtraItems),
	}
	DeriveState(inv.TotalAmount, nil).Apply(&inv)

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if inv.LoadID != nil {
			ok, err := tx.LoadExists(ctx, inv.CarrierID, *inv.LoadID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrLoadNotFound
			}
		}
		if inv.InvoiceNum == 0 {
			num, err := tx.NextInvoiceNum(ctx, inv.CarrierID)
			if err != nil {
				return err
			}
			inv.InvoiceNum = num
		} else if err := ensureUniqueNum(ctx, tx, inv.CarrierID, inv.InvoiceNum, uuid.Nil); err != nil {
			return err
		}
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		return tx.ReplaceExtraItems(ctx, inv.ID, inv.ExtraItems)
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: create: %w", err)
	}
	return inv, nil
}

// GetInvoice loads one of the carrier's invoices.
func (s *Service) GetInvoice(ctx context.Context, carrierID, id uuid.UUID, expand Expand) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, carrierID, id, expand)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: get: %w", err)
	}
	return inv, nil
}

// ListInvoices pages the carrier's invoices and reports the filtered total.
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	switch Status(req.Status) {
	case "", StatusNotPaid, StatusPartiallyPaid, StatusPaid, FilterOverdue:
	default:
		return nil, 0, ErrInvalidStatusFilter
	}
	if req.Now.IsZero() {
		req.Now = s.now()
	}
	items, total, err := s.repo.ListInvoices(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("invoices: list: %w", err)
	}
	return items, total, nil
}

// UpdateInvoice edits an invoice and reconciles it against its payments.
func (s *Service) UpdateInvoice(ctx context.Context, input UpdateInvoiceInput) (Invoice, error) {
	if err := validateTotals(input.TotalAmount, input.DueNetDays); err != nil {
		return Invoice{}, err
	}
	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, input.CarrierID, input.ID)
		if err != nil {
			return err
		}
		if input.InvoiceNum != 0 && input.InvoiceNum != inv.InvoiceNum {
			if err := ensureUniqueNum(ctx, tx, inv.CarrierID, input.InvoiceNum, inv.ID); err != nil {
				return err
			}
			inv.InvoiceNum = input.InvoiceNum
		}
		payments, err := tx.ListPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		inv.TotalAmount = money.Round2(input.TotalAmount)
		inv.InvoicedAt = input.InvoicedAt
		inv.DueNetDays = input.DueNetDays
		inv.DueDate = DueDateFor(input.InvoicedAt, input.DueNetDays)
		inv.UpdatedAt = s.now()
		inv.ExtraItems = newExtraItems(input.ExtraItems)
		DeriveState(inv.TotalAmount, payments).Apply(&inv)

		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		if err := tx.ReplaceExtraItems(ctx, inv.ID, inv.ExtraItems); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: update: %w", err)
	}
	s.observe("invoice.update", updated.Status)
	return updated, nil
}

// DeleteInvoice removes an invoice together with its payments and extra items.
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
		return fmt.Errorf("invoices: delete: %w", err)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:   userID,
		CarrierID: carrierID,
		Action:    "invoice.delete",
		Entity:    "invoice",
		EntityID:  removed.ID.String(),
		Meta:      map[string]any{"invoiceNum": removed.InvoiceNum, "paidAmount": removed.PaidAmount.String()},
	})
	return nil
}

// AddPayment records a payment and reconciles the invoice in one transaction.
func (s *Service) AddPayment(ctx context.Context, input AddPaymentInput) (Invoice, error) {
	// stored at cents, so sub-cent amounts count as zero
	amount := money.Round2(input.Amount)
	if !amount.IsPositive() {
		return Invoice{}, ErrInvalidAmount
	}
	var updated Invoice
	var payment Payment
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
			ID:        uuid.New(),
			InvoiceID: inv.ID,
			CarrierID: inv.CarrierID,
			UserID:    input.UserID,
			Amount:    amount,
			PaidAt:    input.PaidAt,
			CreatedAt: s.now(),
		}
		state := DeriveState(inv.TotalAmount, append(payments, payment))
		// the new payment defines lastPaymentAt even when back-dated
		paidAt := payment.PaidAt
		state.LastPaymentAt = &paidAt

		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		if err := tx.SaveState(ctx, inv.ID, state, s.now()); err != nil {
			return err
		}
		state.Apply(&inv)
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: add payment: %w", err)
	}
	s.observe("payment.create", updated.Status)
	s.record(ctx, shared.AuditLog{
		ActorID:   input.UserID,
		CarrierID: input.CarrierID,
		Action:    "invoice.payment.create",
		Entity:    "invoice",
		EntityID:  updated.ID.String(),
		Meta:      map[string]any{"paymentId": payment.ID.String(), "amount": payment.Amount.String(), "status": string(updated.Status)},
	})
	return updated, nil
}

// DeletePayment removes a payment and reconciles the invoice from the
// payments that remain.
func (s *Service) DeletePayment(ctx context.Context, input DeletePaymentInput) (Invoice, error) {
	var updated Invoice
	var removed Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, input.CarrierID, input.InvoiceID)
		if err != nil {
			if isNotFound(err) {
				return ErrPaymentNotFound
			}
			return err
		}
		payment, err := tx.GetPayment(ctx, input.CarrierID, input.PaymentID)
		if err != nil {
			return err
		}
		if payment.InvoiceID != inv.ID {
			return ErrPaymentMismatch
		}
		if err := tx.DeletePayment(ctx, payment.ID); err != nil {
			return err
		}
		remaining, err := tx.ListPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		state := DeriveState(inv.TotalAmount, remaining)
		if err := tx.SaveState(ctx, inv.ID, state, s.now()); err != nil {
			return err
		}
		state.Apply(&inv)
		updated = inv
		removed = payment
		return nil
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: delete payment: %w", err)
	}
	s.observe("payment.delete", updated.Status)
	s.record(ctx, shared.AuditLog{
		ActorID:   input.UserID,
		CarrierID: input.CarrierID,
		Action:    "invoice.payment.delete",
		Entity:    "invoice",
		EntityID:  updated.ID.String(),
		Meta:      map[string]any{"paymentId": removed.ID.String(), "amount": removed.Amount.String(), "status": string(updated.Status)},
	})
	return updated, nil
}

// Stats summarises paid this month, unpaid and overdue balances.
func (s *Service) Stats(ctx context.Context, carrierID uuid.UUID) (Stats, error) {
	stats, err := s.repo.Stats(ctx, carrierID, s.now())
	if err != nil {
		return Stats{}, fmt.Errorf("invoices: stats: %w", err)
	}
	return stats, nil
}

func (s *Service) observe(operation string, status Status) {
	if s.metrics != nil {
		s.metrics.ObserveReconciliation(metricKind, operation, string(status))
	}
}

// record is best-effort: the business change is already committed.
func (s *Service) record(ctx context.Context, entry shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

func validateTotals(total decimal.Decimal, dueNetDays int) error {
	if total.IsNegative() {
		return ErrInvalidTotal
	}
	if dueNetDays < 0 {
		return ErrInvalidDueNetDays
	}
	return nil
}

func ensureUniqueNum(ctx context.Context, tx TxRepository, carrierID uuid.UUID, num int, exclude uuid.UUID) error {
	exists, err := tx.InvoiceNumExists(ctx, carrierID, num, exclude)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateInvoiceNum
	}
	return nil
}

func newExtraItems(inputs []ExtraItemInput) []ExtraItem {
	items := make([]ExtraItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, ExtraItem{ID: uuid.New(), Title: in.Title, Amount: money.Round2(in.Amount)})
	}
	return items
}
