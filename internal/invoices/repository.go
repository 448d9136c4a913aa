package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/db"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
)

// Repository exposes persistence operations for invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, carrierID, id uuid.UUID, expand Expand) (Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	Stats(ctx context.Context, carrierID uuid.UUID, now time.Time) (Stats, error)
}

// TxRepository defines operations within a transaction. LockInvoice holds the
// invoice row until the transaction ends, serialising payment mutations.
type TxRepository interface {
	LockInvoice(ctx context.Context, carrierID, id uuid.UUID) (Invoice, error)
	ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)
	GetPayment(ctx context.Context, carrierID, paymentID uuid.UUID) (Payment, error)
	InsertPayment(ctx context.Context, payment Payment) error
	DeletePayment(ctx context.Context, paymentID uuid.UUID) error
	SaveState(ctx context.Context, invoiceID uuid.UUID, state State, at time.Time) error

	LoadExists(ctx context.Context, carrierID, loadID uuid.UUID) (bool, error)
	NextInvoiceNum(ctx context.Context, carrierID uuid.UUID) (int, error)
	InvoiceNumExists(ctx context.Context, carrierID uuid.UUID, num int, exclude uuid.UUID) (bool, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
	ReplaceExtraItems(ctx context.Context, invoiceID uuid.UUID, items []ExtraItem) error
	DeleteInvoice(ctx context.Context, id uuid.UUID) error
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// WithTx runs fn in a READ COMMITTED transaction. Writers lock the invoice
// row first, so each statement after the lock sees every committed payment.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const invoiceColumns = `id, carrier_id, user_id, load_id, invoice_num, status, total_amount, paid_amount,
	remaining_amount, invoiced_at, due_net_days, due_date, last_payment_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.CarrierID, &inv.UserID, &inv.LoadID, &inv.InvoiceNum, &status,
		&inv.TotalAmount, &inv.PaidAmount, &inv.RemainingAmount, &inv.InvoicedAt, &inv.DueNetDays,
		&inv.DueDate, &inv.LastPaymentAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	inv.Status = Status(status)
	return inv, nil
}

func (r *pgRepository) GetInvoice(ctx context.Context, carrierID, id uuid.UUID, expand Expand) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND carrier_id = $2`, id, carrierID))
	if err != nil {
		return Invoice{}, err
	}
	if expand.ExtraItems {
		if inv.ExtraItems, err = listExtraItems(ctx, r.pool, inv.ID); err != nil {
			return Invoice{}, err
		}
	}
	if expand.Payments {
		if inv.Payments, err = listPayments(ctx, r.pool, inv.ID); err != nil {
			return Invoice{}, err
		}
	}
	return inv, nil
}

var sortColumns = map[string]string{
	"invoiceNum":      "invoice_num",
	"invoicedAt":      "invoiced_at",
	"dueDate":         "due_date",
	"totalAmount":     "total_amount",
	"remainingAmount": "remaining_amount",
	"status":          "status",
	"createdAt":       "created_at",
	"lastPaymentAt":   "last_payment_at",
}

func orderClause(sortBy, sortDir string) string {
	column, ok := sortColumns[sortBy]
	if !ok {
		return "created_at DESC"
	}
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	return column + " " + dir + ", id"
}

func listWhere(req ListInvoicesRequest) (string, []any) {
	where := []string{"carrier_id = $1"}
	args := []any{req.CarrierID}
	switch req.Status {
	case "":
	case FilterOverdue:
		args = append(args, req.Now)
		where = append(where, fmt.Sprintf("due_date < $%d", len(args)),
			"status IN ('NOT_PAID', 'PARTIALLY_PAID')", "due_net_days > 0")
	default:
		args = append(args, req.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	return strings.Join(where, " AND "), args
}

func (r *pgRepository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	where, args := listWhere(req)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any{}, args...), req.Limit, req.Offset)
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, orderClause(req.SortBy, req.SortDir), len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *pgRepository) Stats(ctx context.Context, carrierID uuid.UUID, now time.Time) (Stats, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var stats Stats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM invoice_payments
			WHERE carrier_id = $1 AND paid_at >= $2`, carrierID, monthStart).Scan(&stats.TotalPaid)
	})
	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(remaining_amount), 0) FROM invoices
			WHERE carrier_id = $1 AND status IN ('NOT_PAID', 'PARTIALLY_PAID')`, carrierID).Scan(&stats.TotalUnpaid)
	})
	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(remaining_amount), 0) FROM invoices
			WHERE carrier_id = $1 AND status IN ('NOT_PAID', 'PARTIALLY_PAID') AND due_date < $2 AND due_net_days > 0`,
			carrierID, now).Scan(&stats.TotalOverdue)
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) LockInvoice(ctx context.Context, carrierID, id uuid.UUID) (Invoice, error) {
	return scanInvoice(t.tx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND carrier_id = $2 FOR UPDATE`, id, carrierID))
}

func (t *pgTxRepository) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	return listPayments(ctx, t.tx, invoiceID)
}

func (t *pgTxRepository) GetPayment(ctx context.Context, carrierID, paymentID uuid.UUID) (Payment, error) {
	var p Payment
	err := t.tx.QueryRow(ctx, `SELECT id, invoice_id, carrier_id, user_id, amount, paid_at, created_at
		FROM invoice_payments WHERE id = $1 AND carrier_id = $2`, paymentID, carrierID).
		Scan(&p.ID, &p.InvoiceID, &p.CarrierID, &p.UserID, &p.Amount, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (t *pgTxRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO invoice_payments (id, invoice_id, carrier_id, user_id, amount, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, p.ID, p.InvoiceID, p.CarrierID, p.UserID, p.Amount, p.PaidAt, p.CreatedAt)
	return err
}

func (t *pgTxRepository) DeletePayment(ctx context.Context, paymentID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM invoice_payments WHERE id = $1`, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (t *pgTxRepository) SaveState(ctx context.Context, invoiceID uuid.UUID, s State, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET paid_amount = $2, remaining_amount = $3, status = $4,
		last_payment_at = $5, updated_at = $6 WHERE id = $1`,
		invoiceID, s.PaidAmount, s.RemainingAmount, string(s.Status), s.LastPaymentAt, at)
	return err
}

func (t *pgTxRepository) LoadExists(ctx context.Context, carrierID, loadID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loads WHERE id = $1 AND carrier_id = $2)`, loadID, carrierID).Scan(&exists)
	return exists, err
}

func (t *pgTxRepository) NextInvoiceNum(ctx context.Context, carrierID uuid.UUID) (int, error) {
	// serialise numbering per carrier for the rest of the transaction
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('invoices:' || $1::text))`, carrierID.String()); err != nil {
		return 0, err
	}
	var next int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(invoice_num), 0) + 1 FROM invoices WHERE carrier_id = $1`, carrierID).Scan(&next)
	return next, err
}

func (t *pgTxRepository) InvoiceNumExists(ctx context.Context, carrierID uuid.UUID, num int, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE carrier_id = $1 AND invoice_num = $2 AND id <> $3)`,
		carrierID, num, exclude).Scan(&exists)
	return exists, err
}

func (t *pgTxRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		inv.ID, inv.CarrierID, inv.UserID, inv.LoadID, inv.InvoiceNum, string(inv.Status), inv.TotalAmount,
		inv.PaidAmount, inv.RemainingAmount, inv.InvoicedAt, inv.DueNetDays, inv.DueDate, inv.LastPaymentAt,
		inv.CreatedAt, inv.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateInvoiceNum
	}
	return err
}

func (t *pgTxRepository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET invoice_num = $2, total_amount = $3, paid_amount = $4,
		remaining_amount = $5, status = $6, invoiced_at = $7, due_net_days = $8, due_date = $9,
		last_payment_at = $10, updated_at = $11 WHERE id = $1`,
		inv.ID, inv.InvoiceNum, inv.TotalAmount, inv.PaidAmount, inv.RemainingAmount, string(inv.Status),
		inv.InvoicedAt, inv.DueNetDays, inv.DueDate, inv.LastPaymentAt, inv.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateInvoiceNum
	}
	return err
}

func (t *pgTxRepository) ReplaceExtraItems(ctx context.Context, invoiceID uuid.UUID, items []ExtraItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_extra_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO invoice_extra_items (id, invoice_id, title, amount) VALUES ($1, $2, $3, $4)`,
			item.ID, invoiceID, item.Title, item.Amount)
	}
	if batch.Len() == 0 {
		return nil
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTxRepository) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	// child rows go with ON DELETE CASCADE
	_, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	return err
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listPayments(ctx context.Context, q rowQuerier, invoiceID uuid.UUID) ([]Payment, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, carrier_id, user_id, amount, paid_at, created_at
		FROM invoice_payments WHERE invoice_id = $1 ORDER BY paid_at DESC, created_at DESC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.CarrierID, &p.UserID, &p.Amount, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func listExtraItems(ctx context.Context, q rowQuerier, invoiceID uuid.UUID) ([]ExtraItem, error) {
	rows, err := q.Query(ctx, `SELECT id, title, amount FROM invoice_extra_items WHERE invoice_id = $1 ORDER BY title`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ExtraItem{}
	for rows.Next() {
		var item ExtraItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Amount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func isNotFound(err error) bool {
	return errors.Is(err, httpx.ErrNotFound)
}
