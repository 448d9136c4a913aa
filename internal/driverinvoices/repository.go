package driverinvoices

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
)

// Repository exposes persistence operations for driver invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, carrierID, id uuid.UUID) (Invoice, error)
	// FindInvoice is unscoped and backs the driver portal only.
	FindInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	ListInvoices(ctx context.Context, req ListRequest) ([]Summary, int, error)
	Stats(ctx context.Context, carrierID uuid.UUID, now time.Time) (Stats, error)
}

// TxRepository defines operations within a transaction. LockInvoice holds the
// invoice row until the transaction ends.
type TxRepository interface {
	FindDriver(ctx context.Context, carrierID, driverID uuid.UUID) (Driver, error)
	LoadsOwned(ctx context.Context, carrierID uuid.UUID, loadIDs []uuid.UUID) (bool, error)
	NextInvoiceNum(ctx context.Context, carrierID uuid.UUID) (int, error)
	InvoiceNumExists(ctx context.Context, carrierID uuid.UUID, num int) (bool, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, id uuid.UUID) error

	LockInvoice(ctx context.Context, carrierID, id uuid.UUID) (Invoice, error)
	ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)
	GetPayment(ctx context.Context, carrierID, paymentID uuid.UUID) (Payment, error)
	InsertPayment(ctx context.Context, payment Payment) error
	DeletePayment(ctx context.Context, paymentID uuid.UUID) error
	SetStatus(ctx context.Context, invoiceID uuid.UUID, status Status, at time.Time) error
	ApprovalNotice(ctx context.Context, invoiceID uuid.UUID) (ApprovalNotice, error)
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

// WithTx runs fn in a READ COMMITTED transaction; see invoices.Repository.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const invoiceColumns = `id, carrier_id, driver_id, created_by_id, invoice_num, status, total_amount,
	from_date, to_date, notes, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.CarrierID, &inv.DriverID, &inv.CreatedByID, &inv.InvoiceNum, &status,
		&inv.TotalAmount, &inv.FromDate, &inv.ToDate, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	inv.Status = Status(status)
	return inv, nil
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *pgRepository) GetInvoice(ctx context.Context, carrierID, id uuid.UUID) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM driver_invoices WHERE id = $1 AND carrier_id = $2`, id, carrierID))
	if err != nil {
		return Invoice{}, err
	}
	return r.loadChildren(ctx, inv)
}

func (r *pgRepository) FindInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM driver_invoices WHERE id = $1`, id))
	if err != nil {
		return Invoice{}, err
	}
	return r.loadChildren(ctx, inv)
}

func (r *pgRepository) loadChildren(ctx context.Context, inv Invoice) (Invoice, error) {
	driver, err := findDriver(ctx, r.pool, inv.CarrierID, inv.DriverID)
	if err != nil {
		return Invoice{}, err
	}
	inv.Driver = &driver
	if inv.Assignments, err = listAssignments(ctx, r.pool, inv.ID); err != nil {
		return Invoice{}, err
	}
	if inv.LineItems, err = listLineItems(ctx, r.pool, inv.ID); err != nil {
		return Invoice{}, err
	}
	if inv.Payments, err = listPayments(ctx, r.pool, inv.ID); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

var sortColumns = map[string]string{
	"invoiceNum":  "i.invoice_num",
	"createdAt":   "i.created_at",
	"status":      "i.status",
	"totalAmount": "i.total_amount",
	"fromDate":    "i.from_date",
	"toDate":      "i.to_date",
	"driver.name": "d.name",
}

func orderClause(sortBy, sortDir string) string {
	column, ok := sortColumns[sortBy]
	if !ok {
		return "i.created_at DESC"
	}
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	return column + " " + dir + ", i.id"
}

func (r *pgRepository) ListInvoices(ctx context.Context, req ListRequest) ([]Summary, int, error) {
	where := "i.carrier_id = $1"
	args := []any{req.CarrierID}
	if req.Status != "" {
		args = append(args, string(req.Status))
		where += " AND i.status = $2"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM driver_invoices i WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT i.id, i.invoice_num, i.created_at, i.status, i.total_amount,
		d.id, d.carrier_id, d.name, d.email, d.phone, d.active,
		(SELECT COUNT(*) FROM driver_invoice_assignments a WHERE a.invoice_id = i.id)
		FROM driver_invoices i JOIN drivers d ON d.id = i.driver_id
		WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`, where, orderClause(req.SortBy, req.SortDir), len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, req.Limit, req.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Summary
	for rows.Next() {
		var s Summary
		var status string
		if err := rows.Scan(&s.ID, &s.InvoiceNum, &s.CreatedAt, &status, &s.TotalAmount,
			&s.Driver.ID, &s.Driver.CarrierID, &s.Driver.Name, &s.Driver.Email, &s.Driver.Phone, &s.Driver.Active,
			&s.AssignmentCount); err != nil {
			return nil, 0, err
		}
		s.Status = Status(status)
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// Stats runs the three aggregates concurrently. Balances are invoice totals
// less the payouts recorded against them.
func (r *pgRepository) Stats(ctx context.Context, carrierID uuid.UUID, now time.Time) (Stats, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	nextMonth := monthStart.AddDate(0, 1, 0)
	var stats Stats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT
			COALESCE((SELECT SUM(total_amount) FROM driver_invoices WHERE carrier_id = $1), 0) -
			COALESCE((SELECT SUM(amount) FROM driver_invoice_payments WHERE carrier_id = $1), 0)`,
			carrierID).Scan(&stats.PayableBalance)
	})
	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT
			COALESCE((SELECT SUM(total_amount) FROM driver_invoices WHERE carrier_id = $1 AND status = 'APPROVED'), 0) -
			COALESCE((SELECT SUM(p.amount) FROM driver_invoice_payments p
				JOIN driver_invoices i ON i.id = p.invoice_id
				WHERE i.carrier_id = $1 AND i.status = 'APPROVED'), 0)`,
			carrierID).Scan(&stats.ApprovedBalance)
	})
	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM driver_invoice_payments
			WHERE carrier_id = $1 AND payment_date >= $2 AND payment_date < $3`,
			carrierID, monthStart, nextMonth).Scan(&stats.TotalPaidThisMonth)
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) FindDriver(ctx context.Context, carrierID, driverID uuid.UUID) (Driver, error) {
	return findDriver(ctx, t.tx, carrierID, driverID)
}

func (t *pgTxRepository) LoadsOwned(ctx context.Context, carrierID uuid.UUID, loadIDs []uuid.UUID) (bool, error) {
	if len(loadIDs) == 0 {
		return true, nil
	}
	var owned int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM loads WHERE carrier_id = $1 AND id = ANY($2)`,
		carrierID, loadIDs).Scan(&owned)
	return owned == len(loadIDs), err
}

func (t *pgTxRepository) NextInvoiceNum(ctx context.Context, carrierID uuid.UUID) (int, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('driver_invoices:' || $1::text))`, carrierID.String()); err != nil {
		return 0, err
	}
	var next int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(invoice_num), 0) + 1 FROM driver_invoices WHERE carrier_id = $1`, carrierID).Scan(&next)
	return next, err
}

func (t *pgTxRepository) InvoiceNumExists(ctx context.Context, carrierID uuid.UUID, num int) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM driver_invoices WHERE carrier_id = $1 AND invoice_num = $2)`,
		carrierID, num).Scan(&exists)
	return exists, err
}

func (t *pgTxRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO driver_invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inv.ID, inv.CarrierID, inv.DriverID, inv.CreatedByID, inv.InvoiceNum, string(inv.Status), inv.TotalAmount,
		inv.FromDate, inv.ToDate, inv.Notes, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateInvoiceNum
		}
		return err
	}

	batch := &pgx.Batch{}
	for _, a := range inv.Assignments {
		batch.Queue(`INSERT INTO driver_invoice_assignments (id, invoice_id, assignment_id, load_id, charge_type,
			charge_value, billed_distance_miles, billed_duration_hours, billed_load_rate, empty_miles, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			a.ID, inv.ID, a.AssignmentID, a.LoadID, string(a.ChargeType), a.ChargeValue,
			a.BilledDistanceMiles, a.BilledDurationHours, a.BilledLoadRate, a.EmptyMiles, a.Amount)
	}
	for _, item := range inv.LineItems {
		batch.Queue(`INSERT INTO driver_invoice_line_items (id, invoice_id, carrier_id, description, amount, charge_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, inv.ID, inv.CarrierID, item.Description, item.Amount, item.ChargeID, item.CreatedAt)
	}
	if batch.Len() == 0 {
		return nil
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTxRepository) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	// payments, line items and assignment lines cascade
	_, err := t.tx.Exec(ctx, `DELETE FROM driver_invoices WHERE id = $1`, id)
	return err
}

func (t *pgTxRepository) LockInvoice(ctx context.Context, carrierID, id uuid.UUID) (Invoice, error) {
	return scanInvoice(t.tx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM driver_invoices WHERE id = $1 AND carrier_id = $2 FOR UPDATE`, id, carrierID))
}

func (t *pgTxRepository) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	return listPayments(ctx, t.tx, invoiceID)
}

func (t *pgTxRepository) GetPayment(ctx context.Context, carrierID, paymentID uuid.UUID) (Payment, error) {
	var p Payment
	err := t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM driver_invoice_payments WHERE id = $1 AND carrier_id = $2`,
		paymentID, carrierID).Scan(&p.ID, &p.InvoiceID, &p.CarrierID, &p.CreatedBy, &p.Amount, &p.PaymentDate, &p.Notes, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (t *pgTxRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO driver_invoice_payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.InvoiceID, p.CarrierID, p.CreatedBy, p.Amount, p.PaymentDate, p.Notes, p.CreatedAt)
	return err
}

func (t *pgTxRepository) DeletePayment(ctx context.Context, paymentID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM driver_invoice_payments WHERE id = $1`, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (t *pgTxRepository) SetStatus(ctx context.Context, invoiceID uuid.UUID, status Status, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE driver_invoices SET status = $2, updated_at = $3 WHERE id = $1`,
		invoiceID, string(status), at)
	return err
}

func (t *pgTxRepository) ApprovalNotice(ctx context.Context, invoiceID uuid.UUID) (ApprovalNotice, error) {
	var n ApprovalNotice
	err := t.tx.QueryRow(ctx, `SELECT i.id, i.invoice_num, c.name, c.email, d.name, i.total_amount,
		i.from_date, i.to_date, (SELECT COUNT(*) FROM driver_invoice_assignments a WHERE a.invoice_id = i.id)
		FROM driver_invoices i
		JOIN carriers c ON c.id = i.carrier_id
		JOIN drivers d ON d.id = i.driver_id
		WHERE i.id = $1`, invoiceID).Scan(&n.InvoiceID, &n.InvoiceNum, &n.CarrierName, &n.CarrierEmail,
		&n.DriverName, &n.Amount, &n.FromDate, &n.ToDate, &n.AssignmentCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return ApprovalNotice{}, ErrInvoiceNotFound
	}
	return n, err
}

func findDriver(ctx context.Context, q rowQuerier, carrierID, driverID uuid.UUID) (Driver, error) {
	var d Driver
	err := q.QueryRow(ctx, `SELECT id, carrier_id, name, email, phone, active FROM drivers WHERE id = $1 AND carrier_id = $2`,
		driverID, carrierID).Scan(&d.ID, &d.CarrierID, &d.Name, &d.Email, &d.Phone, &d.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Driver{}, ErrDriverNotFound
		}
		return Driver{}, err
	}
	return d, nil
}

const paymentColumns = `id, invoice_id, carrier_id, created_by, amount, payment_date, notes, created_at`

func listPayments(ctx context.Context, q rowQuerier, invoiceID uuid.UUID) ([]Payment, error) {
	rows, err := q.Query(ctx, `SELECT `+paymentColumns+` FROM driver_invoice_payments
		WHERE invoice_id = $1 ORDER BY payment_date DESC, created_at DESC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := []Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.CarrierID, &p.CreatedBy, &p.Amount, &p.PaymentDate, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func listAssignments(ctx context.Context, q rowQuerier, invoiceID uuid.UUID) ([]Assignment, error) {
	rows, err := q.Query(ctx, `SELECT id, assignment_id, load_id, charge_type, charge_value, billed_distance_miles,
		billed_duration_hours, billed_load_rate, empty_miles, amount
		FROM driver_invoice_assignments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	assignments := []Assignment{}
	for rows.Next() {
		var a Assignment
		var chargeType string
		if err := rows.Scan(&a.ID, &a.AssignmentID, &a.LoadID, &chargeType, &a.ChargeValue, &a.BilledDistanceMiles,
			&a.BilledDurationHours, &a.BilledLoadRate, &a.EmptyMiles, &a.Amount); err != nil {
			return nil, err
		}
		a.ChargeType = ChargeType(chargeType)
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func listLineItems(ctx context.Context, q rowQuerier, invoiceID uuid.UUID) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, description, amount, charge_id, created_at
		FROM driver_invoice_line_items WHERE invoice_id = $1 ORDER BY created_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LineItem{}
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.Description, &item.Amount, &item.ChargeID, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
