package driverinvoices

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/shared"
)

type memoryData struct {
	invoices map[uuid.UUID]Invoice
	payments map[uuid.UUID]Payment
}

func (m *memoryData) clone() *memoryData {
	out := &memoryData{
		invoices: make(map[uuid.UUID]Invoice, len(m.invoices)),
		payments: make(map[uuid.UUID]Payment, len(m.payments)),
	}
	for k, v := range m.invoices {
		out.invoices[k] = v
	}
	for k, v := range m.payments {
		out.payments[k] = v
	}
	return out
}

type memoryRepo struct {
	mu      sync.Mutex
	data    *memoryData
	drivers map[uuid.UUID]Driver
	emails  map[uuid.UUID]string
	loads   map[uuid.UUID]uuid.UUID
	failSet error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		data:    &memoryData{invoices: map[uuid.UUID]Invoice{}, payments: map[uuid.UUID]Payment{}},
		drivers: map[uuid.UUID]Driver{},
		emails:  map[uuid.UUID]string{},
		loads:   map[uuid.UUID]uuid.UUID{},
	}
}

func (m *memoryRepo) addDriver(carrierID uuid.UUID, phone string, active bool) Driver {
	drv := Driver{ID: uuid.New(), CarrierID: carrierID, Name: "Sam Rivera", Phone: phone, Active: active}
	m.drivers[drv.ID] = drv
	return drv
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.data.clone()
	if err := fn(ctx, &memoryTx{repo: m, data: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *memoryRepo) withChildren(inv Invoice) Invoice {
	if drv, ok := m.drivers[inv.DriverID]; ok {
		inv.Driver = &drv
	}
	inv.Payments = paymentsOf(m.data, inv.ID)
	return inv
}

func (m *memoryRepo) GetInvoice(_ context.Context, carrierID, id uuid.UUID) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.data.invoices[id]
	if !ok || inv.CarrierID != carrierID {
		return Invoice{}, ErrInvoiceNotFound
	}
	return m.withChildren(inv), nil
}

func (m *memoryRepo) FindInvoice(_ context.Context, id uuid.UUID) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.data.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return m.withChildren(inv), nil
}

func (m *memoryRepo) ListInvoices(_ context.Context, req ListRequest) ([]Summary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Summary
	for _, inv := range m.data.invoices {
		if inv.CarrierID != req.CarrierID || (req.Status != "" && inv.Status != req.Status) {
			continue
		}
		out = append(out, Summary{
			ID: inv.ID, InvoiceNum: inv.InvoiceNum, CreatedAt: inv.CreatedAt, Status: inv.Status,
			Driver: m.drivers[inv.DriverID], AssignmentCount: len(inv.Assignments), TotalAmount: inv.TotalAmount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNum < out[j].InvoiceNum })
	total := len(out)
	if req.Offset >= total {
		return nil, total, nil
	}
	end := min(req.Offset+req.Limit, total)
	return out[req.Offset:end], total, nil
}

func (m *memoryRepo) Stats(_ context.Context, carrierID uuid.UUID, now time.Time) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	stats := Stats{PayableBalance: decimal.Zero, ApprovedBalance: decimal.Zero, TotalPaidThisMonth: decimal.Zero}
	for _, inv := range m.data.invoices {
		if inv.CarrierID != carrierID {
			continue
		}
		stats.PayableBalance = stats.PayableBalance.Add(inv.TotalAmount)
		if inv.Status == StatusApproved {
			stats.ApprovedBalance = stats.ApprovedBalance.Add(inv.TotalAmount)
		}
	}
	for _, p := range m.data.payments {
		if p.CarrierID != carrierID {
			continue
		}
		stats.PayableBalance = stats.PayableBalance.Sub(p.Amount)
		if m.data.invoices[p.InvoiceID].Status == StatusApproved {
			stats.ApprovedBalance = stats.ApprovedBalance.Sub(p.Amount)
		}
		if !p.PaymentDate.Before(monthStart) && p.PaymentDate.Before(monthStart.AddDate(0, 1, 0)) {
			stats.TotalPaidThisMonth = stats.TotalPaidThisMonth.Add(p.Amount)
		}
	}
	return stats, nil
}

func (m *memoryRepo) invoice(id uuid.UUID) Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.invoices[id]
}

func (m *memoryRepo) paymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.payments)
}

func paymentsOf(data *memoryData, invoiceID uuid.UUID) []Payment {
	out := []Payment{}
	for _, p := range data.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memoryTx struct {
	repo *memoryRepo
	data *memoryData
}

func (t *memoryTx) FindDriver(_ context.Context, carrierID, driverID uuid.UUID) (Driver, error) {
	drv, ok := t.repo.drivers[driverID]
	if !ok || drv.CarrierID != carrierID {
		return Driver{}, ErrDriverNotFound
	}
	return drv, nil
}

func (t *memoryTx) LoadsOwned(_ context.Context, carrierID uuid.UUID, loadIDs []uuid.UUID) (bool, error) {
	for _, id := range loadIDs {
		if t.repo.loads[id] != carrierID {
			return false, nil
		}
	}
	return true, nil
}

func (t *memoryTx) NextInvoiceNum(_ context.Context, carrierID uuid.UUID) (int, error) {
	next := 1
	for _, inv := range t.data.invoices {
		if inv.CarrierID == carrierID && inv.InvoiceNum >= next {
			next = inv.InvoiceNum + 1
		}
	}
	return next, nil
}

func (t *memoryTx) InvoiceNumExists(_ context.Context, carrierID uuid.UUID, num int) (bool, error) {
	for _, inv := range t.data.invoices {
		if inv.CarrierID == carrierID && inv.InvoiceNum == num {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertInvoice(_ context.Context, inv Invoice) error {
	inv.Driver = nil
	t.data.invoices[inv.ID] = inv
	return nil
}

func (t *memoryTx) DeleteInvoice(_ context.Context, id uuid.UUID) error {
	delete(t.data.invoices, id)
	for pid, p := range t.data.payments {
		if p.InvoiceID == id {
			delete(t.data.payments, pid)
		}
	}
	return nil
}

func (t *memoryTx) LockInvoice(_ context.Context, carrierID, id uuid.UUID) (Invoice, error) {
	inv, ok := t.data.invoices[id]
	if !ok || inv.CarrierID != carrierID {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (t *memoryTx) ListPayments(_ context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	return paymentsOf(t.data, invoiceID), nil
}

func (t *memoryTx) GetPayment(_ context.Context, carrierID, paymentID uuid.UUID) (Payment, error) {
	p, ok := t.data.payments[paymentID]
	if !ok || p.CarrierID != carrierID {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (t *memoryTx) InsertPayment(_ context.Context, p Payment) error {
	t.data.payments[p.ID] = p
	return nil
}

func (t *memoryTx) DeletePayment(_ context.Context, paymentID uuid.UUID) error {
	if _, ok := t.data.payments[paymentID]; !ok {
		return ErrPaymentNotFound
	}
	delete(t.data.payments, paymentID)
	return nil
}

func (t *memoryTx) SetStatus(_ context.Context, invoiceID uuid.UUID, status Status, at time.Time) error {
	if t.repo.failSet != nil {
		return t.repo.failSet
	}
	inv := t.data.invoices[invoiceID]
	inv.Status = status
	inv.UpdatedAt = at
	t.data.invoices[invoiceID] = inv
	return nil
}

func (t *memoryTx) ApprovalNotice(_ context.Context, invoiceID uuid.UUID) (ApprovalNotice, error) {
	inv, ok := t.data.invoices[invoiceID]
	if !ok {
		return ApprovalNotice{}, ErrInvoiceNotFound
	}
	drv := t.repo.drivers[inv.DriverID]
	return ApprovalNotice{
		InvoiceID:       inv.ID,
		InvoiceNum:      inv.InvoiceNum,
		CarrierName:     "Acme Freight",
		CarrierEmail:    t.repo.emails[inv.CarrierID],
		DriverName:      drv.Name,
		Amount:          inv.TotalAmount,
		AssignmentCount: len(inv.Assignments),
		FromDate:        inv.FromDate,
		ToDate:          inv.ToDate,
	}, nil
}

type notifierSpy struct {
	mu      sync.Mutex
	notices []ApprovalNotice
	err     error
}

func (n *notifierSpy) NotifyDriverInvoiceApproved(_ context.Context, notice ApprovalNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *notifierSpy) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type auditSpy struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

var fixedNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *memoryRepo
	svc      *Service
	notifier *notifierSpy
	audit    *auditSpy
	carrier  uuid.UUID
	user     uuid.UUID
	driver   Driver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	f := &fixture{repo: repo, notifier: &notifierSpy{}, audit: &auditSpy{}, carrier: uuid.New(), user: uuid.New()}
	repo.emails[f.carrier] = "dispatch@acme.test"
	f.driver = repo.addDriver(f.carrier, "(555) 010-2000", true)
	f.svc = NewService(repo, nil,
		WithClock(func() time.Time { return fixedNow }),
		WithNotifier(f.notifier),
		WithAuditor(f.audit),
	)
	return f
}

func (f *fixture) create(t *testing.T, total string) Invoice {
	t.Helper()
	inv, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CarrierID: f.carrier,
		UserID:    f.user,
		DriverID:  f.driver.ID,
		FromDate:  fixedNow.AddDate(0, 0, -14),
		ToDate:    fixedNow,
		Assignments: []AssignmentInput{
			{AssignmentID: uuid.New(), ChargeType: ChargeFixedPay, ChargeValue: d(total)},
		},
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) pay(t *testing.T, inv Invoice, amount string) uuid.UUID {
	t.Helper()
	id, err := f.svc.AddPayment(context.Background(), AddPaymentInput{
		CarrierID: f.carrier, UserID: f.user, InvoiceID: inv.ID, Amount: d(amount), PaymentDate: fixedNow,
	})
	require.NoError(t, err)
	return id
}

func TestCreateInvoicePricesAssignments(t *testing.T) {
	f := newFixture(t)
	load := uuid.New()
	f.repo.loads[load] = f.carrier

	inv, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CarrierID: f.carrier,
		UserID:    f.user,
		DriverID:  f.driver.ID,
		FromDate:  fixedNow.AddDate(0, 0, -7),
		ToDate:    fixedNow,
		Notes:     "  week 20  ",
		Assignments: []AssignmentInput{
			{AssignmentID: uuid.New(), LoadID: &load, ChargeType: ChargePerMile, ChargeValue: d("0.655"),
				BilledDistanceMiles: dp("512.3"), EmptyMiles: dp("40")},
			{AssignmentID: uuid.New(), LoadID: &load, ChargeType: ChargePerHour, ChargeValue: d("27.50"),
				BilledDurationHours: dp("7.25")},
		},
		LineItems: []LineItemInput{{Description: "Fuel advance", Amount: d("-100.004")}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, inv.Status)
	require.Equal(t, 1, inv.InvoiceNum)
	require.Equal(t, "week 20", inv.Notes)
	requireDecimal(t, "461.14", inv.TotalAmount)
	require.Contains(t, f.audit.actions, "driver_invoice.create")
}

func TestCreateInvoiceRejections(t *testing.T) {
	f := newFixture(t)
	inactive := f.repo.addDriver(f.carrier, "5550100", false)
	foreign := f.repo.addDriver(uuid.New(), "5550101", true)
	first := f.create(t, "100")
	foreignLoad := uuid.New()
	f.repo.loads[foreignLoad] = uuid.New()

	base := func() CreateInvoiceInput {
		return CreateInvoiceInput{CarrierID: f.carrier, UserID: f.user, DriverID: f.driver.ID, FromDate: fixedNow, ToDate: fixedNow}
	}
	cases := []struct {
		name   string
		mutate func(*CreateInvoiceInput)
		want   error
	}{
		{"unknown driver", func(in *CreateInvoiceInput) { in.DriverID = uuid.New() }, ErrDriverNotFound},
		{"other carrier driver", func(in *CreateInvoiceInput) { in.DriverID = foreign.ID }, ErrDriverNotFound},
		{"inactive driver", func(in *CreateInvoiceInput) { in.DriverID = inactive.ID }, ErrInactiveDriver},
		{"duplicate number", func(in *CreateInvoiceInput) { in.InvoiceNum = first.InvoiceNum }, ErrDuplicateInvoiceNum},
		{"foreign load", func(in *CreateInvoiceInput) {
			in.Assignments = []AssignmentInput{{AssignmentID: uuid.New(), LoadID: &foreignLoad, ChargeType: ChargeFixedPay, ChargeValue: d("1")}}
		}, ErrInvalidAssignments},
		{"bad charge type", func(in *CreateInvoiceInput) {
			in.Assignments = []AssignmentInput{{AssignmentID: uuid.New(), ChargeType: "PER_STOP", ChargeValue: d("1")}}
		}, ErrInvalidChargeType},
		{"paid on create", func(in *CreateInvoiceInput) { in.Status = StatusPaid }, ErrInvalidInitialStatus},
		{"inverted period", func(in *CreateInvoiceInput) { in.FromDate = fixedNow.AddDate(0, 0, 1) }, ErrInvalidPeriod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base()
			tc.mutate(&in)
			_, err := f.svc.CreateInvoice(context.Background(), in)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPaymentsDriveStatus(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, "500.00")

	f.pay(t, inv, "200.00")
	require.Equal(t, StatusPartiallyPaid, f.repo.invoice(inv.ID).Status)

	second := f.pay(t, inv, "300.00")
	require.Equal(t, StatusPaid, f.repo.invoice(inv.ID).Status)

	status, err := f.svc.DeletePayment(context.Background(), DeletePaymentInput{
		CarrierID: f.carrier, UserID: f.user, InvoiceID: inv.ID, PaymentID: second,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, status)
	require.Equal(t, StatusPartiallyPaid, f.repo.invoice(inv.ID).Status)

	stored, err := f.svc.GetInvoice(context.Background(), f.carrier, inv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Payments, 1)
	status, err = f.svc.DeletePayment(context.Background(), DeletePaymentInput{
		CarrierID: f.carrier, InvoiceID: inv.ID, PaymentID: stored.Payments[0].ID,
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, status)
}

func TestAddPaymentValidation(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, "100")

	_, err := f.svc.AddPayment(context.Background(), AddPaymentInput{CarrierID: f.carrier, InvoiceID: inv.ID, Amount: d("10")})
	require.ErrorIs(t, err, ErrPaymentFields)

	_, err = f.svc.AddPayment(context.Background(), AddPaymentInput{CarrierID: f.carrier, InvoiceID: inv.ID, Amount: d("0"), PaymentDate: fixedNow})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.AddPayment(context.Background(), AddPaymentInput{CarrierID: uuid.New(), InvoiceID: inv.ID, Amount: d("10"), PaymentDate: fixedNow})
	require.ErrorIs(t, err, ErrInvoiceNotFound)
	require.Equal(t, 404, httpx.StatusFor(err))
	require.Zero(t, f.repo.paymentCount())
}

func TestAddPaymentRejectsSubCentAmount(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, "100")

	_, err := f.svc.AddPayment(context.Background(), AddPaymentInput{CarrierID: f.carrier, InvoiceID: inv.ID, Amount: d("0.004"), PaymentDate: fixedNow})
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Equal(t, 400, httpx.StatusFor(err))
	require.Zero(t, f.repo.paymentCount())

	_, err = f.svc.AddPayment(context.Background(), AddPaymentInput{CarrierID: f.carrier, InvoiceID: inv.ID, Amount: d("0.005"), PaymentDate: fixedNow})
	require.NoError(t, err)
	for _, p := range f.repo.data.payments {
		requireDecimal(t, "0.01", p.Amount)
	}
}

func TestAddPaymentRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, "100")
	f.repo.failSet = errors.New("deadlock detected")

	_, err := f.svc.AddPayment(context.Background(), AddPaymentInput{CarrierID: f.carrier, InvoiceID: inv.ID, Amount: d("10"), PaymentDate: fixedNow})
	require.Error(t, err)
	require.Zero(t, f.repo.paymentCount())
	require.Equal(t, StatusPending, f.repo.invoice(inv.ID).Status)
}

func TestDeletePaymentErrors(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "100")
	second := f.create(t, "100")
	pid := f.pay(t, first, "10")

	_, err := f.svc.DeletePayment(context.Background(), DeletePaymentInput{CarrierID: f.carrier, InvoiceID: first.ID})
	require.ErrorIs(t, err, ErrPaymentIDRequired)

	_, err = f.svc.DeletePayment(context.Background(), DeletePaymentInput{CarrierID: f.carrier, InvoiceID: first.ID, PaymentID: uuid.New()})
	require.ErrorIs(t, err, ErrPaymentNotFound)

	_, err = f.svc.DeletePayment(context.Background(), DeletePaymentInput{CarrierID: uuid.New(), InvoiceID: first.ID, PaymentID: pid})
	require.ErrorIs(t, err, ErrPaymentNotFound)
	require.Equal(t, 404, httpx.StatusFor(err))

	_, err = f.svc.DeletePayment(context.Background(), DeletePaymentInput{CarrierID: f.carrier, InvoiceID: second.ID, PaymentID: pid})
	require.ErrorIs(t, err, ErrPaymentMismatch)
	require.Equal(t, 400, httpx.StatusFor(err))

	require.Equal(t, 1, f.repo.paymentCount())
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, "640")

	status, err := f.svc.Approve(context.Background(), f.carrier, f.user, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, status)
	require.Equal(t, StatusApproved, f.repo.invoice(inv.ID).Status)
	require.Equal(t, 1, f.notifier.count())
	notice := f.notifier.notices[0]
	require.Equal(t, "dispatch@acme.test", notice.CarrierEmail)
	require.Equal(t, 1, notice.AssignmentCount)
	require.True(t, notice.ApprovedAt.Equal(fixedNow))
	requireDecimal(t, "640", notice.Amount)

	_, err = f.svc.Approve(context.Background(), f.carrier, f.user, inv.ID)
	require.ErrorIs(t, err, ErrApproveNotFound)

	other := f.create(t, "1")
	_, err = f.svc.Approve(context.Background(), uuid.New(), f.user, other.ID)
	require.ErrorIs(t, err, ErrApproveNotFound)
	require.Equal(t, 1, f.notifier.count())
}

func TestApproveSurvivesNotifierFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("redis unavailable")
	inv := f.create(t, "10")

	status, err := f.svc.Approve(context.Background(), f.carrier, f.user, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, status)
	require.Equal(t, StatusApproved, f.repo.invoice(inv.ID).Status)
}

func TestApproveWithoutCarrierEmailSkipsNotification(t *testing.T) {
	f := newFixture(t)
	delete(f.repo.emails, f.carrier)
	inv := f.create(t, "10")

	_, err := f.svc.Approve(context.Background(), f.carrier, f.user, inv.ID)
	require.NoError(t, err)
	require.Zero(t, f.notifier.count())
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, "300")

	_, err := f.svc.SetStatus(context.Background(), f.carrier, f.user, inv.ID, "VOID")
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.SetStatus(context.Background(), f.carrier, f.user, inv.ID, "PENDING")
	require.ErrorIs(t, err, ErrSameStatus)

	_, err = f.svc.SetStatus(context.Background(), uuid.New(), f.user, inv.ID, "APPROVED")
	require.ErrorIs(t, err, ErrInvoiceNotFound)

	status, err := f.svc.SetStatus(context.Background(), f.carrier, f.user, inv.ID, "APPROVED")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, status)
	require.Equal(t, 1, f.notifier.count())

	status, err = f.svc.SetStatus(context.Background(), f.carrier, f.user, inv.ID, "PENDING")
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)
	require.Equal(t, 1, f.notifier.count())

	f.pay(t, inv, "300")
	_, err = f.svc.SetStatus(context.Background(), f.carrier, f.user, inv.ID, "APPROVED")
	require.ErrorIs(t, err, ErrInvoiceNotFound)
	require.Contains(t, f.audit.actions, "driver_invoice.status")
}

func TestDeleteInvoiceCascades(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, "90")
	f.pay(t, inv, "30")

	require.ErrorIs(t, f.svc.DeleteInvoice(context.Background(), uuid.New(), f.user, inv.ID), ErrInvoiceNotFound)
	require.NoError(t, f.svc.DeleteInvoice(context.Background(), f.carrier, f.user, inv.ID))
	require.Zero(t, f.repo.paymentCount())
	_, err := f.svc.GetInvoice(context.Background(), f.carrier, inv.ID)
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestPortal(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, "75")

	got, err := f.svc.PortalInvoice(context.Background(), inv.ID, "555-010-2000")
	require.NoError(t, err)
	require.Equal(t, inv.ID, got.ID)

	_, err = f.svc.PortalInvoice(context.Background(), inv.ID, "5559999999")
	require.ErrorIs(t, err, ErrPortalNotFound)

	_, err = f.svc.PortalInvoice(context.Background(), uuid.New(), "5550102000")
	require.ErrorIs(t, err, ErrPortalNotFound)

	_, err = f.svc.PortalInvoice(context.Background(), inv.ID, "")
	require.ErrorIs(t, err, ErrDriverPhoneRequired)

	status, err := f.svc.PortalApprove(context.Background(), inv.ID, "555.010.2000")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, status)
	require.Equal(t, 1, f.notifier.count())

	_, err = f.svc.PortalApprove(context.Background(), inv.ID, "5550102000")
	require.ErrorIs(t, err, ErrNotPending)
}

func TestListAndStats(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "100")
	b := f.create(t, "250")
	f.create(t, "40")
	_, err := f.svc.Approve(context.Background(), f.carrier, f.user, b.ID)
	require.NoError(t, err)
	f.pay(t, a, "60")

	items, total, err := f.svc.ListInvoices(context.Background(), ListRequest{CarrierID: f.carrier, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 2)
	require.Equal(t, 1, items[0].AssignmentCount)

	_, total, err = f.svc.ListInvoices(context.Background(), ListRequest{CarrierID: f.carrier, Status: StatusApproved, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	_, _, err = f.svc.ListInvoices(context.Background(), ListRequest{CarrierID: f.carrier, Status: "VOID"})
	require.ErrorIs(t, err, ErrInvalidStatus)

	stats, err := f.svc.Stats(context.Background(), f.carrier)
	require.NoError(t, err)
	requireDecimal(t, "330", stats.PayableBalance)
	requireDecimal(t, "250", stats.ApprovedBalance)
	requireDecimal(t, "60", stats.TotalPaidThisMonth)
}

func TestConcurrentPayoutsSettleOnce(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, "100.00")

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := f.svc.AddPayment(context.Background(), AddPaymentInput{
				CarrierID: f.carrier, InvoiceID: inv.ID, Amount: d("10.00"), PaymentDate: fixedNow,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 10, f.repo.paymentCount())
	require.Equal(t, StatusPaid, f.repo.invoice(inv.ID).Status)
}
