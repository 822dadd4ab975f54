package invoicing

import (
	"context"
	"errors"
	"sort"
	"time"

	"voip-billing/internal/usage"
	"voip-billing/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service consolidates unbilled usage into immutable invoices.
//
// Idempotency contract: generating twice over the same window produces
// exactly one invoice. The billed flag and invoice id are stamped on every
// consumed record in the same atomic unit as the invoice insert, so the
// second run finds zero eligible records and fails with ErrNothingToBill.
type Service struct {
	repo    Repository
	audit   AuditRecorder
	clock   func() time.Time
	dueDays int
}

// Repository abstracts invoice and usage-record persistence.
type Repository interface {
	TenantExists(ctx context.Context, tenantID string) (bool, error)

	CountUnbilled(ctx context.Context, tenantID string, start, end time.Time) (int, error)
	ListUnbilled(ctx context.Context, tenantID string, start, end time.Time) ([]usage.Record, error)

	// CreateInvoice inserts the invoice with its line items and marks every
	// listed record billed, all in one all-or-nothing transaction. It must
	// fail the whole unit if any record was already billed (lost race).
	CreateInvoice(ctx context.Context, inv Invoice, recordIDs []string) error

	GetInvoice(ctx context.Context, invoiceID string) (Invoice, bool, error)
	ListInvoices(ctx context.Context, tenantID string) ([]Invoice, error)
	UpdateStatus(ctx context.Context, invoiceID string, status Status, paidDate *time.Time) error
}

// AuditRecorder receives best-effort notifications; failures never abort
// invoice generation.
type AuditRecorder interface {
	LogInvoiceGenerated(ctx context.Context, tenantID, invoiceID string, records int) error
}

var (
	ErrTenantNotFound      = errors.New("invoicing: tenant not found")
	ErrNothingToBill       = errors.New("invoicing: no unbilled usage in window")
	ErrNotFound            = errors.New("invoicing: invoice not found")
	ErrInvalidRequest      = errors.New("invoicing: invalid request")
	ErrInvalidTransition   = errors.New("invoicing: invalid status transition")
	ErrConcurrencyConflict = errors.New("invoicing: usage records changed during generation")
)

func NewService(repo Repository, audit AuditRecorder, dueDays int) *Service {
	if dueDays <= 0 {
		dueDays = 30
	}
	return &Service{repo: repo, audit: audit, clock: time.Now, dueDays: dueDays}
}

// CountUnbilled is a side-effect-free dry run: how many records a generation
// over [start, end) would consume.
func (s *Service) CountUnbilled(ctx context.Context, tenantID string, start, end time.Time) (int, error) {
	if tenantID == "" || start.IsZero() || end.IsZero() || !end.After(start) {
		return 0, ErrInvalidRequest
	}
	return s.repo.CountUnbilled(ctx, tenantID, start, end)
}

type GenerateRequest struct {
	TenantID    string    `json:"tenant_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	// DueDate is optional. A zero or stale value (before the generation
	// date) is replaced with max(period end, creation time) + due days.
	DueDate time.Time `json:"due_date,omitempty"`
}

// GenerateInvoice consolidates the tenant's unbilled usage in
// [PeriodStart, PeriodEnd) into one invoice.
func (s *Service) GenerateInvoice(ctx context.Context, req GenerateRequest) (Invoice, error) {
	if req.TenantID == "" || req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() || !req.PeriodEnd.After(req.PeriodStart) {
		return Invoice{}, ErrInvalidRequest
	}

	exists, err := s.repo.TenantExists(ctx, req.TenantID)
	if err != nil {
		return Invoice{}, err
	}
	if !exists {
		return Invoice{}, ErrTenantNotFound
	}

	records, err := s.repo.ListUnbilled(ctx, req.TenantID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return Invoice{}, err
	}
	if len(records) == 0 {
		return Invoice{}, ErrNothingToBill
	}

	now := s.clock().UTC()
	invoiceID := uuid.NewString()

	items := buildLineItems(invoiceID, records)
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}

	inv := Invoice{
		ID:          invoiceID,
		TenantID:    req.TenantID,
		PeriodStart: req.PeriodStart.UTC(),
		PeriodEnd:   req.PeriodEnd.UTC(),
		Status:      StatusUnpaid,
		TotalAmount: total,
		DueDate:     s.resolveDueDate(req, now),
		CreatedAt:   now,
		LineItems:   items,
	}

	recordIDs := make([]string, len(records))
	for i, r := range records {
		recordIDs[i] = r.ID
	}

	if err := s.repo.CreateInvoice(ctx, inv, recordIDs); err != nil {
		return Invoice{}, err
	}

	if s.audit != nil {
		if aerr := s.audit.LogInvoiceGenerated(ctx, inv.TenantID, inv.ID, len(recordIDs)); aerr != nil {
			logger.From(ctx).Warn("invoice audit failed", "invoice_id", inv.ID, "err", aerr)
		}
	}
	return inv, nil
}

func (s *Service) resolveDueDate(req GenerateRequest, now time.Time) time.Time {
	if !req.DueDate.IsZero() && req.DueDate.After(now) {
		return req.DueDate.UTC()
	}
	base := req.PeriodEnd.UTC()
	if now.After(base) {
		base = now
	}
	return base.AddDate(0, 0, s.dueDays)
}

func (s *Service) Get(ctx context.Context, invoiceID string) (Invoice, error) {
	if invoiceID == "" {
		return Invoice{}, ErrInvalidRequest
	}
	inv, ok, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, tenantID string) ([]Invoice, error) {
	if tenantID == "" {
		return nil, ErrInvalidRequest
	}
	return s.repo.ListInvoices(ctx, tenantID)
}

// MarkPaid records payment of a statement. No wallet movement happens here.
func (s *Service) MarkPaid(ctx context.Context, invoiceID string) (Invoice, error) {
	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != StatusUnpaid && inv.Status != StatusOverdue {
		return Invoice{}, ErrInvalidTransition
	}
	paid := s.clock().UTC()
	if err := s.repo.UpdateStatus(ctx, invoiceID, StatusPaid, &paid); err != nil {
		return Invoice{}, err
	}
	inv.Status = StatusPaid
	inv.PaidDate = &paid
	return inv, nil
}

// MarkOverdue flags an unpaid invoice past its due date. Intended for a
// scheduled sweep; calling it early returns ErrInvalidTransition.
func (s *Service) MarkOverdue(ctx context.Context, invoiceID string) (Invoice, error) {
	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != StatusUnpaid || s.clock().UTC().Before(inv.DueDate) {
		return Invoice{}, ErrInvalidTransition
	}
	if err := s.repo.UpdateStatus(ctx, invoiceID, StatusOverdue, nil); err != nil {
		return Invoice{}, err
	}
	inv.Status = StatusOverdue
	return inv, nil
}

func (s *Service) Cancel(ctx context.Context, invoiceID string) (Invoice, error) {
	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status == StatusPaid || inv.Status == StatusCancelled {
		return Invoice{}, ErrInvalidTransition
	}
	if err := s.repo.UpdateStatus(ctx, invoiceID, StatusCancelled, nil); err != nil {
		return Invoice{}, err
	}
	inv.Status = StatusCancelled
	return inv, nil
}

// buildLineItems groups records per destination. Amounts stay exact sums of
// record costs; only the derived unit price is rounded.
func buildLineItems(invoiceID string, records []usage.Record) []LineItem {
	type group struct {
		qty    int
		amount decimal.Decimal
	}
	groups := map[string]*group{}
	for _, r := range records {
		desc := r.DestinationName
		if desc == "" {
			desc = r.Destination
		}
		g, ok := groups[desc]
		if !ok {
			g = &group{amount: decimal.Zero}
			groups[desc] = g
		}
		g.qty++
		g.amount = g.amount.Add(r.Cost)
	}

	descs := make([]string, 0, len(groups))
	for d := range groups {
		descs = append(descs, d)
	}
	sort.Strings(descs)

	items := make([]LineItem, 0, len(groups))
	for _, d := range descs {
		g := groups[d]
		items = append(items, LineItem{
			ID:          uuid.NewString(),
			InvoiceID:   invoiceID,
			Description: d,
			Quantity:    g.qty,
			UnitPrice:   g.amount.Div(decimal.NewFromInt(int64(g.qty))).Round(5),
			Amount:      g.amount,
		})
	}
	return items
}
