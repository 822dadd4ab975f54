package invoicing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voip-billing/internal/usage"
)

// MemoryRepo is an in-memory Repository for tests and early development.
// CreateInvoice mirrors the transactional semantics of the Postgres
// implementation: everything or nothing, under one lock.
type MemoryRepo struct {
	mu sync.Mutex

	Tenants  map[string]bool
	Records  []usage.Record
	Invoices map[string]Invoice
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		Tenants:  map[string]bool{},
		Invoices: map[string]Invoice{},
	}
}

func (r *MemoryRepo) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Tenants[tenantID], nil
}

func (r *MemoryRepo) CountUnbilled(ctx context.Context, tenantID string, start, end time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.Records {
		if eligible(rec, tenantID, start, end) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) ListUnbilled(ctx context.Context, tenantID string, start, end time.Time) ([]usage.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []usage.Record
	for _, rec := range r.Records {
		if eligible(rec, tenantID, start, end) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *MemoryRepo) CreateInvoice(ctx context.Context, inv Invoice, recordIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	idx := map[string]int{}
	for i, rec := range r.Records {
		idx[rec.ID] = i
	}
	// Verify every record is still flaggable before mutating anything.
	for _, id := range recordIDs {
		i, ok := idx[id]
		if !ok || r.Records[i].Billed {
			return fmt.Errorf("%w: record %s already billed", ErrConcurrencyConflict, id)
		}
	}
	for _, id := range recordIDs {
		i := idx[id]
		r.Records[i].Billed = true
		r.Records[i].InvoiceID = inv.ID
	}
	r.Invoices[inv.ID] = inv
	return nil
}

func (r *MemoryRepo) GetInvoice(ctx context.Context, invoiceID string) (Invoice, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.Invoices[invoiceID]
	return inv, ok, nil
}

func (r *MemoryRepo) ListInvoices(ctx context.Context, tenantID string) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.Invoices {
		if inv.TenantID == tenantID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, invoiceID string, status Status, paidDate *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.Invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	inv.PaidDate = paidDate
	r.Invoices[invoiceID] = inv
	return nil
}

func eligible(rec usage.Record, tenantID string, start, end time.Time) bool {
	if rec.TenantID != tenantID || rec.Billed {
		return false
	}
	return !rec.StartedAt.Before(start) && rec.StartedAt.Before(end)
}
