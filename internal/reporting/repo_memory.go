package reporting

import (
	"context"
	"sync"
	"time"

	"voip-billing/internal/usage"
	"voip-billing/internal/wallet"
)

// MemoryRepo is an in-memory Repository used in tests.
type MemoryRepo struct {
	mu      sync.Mutex
	Ledger  []wallet.LedgerEntry
	Records []usage.Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (m *MemoryRepo) ListLedger(ctx context.Context, tenantID string, from, to time.Time) ([]wallet.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []wallet.LedgerEntry
	for _, e := range m.Ledger {
		if e.TenantID != tenantID {
			continue
		}
		if inRange(e.CreatedAt, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryRepo) ListUsage(ctx context.Context, tenantID string, from, to time.Time) ([]usage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []usage.Record
	for _, r := range m.Records {
		if r.TenantID != tenantID {
			continue
		}
		if inRange(r.StartedAt, from, to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
