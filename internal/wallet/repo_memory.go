package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryRepo is an in-memory Repository for tests and early development.
//
// It implements the per-tenant lock variant of debit serialization: each
// wallet row carries its own mutex guarding the read-modify-write, so
// operations on different tenants never contend.
type MemoryRepo struct {
	mu      sync.Mutex
	wallets map[string]*memWallet
}

type memWallet struct {
	mu     sync.Mutex
	wallet Wallet
	ledger []LedgerEntry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{wallets: map[string]*memWallet{}}
}

func (r *MemoryRepo) get(tenantID string) (*memWallet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[tenantID]
	return w, ok
}

func (r *MemoryRepo) getOrCreate(tenantID, currency string, now time.Time) *memWallet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[tenantID]; ok {
		return w
	}
	w := &memWallet{wallet: Wallet{
		TenantID:  tenantID,
		Balance:   decimal.Zero,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	r.wallets[tenantID] = w
	return w
}

func (r *MemoryRepo) GetOrCreate(ctx context.Context, tenantID, currency string, now time.Time) (Wallet, error) {
	w := r.getOrCreate(tenantID, currency, now)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wallet, nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID string) (Wallet, bool, error) {
	w, ok := r.get(tenantID)
	if !ok {
		return Wallet{}, false, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wallet, true, nil
}

func (r *MemoryRepo) DebitIfSufficient(ctx context.Context, tenantID string, amount decimal.Decimal, entry LedgerEntry) (decimal.Decimal, error) {
	w, ok := r.get(tenantID)
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.wallet.Balance.LessThan(amount) {
		return decimal.Zero, &InsufficientBalanceError{Current: w.wallet.Balance, Required: amount}
	}
	w.wallet.Balance = w.wallet.Balance.Sub(amount)
	w.wallet.UpdatedAt = entry.CreatedAt
	w.ledger = append(w.ledger, entry)
	return w.wallet.Balance, nil
}

func (r *MemoryRepo) Credit(ctx context.Context, tenantID string, amount decimal.Decimal, entry LedgerEntry) (decimal.Decimal, error) {
	w, ok := r.get(tenantID)
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.wallet.Balance = w.wallet.Balance.Add(amount)
	w.wallet.UpdatedAt = entry.CreatedAt
	w.ledger = append(w.ledger, entry)
	return w.wallet.Balance, nil
}

func (r *MemoryRepo) ListLedger(ctx context.Context, tenantID string) ([]LedgerEntry, error) {
	w, ok := r.get(tenantID)
	if !ok {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]LedgerEntry, len(w.ledger))
	copy(out, w.ledger)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
