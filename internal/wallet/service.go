package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service provides wallet operations.
//
// Money invariants:
// - No balance updates without a ledger entry
// - Ledger is append-only (immutable)
// - Debits are serialized per tenant; two concurrent debits against a balance
//   sufficient for only one must yield exactly one success and one
//   insufficient-balance failure. Operations on different tenants never
//   contend on a shared lock.
//
// The repository owns atomicity: the Postgres implementation uses a
// conditional update (correct across service instances), the memory
// implementation a per-tenant mutex.
type Service struct {
	repo Repository
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// Repository abstracts wallet persistence. DebitIfSufficient and Credit must
// apply the balance change and append the ledger entry atomically.
type Repository interface {
	GetOrCreate(ctx context.Context, tenantID, currency string, now time.Time) (Wallet, error)
	Get(ctx context.Context, tenantID string) (Wallet, bool, error)

	// DebitIfSufficient atomically checks the balance, subtracts amount and
	// appends the entry. It returns *InsufficientBalanceError when the
	// balance is short; no partial write may remain in that case.
	DebitIfSufficient(ctx context.Context, tenantID string, amount decimal.Decimal, entry LedgerEntry) (newBalance decimal.Decimal, err error)

	Credit(ctx context.Context, tenantID string, amount decimal.Decimal, entry LedgerEntry) (newBalance decimal.Decimal, err error)

	// ListLedger returns the tenant's entries newest first.
	ListLedger(ctx context.Context, tenantID string) ([]LedgerEntry, error)
}

var (
	ErrInvalidAmount       = errors.New("wallet: amount must be positive")
	ErrInvalidArgument     = errors.New("wallet: invalid argument")
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
	ErrNotFound            = errors.New("wallet: not found")
)

const defaultCurrency = "EUR"

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// GetOrCreate lazily provisions a zero-balance wallet on first access.
// Tenants are never blocked from receiving a wallet by missing provisioning.
func (s *Service) GetOrCreate(ctx context.Context, tenantID string) (Wallet, error) {
	if tenantID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	return s.repo.GetOrCreate(ctx, tenantID, defaultCurrency, s.clock().UTC())
}

type DebitResult struct {
	NewBalance decimal.Decimal `json:"new_balance"`
	EntryID    string          `json:"entry_id"`
}

// Debit atomically checks-and-subtracts amount from the tenant's balance and
// appends a negative ledger entry carrying the triggering reason.
func (s *Service) Debit(ctx context.Context, tenantID string, amount decimal.Decimal, reason EntryType, description, externalRef string) (DebitResult, error) {
	if tenantID == "" {
		return DebitResult{}, ErrInvalidArgument
	}
	if amount.Sign() <= 0 {
		return DebitResult{}, ErrInvalidAmount
	}
	if reason != EntryTypeCallCost && reason != EntryTypeSMSCost && reason != EntryTypeWithdrawal {
		return DebitResult{}, ErrInvalidArgument
	}

	// Wallet must exist before the conditional update can match a row.
	if _, err := s.repo.GetOrCreate(ctx, tenantID, defaultCurrency, s.clock().UTC()); err != nil {
		return DebitResult{}, err
	}

	entry := LedgerEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Amount:      amount.Neg(),
		Type:        reason,
		Status:      EntryStatusCompleted,
		Description: description,
		ExternalRef: externalRef,
		CreatedAt:   s.clock().UTC(),
	}

	newBal, err := s.repo.DebitIfSufficient(ctx, tenantID, amount, entry)
	if err != nil {
		return DebitResult{}, err
	}
	return DebitResult{NewBalance: newBal, EntryID: entry.ID}, nil
}

type CreditResult struct {
	NewBalance decimal.Decimal `json:"new_balance"`
	EntryID    string          `json:"entry_id"`
}

// Credit atomically adds amount to the tenant's balance. The external
// reference (e.g., a payment processor transaction id) is stored on the
// ledger entry for reconciliation.
func (s *Service) Credit(ctx context.Context, tenantID string, amount decimal.Decimal, entryType EntryType, description, externalRef string) (CreditResult, error) {
	if tenantID == "" {
		return CreditResult{}, ErrInvalidArgument
	}
	if amount.Sign() <= 0 {
		return CreditResult{}, ErrInvalidAmount
	}
	if entryType == "" {
		entryType = EntryTypeTopUp
	}

	if _, err := s.repo.GetOrCreate(ctx, tenantID, defaultCurrency, s.clock().UTC()); err != nil {
		return CreditResult{}, err
	}

	entry := LedgerEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Amount:      amount,
		Type:        entryType,
		Status:      EntryStatusCompleted,
		Description: description,
		ExternalRef: externalRef,
		CreatedAt:   s.clock().UTC(),
	}

	newBal, err := s.repo.Credit(ctx, tenantID, amount, entry)
	if err != nil {
		return CreditResult{}, err
	}
	return CreditResult{NewBalance: newBal, EntryID: entry.ID}, nil
}

// Balance is a point-in-time read with no side effects.
func (s *Service) Balance(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	if tenantID == "" {
		return decimal.Zero, ErrInvalidArgument
	}
	w, ok, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		// Unprovisioned wallet reads as zero; first money operation creates it.
		return decimal.Zero, nil
	}
	return w.Balance, nil
}

// History returns the full ledger, newest first.
func (s *Service) History(ctx context.Context, tenantID string) ([]LedgerEntry, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListLedger(ctx, tenantID)
}
