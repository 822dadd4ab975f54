package wallet

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the single balance record for a billable tenant.
//
// Invariant: balance is only ever mutated through Debit/Credit, and every
// mutation appends a ledger entry in the same unit of work. The signed sum of
// a tenant's ledger entries equals its balance at all times.
type Wallet struct {
	TenantID string          `json:"tenant_id" db:"tenant_id"`
	Balance  decimal.Decimal `json:"balance" db:"balance"`
	Currency string          `json:"currency" db:"currency"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is an immutable append-only record of one balance change.
// Credits carry positive amounts, debits negative.
type LedgerEntry struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Amount is signed and carries five decimal places.
	Amount decimal.Decimal `json:"amount" db:"amount"`

	Type   EntryType   `json:"type" db:"type"`
	Status EntryStatus `json:"status" db:"status"`

	Description string `json:"description,omitempty" db:"description"`

	// ExternalRef links to the triggering artifact: a usage record id, or the
	// upstream payment processor's transaction id for top-ups. Stored for
	// reconciliation; exactly-once on processor ids is delegated upstream.
	ExternalRef string `json:"external_ref,omitempty" db:"external_ref"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeTopUp      EntryType = "top_up"
	EntryTypeCallCost   EntryType = "call_cost"
	EntryTypeSMSCost    EntryType = "sms_cost"
	EntryTypeWithdrawal EntryType = "withdrawal"
	EntryTypeAdjustment EntryType = "adjustment"
)

type EntryStatus string

const (
	EntryStatusCompleted EntryStatus = "completed"
)

// InsufficientBalanceError reports a failed debit with the amounts the UI
// needs to render. It unwraps to ErrInsufficientBalance for errors.Is checks.
type InsufficientBalanceError struct {
	Current  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("wallet: insufficient balance: have %s, need %s", e.Current, e.Required)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
