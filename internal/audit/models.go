package audit

import "time"

// Event is an immutable, append-only audit record for administrative and
// billing operations.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit is best-effort: a failed append is reported but must never abort
//   the financial operation that triggered it.
type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id,omitempty" db:"tenant_id"`

	Type EventType `json:"type" db:"type"`

	// Actor is the administrator or system component causing the event.
	Actor string `json:"actor,omitempty" db:"actor"`

	// Target identifiers (optional, depending on the event type).
	InvoiceID     string `json:"invoice_id,omitempty" db:"invoice_id"`
	LedgerEntryID string `json:"ledger_entry_id,omitempty" db:"ledger_entry_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeRateImport       EventType = "rate_import"
	EventTypeInvoiceGenerated EventType = "invoice_generated"
	EventTypeManualCredit     EventType = "manual_credit"
)
