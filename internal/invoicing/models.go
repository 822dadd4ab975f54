package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is a statement over usage already debited from the prepaid wallet.
// TotalAmount is informational; paying an invoice is a status transition and
// never touches the wallet.
//
// Immutable after creation except for Status/PaidDate transitions.
type Invoice struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// The billed window is [PeriodStart, PeriodEnd).
	PeriodStart time.Time `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time `json:"period_end" db:"period_end"`

	Status Status `json:"status" db:"status"`

	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`

	DueDate   time.Time  `json:"due_date" db:"due_date"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	PaidDate  *time.Time `json:"paid_date,omitempty" db:"paid_date"`

	LineItems []LineItem `json:"line_items"`
}

// LineItem is one priced, itemized row within an invoice. Records are
// grouped per destination; UnitPrice is the per-record average.
type LineItem struct {
	ID        string `json:"id" db:"id"`
	InvoiceID string `json:"invoice_id" db:"invoice_id"`

	Description string          `json:"description" db:"description"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusUnpaid    Status = "unpaid"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)
