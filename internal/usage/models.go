package usage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one rated usage event (a call or a message).
//
// Money invariant: Cost is computed once at creation time from the tenant's
// tariff plan and never recomputed. Rate changes are not retroactive.
//
// Billing invariant: Billed/InvoiceID are only ever flipped by invoice
// generation, atomically with the invoice insert. That pairing is what makes
// invoice generation idempotent.
type Record struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Kind Kind `json:"kind" db:"kind"`

	// Destination is the dialed number (calls) or recipient (messages).
	Destination string `json:"destination" db:"destination"`

	// DestinationName is the human-readable name of the matched rate row,
	// captured at rating time for invoice line items.
	DestinationName string `json:"destination_name" db:"destination_name"`

	StartedAt time.Time `json:"started_at" db:"started_at"`

	// DurationSeconds applies to calls, MessageLength to messages.
	DurationSeconds int `json:"duration_seconds,omitempty" db:"duration_seconds"`
	MessageLength   int `json:"message_length,omitempty" db:"message_length"`

	Cost decimal.Decimal `json:"cost" db:"cost"`

	Billed    bool   `json:"billed" db:"billed"`
	InvoiceID string `json:"invoice_id,omitempty" db:"invoice_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Kind string

const (
	KindCall Kind = "call"
	KindSMS  Kind = "sms"
)

// CallEvent is an inbound usage submission from the call handling layer.
type CallEvent struct {
	TenantID        string    `json:"tenant_id"`
	Destination     string    `json:"destination"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// SMSEvent is an inbound usage submission from the SMS handling layer.
type SMSEvent struct {
	TenantID      string    `json:"tenant_id"`
	Destination   string    `json:"destination"`
	SentAt        time.Time `json:"sent_at"`
	MessageLength int       `json:"message_length"`
}

// ChargeResult is returned to the handling layer, which records the event as
// completed only when charging succeeded.
type ChargeResult struct {
	Record     Record          `json:"record"`
	NewBalance decimal.Decimal `json:"new_balance"`
}
