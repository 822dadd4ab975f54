package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SpendSummaryRequest requests aggregated spend metrics for a tenant.
// Spend is derived from immutable wallet ledger entries.
type SpendSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`
}

type SpendSummary struct {
	TenantID string `json:"tenant_id"`

	TotalCredit decimal.Decimal `json:"total_credit"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	NetDelta    decimal.Decimal `json:"net_delta"`

	CallSpend decimal.Decimal `json:"call_spend"`
	SMSSpend  decimal.Decimal `json:"sms_spend"`
	TopUps    decimal.Decimal `json:"top_ups"`
}

// UsageSummaryRequest requests aggregated usage metrics for a tenant.
type UsageSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`
}

type UsageSummary struct {
	TenantID string `json:"tenant_id"`

	TotalCalls           int `json:"total_calls"`
	TotalSMS             int `json:"total_sms"`
	TotalDurationSeconds int `json:"total_duration_seconds"`

	TotalCost decimal.Decimal `json:"total_cost"`

	BilledRecords   int `json:"billed_records"`
	UnbilledRecords int `json:"unbilled_records"`
}
