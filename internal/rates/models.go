package rates

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Rate and tariff models. Amounts are decimal and carry five fractional
// digits through the pipeline; display rounding is the caller's concern.

// BaseRate is the platform's buy price for terminating traffic to a
// destination, keyed by dialing prefix.
//
// Rows are administrator-imported. Re-importing the same (code, destination)
// pair updates buy_price instead of duplicating the row.
type BaseRate struct {
	Code            string          `json:"code" db:"code"`
	DestinationName string          `json:"destination_name" db:"destination_name"`
	BuyPrice        decimal.Decimal `json:"buy_price" db:"buy_price"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type PlanType string

const (
	PlanTypePercentage PlanType = "percentage"
	PlanTypeFixed      PlanType = "fixed"
	PlanTypeFree       PlanType = "free"
)

// TariffPlan is a named markup policy converting buy prices to sell prices.
//
// Mutations apply prospectively only: usage records keep the cost computed
// at creation time, so plan changes are never retroactive.
type TariffPlan struct {
	ID   string   `json:"id" db:"id"`
	Name string   `json:"name" db:"name"`
	Type PlanType `json:"type" db:"type"`

	// ProfitPercent applies to percentage plans (e.g., 10 means +10%).
	ProfitPercent decimal.Decimal `json:"profit_percent" db:"profit_percent"`

	// FixedProfit applies to fixed plans (absolute markup per unit).
	FixedProfit decimal.Decimal `json:"fixed_profit" db:"fixed_profit"`

	// MinProfit/MaxProfit clamp the computed profit for percentage and fixed
	// plans. Both zero means unbounded.
	MinProfit decimal.Decimal `json:"min_profit" db:"min_profit"`
	MaxProfit decimal.Decimal `json:"max_profit" db:"max_profit"`

	// Precision is the number of decimal places the sell price is rounded to.
	Precision int32 `json:"precision" db:"precision"`

	// ChargingIntervalSeconds is the minimum billable time granularity.
	// Call duration is always rounded up to a whole number of intervals.
	ChargingIntervalSeconds int `json:"charging_interval_seconds" db:"charging_interval_seconds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var errInvalidPlan = errors.New("rates: invalid tariff plan")

func (p TariffPlan) Validate() error {
	switch p.Type {
	case PlanTypePercentage, PlanTypeFixed, PlanTypeFree:
	default:
		return fmt.Errorf("%w: unknown type %q", errInvalidPlan, p.Type)
	}
	if p.Precision < 0 || p.Precision > 10 {
		return fmt.Errorf("%w: precision must be 0-10, got %d", errInvalidPlan, p.Precision)
	}
	if p.ChargingIntervalSeconds < 1 {
		return fmt.Errorf("%w: charging interval must be >= 1s, got %d", errInvalidPlan, p.ChargingIntervalSeconds)
	}
	if p.MinProfit.GreaterThan(p.MaxProfit) {
		return fmt.Errorf("%w: min_profit %s > max_profit %s", errInvalidPlan, p.MinProfit, p.MaxProfit)
	}
	return nil
}

// Apply converts a buy price into a sell price under this plan.
//
// Percentage/fixed profits are clamped to [MinProfit, MaxProfit] before the
// sell price is formed, and the result is rounded half-away-from-zero to the
// plan precision. Truncation would systematically underbill.
func (p TariffPlan) Apply(buy decimal.Decimal) decimal.Decimal {
	switch p.Type {
	case PlanTypeFree:
		return decimal.Zero
	case PlanTypeFixed:
		profit := p.clampProfit(p.FixedProfit)
		return buy.Add(profit).Round(p.Precision)
	default: // percentage
		profit := buy.Mul(p.ProfitPercent).Div(decimal.NewFromInt(100))
		profit = p.clampProfit(profit)
		return buy.Add(profit).Round(p.Precision)
	}
}

func (p TariffPlan) clampProfit(profit decimal.Decimal) decimal.Decimal {
	if p.MinProfit.IsZero() && p.MaxProfit.IsZero() {
		return profit
	}
	if profit.LessThan(p.MinProfit) {
		return p.MinProfit
	}
	if profit.GreaterThan(p.MaxProfit) {
		return p.MaxProfit
	}
	return profit
}

// ConfiguredRate is a (BaseRate x TariffPlan) row: the priced view of one
// destination. Derived on demand, never persisted.
type ConfiguredRate struct {
	Code            string          `json:"code"`
	DestinationName string          `json:"destination_name"`
	BuyPrice        decimal.Decimal `json:"buy_price"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	Profit          decimal.Decimal `json:"profit"`

	// ProfitMarginPercent is profit / buy_price * 100; zero when buy price is zero.
	ProfitMarginPercent decimal.Decimal `json:"profit_margin_percent"`
}

// Configure prices a base rate under a plan.
func Configure(base BaseRate, plan TariffPlan) ConfiguredRate {
	sell := plan.Apply(base.BuyPrice)
	profit := sell.Sub(base.BuyPrice)

	margin := decimal.Zero
	if !base.BuyPrice.IsZero() {
		margin = profit.Div(base.BuyPrice).Mul(decimal.NewFromInt(100)).Round(5)
	}

	return ConfiguredRate{
		Code:                base.Code,
		DestinationName:     base.DestinationName,
		BuyPrice:            base.BuyPrice,
		SellPrice:           sell,
		Profit:              profit,
		ProfitMarginPercent: margin,
	}
}

// EffectiveRate is the resolved price for a specific dialed number under a
// tenant's plan, including the billing granularity needed to charge usage.
type EffectiveRate struct {
	Code            string          `json:"code"`
	DestinationName string          `json:"destination_name"`
	PricePerMinute  decimal.Decimal `json:"price_per_minute"`

	ChargingIntervalSeconds int   `json:"charging_interval_seconds"`
	Precision               int32 `json:"precision"`
}

// CallCost is the priced outcome of a call usage event.
type CallCost struct {
	Rate            EffectiveRate   `json:"rate"`
	DurationSeconds int             `json:"duration_seconds"`
	BillableSeconds int             `json:"billable_seconds"`
	Cost            decimal.Decimal `json:"cost"`
}

// SMSCost is the priced outcome of a message usage event. Messages bill one
// unit at the destination sell price regardless of length.
type SMSCost struct {
	Rate EffectiveRate   `json:"rate"`
	Cost decimal.Decimal `json:"cost"`
}
