package tax

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Jurisdiction-based tax calculation for wallet top-ups.
//
// The calculator is a total function by design: it never returns an error.
// An unknown or missing billing country falls back to the domestic rate, the
// conservative revenue-protecting choice, never to zero.

type Type string

const (
	TypeDomestic      Type = "domestic"
	TypeReverseCharge Type = "reverse_charge"
	TypeExport        Type = "export"
)

// Policy captures the platform's tax jurisdiction configuration.
type Policy struct {
	// HomeCountry is the platform's home jurisdiction (ISO 3166-1 alpha-2).
	HomeCountry string

	// VATRatePercent is the home VAT rate, e.g. 25 for 25%.
	VATRatePercent decimal.Decimal

	// BlocCountries are the members of the platform's economic bloc
	// (reverse-charge candidates), keyed by upper-case country code.
	BlocCountries map[string]bool
}

func NewPolicy(homeCountry string, vatRatePercent decimal.Decimal, blocCountries []string) Policy {
	bloc := make(map[string]bool, len(blocCountries))
	for _, c := range blocCountries {
		if c = normalizeCountry(c); c != "" {
			bloc[c] = true
		}
	}
	return Policy{
		HomeCountry:    normalizeCountry(homeCountry),
		VATRatePercent: vatRatePercent,
		BlocCountries:  bloc,
	}
}

// BillingProfile is the tax-relevant slice of a tenant's billing data.
type BillingProfile struct {
	Country string `json:"country"`

	// RegistrationNumber is the tenant's tax registration (e.g., VAT id).
	// It is validated structurally only, never against an external registry.
	RegistrationNumber string `json:"registration_number,omitempty"`
}

// Result is the tax breakdown for one amount.
type Result struct {
	Amount      decimal.Decimal `json:"amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Type        Type            `json:"tax_type"`
}

// Calculate resolves the tax treatment for a tenant and amount.
//
// - home country, unknown or missing country: domestic VAT
// - bloc member with a structurally valid registration number: reverse charge, 0%
// - bloc member without one: domestic VAT (consumer sale)
// - everyone else: export, 0%
func (p Policy) Calculate(profile BillingProfile, amount decimal.Decimal) Result {
	country := normalizeCountry(profile.Country)

	switch {
	case country == "" || country == p.HomeCountry:
		return p.domestic(amount)
	case p.BlocCountries[country]:
		if ValidRegistrationNumber(profile.RegistrationNumber) {
			return zeroRated(amount, TypeReverseCharge)
		}
		return p.domestic(amount)
	default:
		return zeroRated(amount, TypeExport)
	}
}

func (p Policy) domestic(amount decimal.Decimal) Result {
	taxAmt := amount.Mul(p.VATRatePercent).Div(decimal.NewFromInt(100)).Round(5)
	return Result{
		Amount:      amount,
		TaxAmount:   taxAmt,
		TotalAmount: amount.Add(taxAmt),
		Type:        TypeDomestic,
	}
}

func zeroRated(amount decimal.Decimal, t Type) Result {
	return Result{
		Amount:      amount,
		TaxAmount:   decimal.Zero,
		TotalAmount: amount,
		Type:        t,
	}
}

// ValidRegistrationNumber performs a structural check: a two-letter country
// prefix followed by at least two alphanumerics (e.g., SE556677889901).
func ValidRegistrationNumber(s string) bool {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if len(s) < 4 {
		return false
	}
	for i, r := range s {
		if i < 2 {
			if r < 'A' || r > 'Z' {
				return false
			}
			continue
		}
		if !unicode.IsDigit(r) && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
