package reporting

import (
	"context"
	"errors"
	"time"

	"voip-billing/internal/usage"
	"voip-billing/internal/wallet"

	"github.com/shopspring/decimal"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations should query immutable sources (wallet ledger, usage
// records); reporting never mutates anything.
type Repository interface {
	ListLedger(ctx context.Context, tenantID string, from, to time.Time) ([]wallet.LedgerEntry, error)
	ListUsage(ctx context.Context, tenantID string, from, to time.Time) ([]usage.Record, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	if err := validate(req.TenantID, req.Range); err != nil {
		return SpendSummary{}, err
	}
	if s.repo == nil {
		return SpendSummary{}, errors.New("reporting: repository not configured")
	}

	entries, err := s.repo.ListLedger(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{
		TenantID:    req.TenantID,
		TotalCredit: decimal.Zero,
		TotalDebit:  decimal.Zero,
		CallSpend:   decimal.Zero,
		SMSSpend:    decimal.Zero,
		TopUps:      decimal.Zero,
	}
	for _, e := range entries {
		if e.Amount.Sign() > 0 {
			out.TotalCredit = out.TotalCredit.Add(e.Amount)
		} else {
			out.TotalDebit = out.TotalDebit.Add(e.Amount.Neg())
		}
		switch e.Type {
		case wallet.EntryTypeCallCost:
			out.CallSpend = out.CallSpend.Add(e.Amount.Neg())
		case wallet.EntryTypeSMSCost:
			out.SMSSpend = out.SMSSpend.Add(e.Amount.Neg())
		case wallet.EntryTypeTopUp:
			out.TopUps = out.TopUps.Add(e.Amount)
		}
	}
	out.NetDelta = out.TotalCredit.Sub(out.TotalDebit)
	return out, nil
}

func (s *Service) UsageSummary(ctx context.Context, req UsageSummaryRequest) (UsageSummary, error) {
	if err := validate(req.TenantID, req.Range); err != nil {
		return UsageSummary{}, err
	}
	if s.repo == nil {
		return UsageSummary{}, errors.New("reporting: repository not configured")
	}

	records, err := s.repo.ListUsage(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return UsageSummary{}, err
	}

	out := UsageSummary{TenantID: req.TenantID, TotalCost: decimal.Zero}
	for _, r := range records {
		switch r.Kind {
		case usage.KindCall:
			out.TotalCalls++
			out.TotalDurationSeconds += r.DurationSeconds
		case usage.KindSMS:
			out.TotalSMS++
		}
		out.TotalCost = out.TotalCost.Add(r.Cost)
		if r.Billed {
			out.BilledRecords++
		} else {
			out.UnbilledRecords++
		}
	}
	return out, nil
}

func validate(tenantID string, r TimeRange) error {
	if tenantID == "" {
		return ErrInvalidRequest
	}
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return ErrInvalidRequest
	}
	return nil
}
