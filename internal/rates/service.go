package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voip-billing/pkg/logger"

	"github.com/shopspring/decimal"
)

// Service resolves tenant-facing prices from the base rate table and tariff
// plans, and computes usage costs.
//
// Contract:
// - Reads are snapshot-consistent; no locking. Rate data is admin-mutated far
//   less often than it is read, and staleness of a few seconds is acceptable
//   because costs are never recomputed retroactively.
// - Pricing failures block the usage event. Never default to a zero or
//   arbitrary rate.
type Service struct {
	repo  Repository
	cache Cache // optional; nil disables caching
	audit AuditRecorder
	clock func() time.Time
}

// Repository abstracts rate persistence.
type Repository interface {
	ListBaseRates(ctx context.Context) ([]BaseRate, error)
	UpsertBaseRates(ctx context.Context, rows []BaseRate) (int, error)

	FindPlan(ctx context.Context, planID string) (TariffPlan, bool, error)

	// FindTenantPlanID resolves the tenant's assigned plan.
	// assigned=false means the tenant exists but has no plan.
	FindTenantPlanID(ctx context.Context, tenantID string) (planID string, assigned bool, err error)

	// FindLongestPrefix returns the base rate whose code is the longest
	// prefix of the dialed number.
	FindLongestPrefix(ctx context.Context, dialedNumber string) (BaseRate, bool, error)
}

// Cache is an optional read-through cache for configured rate lists.
// Implementations must be best-effort: a miss or failure falls back to the
// repository.
type Cache interface {
	GetConfiguredRates(ctx context.Context, planID string) ([]ConfiguredRate, bool)
	SetConfiguredRates(ctx context.Context, planID string, list []ConfiguredRate)
	Invalidate(ctx context.Context)
}

// AuditRecorder receives best-effort audit notifications for administrative
// mutations. Failures must never abort the primary operation.
type AuditRecorder interface {
	LogRateImport(ctx context.Context, actor string, rows int) error
}

var (
	ErrPlanNotFound   = errors.New("rates: tariff plan not found")
	ErrNoPlanAssigned = errors.New("rates: tenant has no tariff plan assigned")
	ErrNoRouteFound   = errors.New("rates: no rate matches destination")
	ErrInvalidRequest = errors.New("rates: invalid request")
)

func NewService(repo Repository, cache Cache, audit AuditRecorder) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, clock: time.Now}
}

// ConfigureRates prices every base rate under the named plan.
func (s *Service) ConfigureRates(ctx context.Context, planID string) ([]ConfiguredRate, error) {
	if planID == "" {
		return nil, ErrInvalidRequest
	}

	if s.cache != nil {
		if list, ok := s.cache.GetConfiguredRates(ctx, planID); ok {
			return list, nil
		}
	}

	plan, err := s.loadPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	bases, err := s.repo.ListBaseRates(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ConfiguredRate, 0, len(bases))
	for _, b := range bases {
		out = append(out, Configure(b, plan))
	}

	if s.cache != nil {
		s.cache.SetConfiguredRates(ctx, planID, out)
	}
	return out, nil
}

// UserRates resolves the tenant's assigned plan and returns its priced list.
//
// ErrNoPlanAssigned (administrative gap) is deliberately distinct from
// ErrPlanNotFound (data-integrity problem: an assignment pointing at a
// missing plan).
func (s *Service) UserRates(ctx context.Context, tenantID string) ([]ConfiguredRate, error) {
	if tenantID == "" {
		return nil, ErrInvalidRequest
	}
	planID, assigned, err := s.repo.FindTenantPlanID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, ErrNoPlanAssigned
	}
	return s.ConfigureRates(ctx, planID)
}

// RateForDestination resolves the effective per-minute price a tenant pays
// for a dialed number, using longest-matching-prefix lookup (a 467 entry
// beats a 46 entry for 46701234567).
func (s *Service) RateForDestination(ctx context.Context, tenantID, dialedNumber string) (EffectiveRate, error) {
	if tenantID == "" || dialedNumber == "" {
		return EffectiveRate{}, ErrInvalidRequest
	}

	planID, assigned, err := s.repo.FindTenantPlanID(ctx, tenantID)
	if err != nil {
		return EffectiveRate{}, err
	}
	if !assigned {
		return EffectiveRate{}, ErrNoPlanAssigned
	}
	plan, err := s.loadPlan(ctx, planID)
	if err != nil {
		return EffectiveRate{}, err
	}

	base, ok, err := s.repo.FindLongestPrefix(ctx, dialedNumber)
	if err != nil {
		return EffectiveRate{}, err
	}
	if !ok {
		return EffectiveRate{}, ErrNoRouteFound
	}

	return EffectiveRate{
		Code:                    base.Code,
		DestinationName:         base.DestinationName,
		PricePerMinute:          plan.Apply(base.BuyPrice),
		ChargingIntervalSeconds: plan.ChargingIntervalSeconds,
		Precision:               plan.Precision,
	}, nil
}

// CallCost prices a call of the given duration for a tenant.
func (s *Service) CallCost(ctx context.Context, tenantID, dialedNumber string, durationSeconds int) (CallCost, error) {
	if durationSeconds <= 0 {
		return CallCost{}, ErrInvalidRequest
	}
	rate, err := s.RateForDestination(ctx, tenantID, dialedNumber)
	if err != nil {
		return CallCost{}, err
	}

	billable := billableSeconds(durationSeconds, rate.ChargingIntervalSeconds)
	cost := rate.PricePerMinute.
		Mul(decimal.NewFromInt(int64(billable))).
		Div(decimal.NewFromInt(60)).
		Round(rate.Precision)

	return CallCost{
		Rate:            rate,
		DurationSeconds: durationSeconds,
		BillableSeconds: billable,
		Cost:            cost,
	}, nil
}

// SMSCost prices a single message to a destination for a tenant.
func (s *Service) SMSCost(ctx context.Context, tenantID, dialedNumber string) (SMSCost, error) {
	rate, err := s.RateForDestination(ctx, tenantID, dialedNumber)
	if err != nil {
		return SMSCost{}, err
	}
	return SMSCost{
		Rate: rate,
		Cost: rate.PricePerMinute.Round(rate.Precision),
	}, nil
}

// ImportBaseRates bulk-upserts administrator-supplied buy rates. Duplicate
// (code, destination) pairs update buy_price rather than duplicating.
func (s *Service) ImportBaseRates(ctx context.Context, actor string, rows []BaseRate) (int, error) {
	if len(rows) == 0 {
		return 0, ErrInvalidRequest
	}
	now := s.clock().UTC()
	for i := range rows {
		if rows[i].Code == "" || rows[i].DestinationName == "" {
			return 0, fmt.Errorf("%w: row %d missing code or destination", ErrInvalidRequest, i)
		}
		// Codes feed a LIKE pattern in the prefix lookup; anything but
		// digits must never reach the table.
		if !isDigits(rows[i].Code) {
			return 0, fmt.Errorf("%w: row %d code %q must be digits only", ErrInvalidRequest, i, rows[i].Code)
		}
		if rows[i].BuyPrice.IsNegative() {
			return 0, fmt.Errorf("%w: row %d has negative buy price", ErrInvalidRequest, i)
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
		rows[i].UpdatedAt = now
	}

	n, err := s.repo.UpsertBaseRates(ctx, rows)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.audit != nil {
		if aerr := s.audit.LogRateImport(ctx, actor, n); aerr != nil {
			logger.From(ctx).Warn("rate import audit failed", "err", aerr)
		}
	}
	return n, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// loadPlan fetches a plan and refuses to price anything against one that
// violates its own bounds. A stored invalid plan is a data-integrity problem
// and must block rating, not produce silently wrong prices.
func (s *Service) loadPlan(ctx context.Context, planID string) (TariffPlan, error) {
	plan, ok, err := s.repo.FindPlan(ctx, planID)
	if err != nil {
		return TariffPlan{}, err
	}
	if !ok {
		return TariffPlan{}, ErrPlanNotFound
	}
	if err := plan.Validate(); err != nil {
		return TariffPlan{}, fmt.Errorf("plan %s: %w", planID, err)
	}
	return plan, nil
}

// billableSeconds rounds a duration up to whole charging intervals.
// Cost is never prorated below the interval.
func billableSeconds(actualSec, intervalSec int) int {
	if actualSec <= 0 {
		return 0
	}
	if intervalSec <= 0 {
		intervalSec = 60
	}
	q := actualSec / intervalSec
	if actualSec%intervalSec != 0 {
		q++
	}
	return q * intervalSec
}
