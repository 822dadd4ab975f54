package rates

import (
	"context"
	"strings"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early
// development. Lookups mirror the Postgres semantics (longest-prefix wins,
// upsert on code+destination).
type MemoryRepo struct {
	mu sync.Mutex

	BaseRates []BaseRate
	Plans     map[string]TariffPlan

	// TenantPlans maps tenant id -> plan id. An empty plan id models a
	// tenant with no assignment.
	TenantPlans map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		Plans:       map[string]TariffPlan{},
		TenantPlans: map[string]string{},
	}
}

func (r *MemoryRepo) ListBaseRates(ctx context.Context) ([]BaseRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BaseRate, len(r.BaseRates))
	copy(out, r.BaseRates)
	return out, nil
}

func (r *MemoryRepo) UpsertBaseRates(ctx context.Context, list []BaseRate) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range list {
		updated := false
		for i := range r.BaseRates {
			if r.BaseRates[i].Code == in.Code && r.BaseRates[i].DestinationName == in.DestinationName {
				r.BaseRates[i].BuyPrice = in.BuyPrice
				r.BaseRates[i].UpdatedAt = in.UpdatedAt
				updated = true
				break
			}
		}
		if !updated {
			r.BaseRates = append(r.BaseRates, in)
		}
	}
	return len(list), nil
}

func (r *MemoryRepo) FindPlan(ctx context.Context, planID string) (TariffPlan, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Plans[planID]
	return p, ok, nil
}

func (r *MemoryRepo) FindTenantPlanID(ctx context.Context, tenantID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	planID, ok := r.TenantPlans[tenantID]
	if !ok || planID == "" {
		return "", false, nil
	}
	return planID, true, nil
}

func (r *MemoryRepo) FindLongestPrefix(ctx context.Context, dialedNumber string) (BaseRate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best BaseRate
	bestLen := -1
	for _, b := range r.BaseRates {
		if !strings.HasPrefix(dialedNumber, b.Code) {
			continue
		}
		if len(b.Code) > bestLen {
			best = b
			bestLen = len(b.Code)
		}
	}
	if bestLen < 0 {
		return BaseRate{}, false, nil
	}
	return best, true, nil
}
