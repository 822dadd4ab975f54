package rates

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPlan() TariffPlan {
	return TariffPlan{
		ID:                      "plan-1",
		Name:                    "standard",
		Type:                    PlanTypePercentage,
		ProfitPercent:           dec("10"),
		Precision:               5,
		ChargingIntervalSeconds: 60,
	}
}

func testRepo() *MemoryRepo {
	repo := NewMemoryRepo()
	repo.Plans["plan-1"] = testPlan()
	repo.TenantPlans["t1"] = "plan-1"
	repo.TenantPlans["t-unassigned"] = ""
	repo.BaseRates = []BaseRate{
		{Code: "46", DestinationName: "Sweden", BuyPrice: dec("0.01")},
		{Code: "467", DestinationName: "Sweden Mobile", BuyPrice: dec("0.02")},
		{Code: "1", DestinationName: "USA", BuyPrice: dec("0.005")},
	}
	return repo
}

func TestApply_PercentageRoundsHalfAwayFromZero(t *testing.T) {
	p := testPlan()

	sell := p.Apply(dec("0.01"))
	if !sell.Equal(dec("0.01100")) {
		t.Fatalf("expected 0.01100, got %s", sell)
	}

	// 0.111115 * 1.0 stays 0.111115; rounding to 5 places must go up, not truncate.
	p.ProfitPercent = decimal.Zero
	sell = p.Apply(dec("0.111115"))
	if !sell.Equal(dec("0.11112")) {
		t.Fatalf("expected 0.11112, got %s", sell)
	}
}

func TestApply_ProfitClamping(t *testing.T) {
	p := testPlan()
	p.MinProfit = dec("0.001")
	p.MaxProfit = dec("0.01")

	// Computed profit 0.0001 is below the floor.
	p.ProfitPercent = dec("0.01")
	sell := p.Apply(dec("1"))
	if !sell.Equal(dec("1.001")) {
		t.Fatalf("expected sell 1.001 (buy + min profit), got %s", sell)
	}

	// Computed profit 0.1 exceeds the ceiling.
	p.ProfitPercent = dec("10")
	sell = p.Apply(dec("1"))
	if !sell.Equal(dec("1.01")) {
		t.Fatalf("expected sell 1.01 (buy + max profit), got %s", sell)
	}
}

func TestApply_FixedAndFree(t *testing.T) {
	p := testPlan()
	p.Type = PlanTypeFixed
	p.FixedProfit = dec("0.005")
	if sell := p.Apply(dec("0.02")); !sell.Equal(dec("0.025")) {
		t.Fatalf("expected 0.025, got %s", sell)
	}

	p.Type = PlanTypeFree
	if sell := p.Apply(dec("0.02")); !sell.IsZero() {
		t.Fatalf("expected zero sell for free plan, got %s", sell)
	}
	cr := Configure(BaseRate{Code: "46", BuyPrice: dec("0.02")}, p)
	if !cr.Profit.Equal(dec("-0.02")) {
		t.Fatalf("expected profit -0.02 for free plan, got %s", cr.Profit)
	}
}

func TestService_RefusesInvalidStoredPlan(t *testing.T) {
	repo := testRepo()
	bad := testPlan()
	bad.ChargingIntervalSeconds = 0
	repo.Plans["plan-1"] = bad
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	if _, err := svc.ConfigureRates(ctx, "plan-1"); !errors.Is(err, errInvalidPlan) {
		t.Fatalf("expected invalid plan error from ConfigureRates, got %v", err)
	}
	if _, err := svc.RateForDestination(ctx, "t1", "46701234567"); !errors.Is(err, errInvalidPlan) {
		t.Fatalf("expected invalid plan error from RateForDestination, got %v", err)
	}
}

func TestPlanValidate(t *testing.T) {
	p := testPlan()
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	p.MinProfit = dec("0.02")
	p.MaxProfit = dec("0.01")
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for min > max")
	}

	p = testPlan()
	p.Precision = 11
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for precision out of range")
	}

	p = testPlan()
	p.ChargingIntervalSeconds = 0
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for zero charging interval")
	}
}

func TestBillableSeconds(t *testing.T) {
	if got := billableSeconds(61, 60); got != 120 {
		t.Fatalf("expected 120, got %d", got)
	}
	if got := billableSeconds(60, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(1, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := billableSeconds(61, 1); got != 61 {
		t.Fatalf("expected 61, got %d", got)
	}
}

func TestConfigureRates_PlanNotFound(t *testing.T) {
	svc := NewService(testRepo(), nil, nil)
	_, err := svc.ConfigureRates(context.Background(), "missing")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestUserRates(t *testing.T) {
	svc := NewService(testRepo(), nil, nil)

	list, err := svc.UserRates(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 rates, got %d", len(list))
	}
	// 0.01 buy at +10% -> 0.011 sell, profit margin 10%.
	for _, r := range list {
		if r.Code == "46" {
			if !r.SellPrice.Equal(dec("0.011")) {
				t.Fatalf("expected sell 0.011, got %s", r.SellPrice)
			}
			if !r.ProfitMarginPercent.Equal(dec("10")) {
				t.Fatalf("expected margin 10, got %s", r.ProfitMarginPercent)
			}
		}
	}

	_, err = svc.UserRates(context.Background(), "t-unassigned")
	if !errors.Is(err, ErrNoPlanAssigned) {
		t.Fatalf("expected ErrNoPlanAssigned, got %v", err)
	}
}

func TestRateForDestination_LongestPrefixWins(t *testing.T) {
	svc := NewService(testRepo(), nil, nil)

	rate, err := svc.RateForDestination(context.Background(), "t1", "46701234567")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rate.Code != "467" {
		t.Fatalf("expected code 467, got %s", rate.Code)
	}

	rate, err = svc.RateForDestination(context.Background(), "t1", "4611111")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rate.Code != "46" {
		t.Fatalf("expected code 46, got %s", rate.Code)
	}

	_, err = svc.RateForDestination(context.Background(), "t1", "999123")
	if !errors.Is(err, ErrNoRouteFound) {
		t.Fatalf("expected ErrNoRouteFound, got %v", err)
	}
}

func TestCallCost_ChargingIntervalCeiling(t *testing.T) {
	repo := testRepo()
	plan := repo.Plans["plan-1"]
	plan.ProfitPercent = dec("20")
	repo.Plans["plan-1"] = plan
	svc := NewService(repo, nil, nil)

	// buy 0.02 at +20% -> 0.024/min; 61s bills as 120s -> 0.048.
	cc, err := svc.CallCost(context.Background(), "t1", "46701234567", 61)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cc.BillableSeconds != 120 {
		t.Fatalf("expected 120 billable seconds, got %d", cc.BillableSeconds)
	}
	if !cc.Cost.Equal(dec("0.048")) {
		t.Fatalf("expected cost 0.048, got %s", cc.Cost)
	}

	if _, err := svc.CallCost(context.Background(), "t1", "46701234567", 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for zero duration, got %v", err)
	}
}

func TestSMSCost(t *testing.T) {
	svc := NewService(testRepo(), nil, nil)

	sc, err := svc.SMSCost(context.Background(), "t1", "46701234567")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !sc.Cost.Equal(dec("0.022")) {
		t.Fatalf("expected 0.022, got %s", sc.Cost)
	}
}

func TestImportBaseRates_UpsertsDuplicates(t *testing.T) {
	repo := testRepo()
	svc := NewService(repo, nil, nil)

	n, err := svc.ImportBaseRates(context.Background(), "admin", []BaseRate{
		{Code: "46", DestinationName: "Sweden", BuyPrice: dec("0.012")},
		{Code: "49", DestinationName: "Germany", BuyPrice: dec("0.008")},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
	if len(repo.BaseRates) != 4 {
		t.Fatalf("expected 4 base rates after upsert, got %d", len(repo.BaseRates))
	}
	for _, b := range repo.BaseRates {
		if b.Code == "46" && b.DestinationName == "Sweden" && !b.BuyPrice.Equal(dec("0.012")) {
			t.Fatalf("expected updated buy price 0.012, got %s", b.BuyPrice)
		}
	}

	if _, err := svc.ImportBaseRates(context.Background(), "admin", []BaseRate{{Code: "", DestinationName: "x", BuyPrice: dec("1")}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.ImportBaseRates(context.Background(), "admin", []BaseRate{{Code: "1", DestinationName: "x", BuyPrice: dec("-1")}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for negative price, got %v", err)
	}
}

func TestImportBaseRates_RejectsNonDigitCodes(t *testing.T) {
	repo := testRepo()
	svc := NewService(repo, nil, nil)

	// LIKE metacharacters in a code would act as wildcards in prefix lookup.
	for _, code := range []string{"46%", "4_6", "+46", "46 "} {
		if _, err := svc.ImportBaseRates(context.Background(), "admin", []BaseRate{{Code: code, DestinationName: "x", BuyPrice: dec("0.01")}}); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for code %q, got %v", code, err)
		}
	}
	if len(repo.BaseRates) != 3 {
		t.Fatalf("expected table untouched, got %d rows", len(repo.BaseRates))
	}
}
