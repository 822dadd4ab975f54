package usage

import (
	"context"
	"errors"
	"testing"

	"voip-billing/internal/rates"
	"voip-billing/internal/wallet"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testRates() *rates.MemoryRepo {
	repo := rates.NewMemoryRepo()
	repo.Plans["plan-1"] = rates.TariffPlan{
		ID:                      "plan-1",
		Name:                    "standard",
		Type:                    rates.PlanTypePercentage,
		ProfitPercent:           dec("20"),
		Precision:               5,
		ChargingIntervalSeconds: 60,
	}
	repo.Plans["plan-free"] = rates.TariffPlan{
		ID:                      "plan-free",
		Name:                    "internal",
		Type:                    rates.PlanTypeFree,
		Precision:               5,
		ChargingIntervalSeconds: 60,
	}
	repo.TenantPlans["t1"] = "plan-1"
	repo.TenantPlans["t-free"] = "plan-free"
	repo.BaseRates = []rates.BaseRate{
		{Code: "46", DestinationName: "Sweden", BuyPrice: dec("0.02")},
	}
	return repo
}

func testEnv(t *testing.T) (*Service, *wallet.Service, *MemoryRepo) {
	t.Helper()
	rater := rates.NewService(testRates(), nil, nil)
	w := wallet.NewService(wallet.NewMemoryRepo())
	repo := NewMemoryRepo()
	return NewService(rater, w, repo), w, repo
}

func TestSubmitCall_DebitsAndPersists(t *testing.T) {
	svc, w, repo := testEnv(t)
	ctx := context.Background()

	if _, err := w.Credit(ctx, "t1", dec("10"), wallet.EntryTypeTopUp, "", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// 0.02 buy at +20% -> 0.024/min; 61s bills as 2 minutes -> 0.048.
	res, err := svc.SubmitCall(ctx, CallEvent{TenantID: "t1", Destination: "46701234567", DurationSeconds: 61})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Record.Cost.Equal(dec("0.048")) {
		t.Fatalf("expected cost 0.048, got %s", res.Record.Cost)
	}
	if !res.NewBalance.Equal(dec("9.952")) {
		t.Fatalf("expected balance 9.952, got %s", res.NewBalance)
	}
	if res.Record.Billed || res.Record.InvoiceID != "" {
		t.Fatalf("new record must be unbilled")
	}
	if len(repo.Records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(repo.Records))
	}

	entries, err := w.History(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if entries[0].ExternalRef != "usage:"+res.Record.ID {
		t.Fatalf("ledger entry not linked to usage record: %q", entries[0].ExternalRef)
	}
}

func TestSubmitCall_InsufficientBalanceAbortsEvent(t *testing.T) {
	svc, w, repo := testEnv(t)
	ctx := context.Background()

	if _, err := w.Credit(ctx, "t1", dec("0.01"), wallet.EntryTypeTopUp, "", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	_, err := svc.SubmitCall(ctx, CallEvent{TenantID: "t1", Destination: "46701234567", DurationSeconds: 61})
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// The event must not be recorded with a zero or partial cost.
	if len(repo.Records) != 0 {
		t.Fatalf("expected no persisted records, got %d", len(repo.Records))
	}
	bal, _ := w.Balance(ctx, "t1")
	if !bal.Equal(dec("0.01")) {
		t.Fatalf("expected untouched balance, got %s", bal)
	}
}

type failingRepo struct{}

func (failingRepo) Insert(ctx context.Context, rec Record) error {
	return errors.New("insert failed")
}

func TestSubmitCall_InsertFailureReversesDebit(t *testing.T) {
	rater := rates.NewService(testRates(), nil, nil)
	w := wallet.NewService(wallet.NewMemoryRepo())
	svc := NewService(rater, w, failingRepo{})
	ctx := context.Background()

	if _, err := w.Credit(ctx, "t1", dec("10"), wallet.EntryTypeTopUp, "", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if _, err := svc.SubmitCall(ctx, CallEvent{TenantID: "t1", Destination: "46701234567", DurationSeconds: 61}); err == nil {
		t.Fatalf("expected error from failing repository")
	}

	// The debit must be compensated: no money kept for an event that was
	// never persisted, and the ledger still reconciles to the balance.
	bal, err := w.Balance(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !bal.Equal(dec("10")) {
		t.Fatalf("expected balance restored to 10, got %s", bal)
	}

	entries, err := w.History(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected top-up, debit and reversal entries, got %d", len(entries))
	}
	if entries[0].Type != wallet.EntryTypeAdjustment || !entries[0].Amount.Equal(dec("0.048")) {
		t.Fatalf("expected reversal adjustment of 0.048, got %+v", entries[0])
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	if !sum.Equal(bal) {
		t.Fatalf("ledger sum %s does not reconcile with balance %s", sum, bal)
	}
}

func TestSubmitCall_NoRouteBlocksPricing(t *testing.T) {
	svc, _, repo := testEnv(t)

	_, err := svc.SubmitCall(context.Background(), CallEvent{TenantID: "t1", Destination: "99912345", DurationSeconds: 30})
	if !errors.Is(err, rates.ErrNoRouteFound) {
		t.Fatalf("expected ErrNoRouteFound, got %v", err)
	}
	if len(repo.Records) != 0 {
		t.Fatalf("expected no persisted records, got %d", len(repo.Records))
	}
}

func TestSubmitCall_FreePlanSkipsDebit(t *testing.T) {
	svc, w, repo := testEnv(t)
	ctx := context.Background()

	res, err := svc.SubmitCall(ctx, CallEvent{TenantID: "t-free", Destination: "46701234567", DurationSeconds: 30})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Record.Cost.IsZero() {
		t.Fatalf("expected zero cost, got %s", res.Record.Cost)
	}
	if len(repo.Records) != 1 {
		t.Fatalf("expected record persisted, got %d", len(repo.Records))
	}
	entries, err := w.History(ctx, "t-free")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no ledger entries for free usage, got %d", len(entries))
	}
}

func TestSubmitSMS(t *testing.T) {
	svc, w, _ := testEnv(t)
	ctx := context.Background()

	if _, err := w.Credit(ctx, "t1", dec("1"), wallet.EntryTypeTopUp, "", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	res, err := svc.SubmitSMS(ctx, SMSEvent{TenantID: "t1", Destination: "46701234567", MessageLength: 120})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Record.Cost.Equal(dec("0.024")) {
		t.Fatalf("expected cost 0.024, got %s", res.Record.Cost)
	}
	if res.Record.Kind != KindSMS {
		t.Fatalf("expected sms kind, got %s", res.Record.Kind)
	}
}

func TestSubmit_RejectsInvalidEvents(t *testing.T) {
	svc, _, _ := testEnv(t)
	ctx := context.Background()

	if _, err := svc.SubmitCall(ctx, CallEvent{Destination: "46", DurationSeconds: 10}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if _, err := svc.SubmitCall(ctx, CallEvent{TenantID: "t1", Destination: "46", DurationSeconds: 0}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if _, err := svc.SubmitSMS(ctx, SMSEvent{TenantID: "t1", Destination: "", MessageLength: 10}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}
