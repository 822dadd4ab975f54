package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voip-billing/internal/usage"
	"voip-billing/internal/wallet"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	rangeFrom = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
)

func seededRepo(t *testing.T) *MemoryRepo {
	t.Helper()
	repo := NewMemoryRepo()
	at := func(day int) time.Time { return rangeFrom.AddDate(0, 0, day) }

	repo.Ledger = []wallet.LedgerEntry{
		{ID: "l1", TenantID: "t1", Amount: dec("10"), Type: wallet.EntryTypeTopUp, CreatedAt: at(1)},
		{ID: "l2", TenantID: "t1", Amount: dec("-0.048"), Type: wallet.EntryTypeCallCost, CreatedAt: at(2)},
		{ID: "l3", TenantID: "t1", Amount: dec("-0.024"), Type: wallet.EntryTypeSMSCost, CreatedAt: at(3)},
		{ID: "l4", TenantID: "t1", Amount: dec("-2"), Type: wallet.EntryTypeWithdrawal, CreatedAt: at(4)},
		// outside the window
		{ID: "l5", TenantID: "t1", Amount: dec("50"), Type: wallet.EntryTypeTopUp, CreatedAt: rangeTo.Add(time.Hour)},
		// other tenant
		{ID: "l6", TenantID: "t2", Amount: dec("7"), Type: wallet.EntryTypeTopUp, CreatedAt: at(1)},
	}
	repo.Records = []usage.Record{
		{ID: "u1", TenantID: "t1", Kind: usage.KindCall, DurationSeconds: 61, Cost: dec("0.048"), Billed: true, StartedAt: at(2)},
		{ID: "u2", TenantID: "t1", Kind: usage.KindSMS, Cost: dec("0.024"), StartedAt: at(3)},
		{ID: "u3", TenantID: "t1", Kind: usage.KindCall, DurationSeconds: 30, Cost: dec("0.024"), StartedAt: rangeTo.Add(time.Minute)},
		{ID: "u4", TenantID: "t2", Kind: usage.KindCall, DurationSeconds: 10, Cost: dec("0.01"), StartedAt: at(1)},
	}
	return repo
}

func TestService_SpendSummary(t *testing.T) {
	svc := NewService(seededRepo(t))

	got, err := svc.SpendSummary(context.Background(), SpendSummaryRequest{
		TenantID: "t1",
		Range:    TimeRange{From: rangeFrom, To: rangeTo},
	})
	if err != nil {
		t.Fatalf("SpendSummary: %v", err)
	}

	if !got.TotalCredit.Equal(dec("10")) {
		t.Errorf("TotalCredit = %s, want 10", got.TotalCredit)
	}
	if !got.TotalDebit.Equal(dec("2.072")) {
		t.Errorf("TotalDebit = %s, want 2.072", got.TotalDebit)
	}
	if !got.NetDelta.Equal(dec("7.928")) {
		t.Errorf("NetDelta = %s, want 7.928", got.NetDelta)
	}
	if !got.CallSpend.Equal(dec("0.048")) {
		t.Errorf("CallSpend = %s, want 0.048", got.CallSpend)
	}
	if !got.SMSSpend.Equal(dec("0.024")) {
		t.Errorf("SMSSpend = %s, want 0.024", got.SMSSpend)
	}
	if !got.TopUps.Equal(dec("10")) {
		t.Errorf("TopUps = %s, want 10", got.TopUps)
	}
}

func TestService_UsageSummary(t *testing.T) {
	svc := NewService(seededRepo(t))

	got, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{
		TenantID: "t1",
		Range:    TimeRange{From: rangeFrom, To: rangeTo},
	})
	if err != nil {
		t.Fatalf("UsageSummary: %v", err)
	}

	if got.TotalCalls != 1 || got.TotalSMS != 1 {
		t.Errorf("counts = %d calls, %d sms, want 1 and 1", got.TotalCalls, got.TotalSMS)
	}
	if got.TotalDurationSeconds != 61 {
		t.Errorf("TotalDurationSeconds = %d, want 61", got.TotalDurationSeconds)
	}
	if !got.TotalCost.Equal(dec("0.072")) {
		t.Errorf("TotalCost = %s, want 0.072", got.TotalCost)
	}
	if got.BilledRecords != 1 || got.UnbilledRecords != 1 {
		t.Errorf("billed = %d, unbilled = %d, want 1 and 1", got.BilledRecords, got.UnbilledRecords)
	}
}

func TestService_Validation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	cases := []SpendSummaryRequest{
		{TenantID: "", Range: TimeRange{From: rangeFrom, To: rangeTo}},
		{TenantID: "t1"},
		{TenantID: "t1", Range: TimeRange{From: rangeTo, To: rangeFrom}},
	}
	for _, req := range cases {
		if _, err := svc.SpendSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("SpendSummary(%+v) err = %v, want ErrInvalidRequest", req, err)
		}
	}
}
