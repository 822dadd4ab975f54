package invoicing

import (
	"context"
	"errors"
	"testing"
	"time"

	"voip-billing/internal/usage"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var windowStart = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
var windowEnd = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func testRepo() *MemoryRepo {
	repo := NewMemoryRepo()
	repo.Tenants["t1"] = true
	repo.Records = []usage.Record{
		{ID: "u1", TenantID: "t1", Kind: usage.KindCall, DestinationName: "Sweden", StartedAt: windowStart.Add(24 * time.Hour), Cost: dec("0.048")},
		{ID: "u2", TenantID: "t1", Kind: usage.KindCall, DestinationName: "Sweden", StartedAt: windowStart.Add(48 * time.Hour), Cost: dec("0.024")},
		{ID: "u3", TenantID: "t1", Kind: usage.KindSMS, DestinationName: "Germany", StartedAt: windowStart.Add(72 * time.Hour), Cost: dec("0.01")},
		// outside the window
		{ID: "u4", TenantID: "t1", Kind: usage.KindCall, DestinationName: "Sweden", StartedAt: windowEnd.Add(time.Hour), Cost: dec("1")},
		// other tenant
		{ID: "u5", TenantID: "t2", Kind: usage.KindCall, DestinationName: "Sweden", StartedAt: windowStart.Add(time.Hour), Cost: dec("1")},
	}
	return repo
}

func fixedClock(svc *Service, at time.Time) { svc.clock = func() time.Time { return at } }

func TestGenerateInvoice_GroupsByDestination(t *testing.T) {
	repo := testRepo()
	svc := NewService(repo, nil, 30)
	genAt := time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)
	fixedClock(svc, genAt)

	inv, err := svc.GenerateInvoice(context.Background(), GenerateRequest{
		TenantID:    "t1",
		PeriodStart: windowStart,
		PeriodEnd:   windowEnd,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(inv.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(inv.LineItems))
	}
	// Sorted by description: Germany, Sweden.
	if inv.LineItems[0].Description != "Germany" || inv.LineItems[0].Quantity != 1 {
		t.Fatalf("unexpected first item: %+v", inv.LineItems[0])
	}
	sweden := inv.LineItems[1]
	if sweden.Quantity != 2 {
		t.Fatalf("expected 2 Sweden records, got %d", sweden.Quantity)
	}
	if !sweden.Amount.Equal(dec("0.072")) {
		t.Fatalf("expected Sweden amount 0.072, got %s", sweden.Amount)
	}
	if !sweden.UnitPrice.Equal(dec("0.036")) {
		t.Fatalf("expected Sweden unit price 0.036, got %s", sweden.UnitPrice)
	}
	if !inv.TotalAmount.Equal(dec("0.082")) {
		t.Fatalf("expected total 0.082, got %s", inv.TotalAmount)
	}

	// Generation happened after the period end, so the due date anchors on it.
	if !inv.DueDate.Equal(genAt.AddDate(0, 0, 30)) {
		t.Fatalf("unexpected due date %s", inv.DueDate)
	}

	// Consumed records are flagged; the out-of-window and foreign ones are not.
	for _, rec := range repo.Records {
		switch rec.ID {
		case "u1", "u2", "u3":
			if !rec.Billed || rec.InvoiceID != inv.ID {
				t.Fatalf("record %s not stamped: %+v", rec.ID, rec)
			}
		default:
			if rec.Billed {
				t.Fatalf("record %s must stay unbilled", rec.ID)
			}
		}
	}
}

func TestGenerateInvoice_Idempotent(t *testing.T) {
	repo := testRepo()
	svc := NewService(repo, nil, 30)
	ctx := context.Background()

	req := GenerateRequest{TenantID: "t1", PeriodStart: windowStart, PeriodEnd: windowEnd}
	if _, err := svc.GenerateInvoice(ctx, req); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	_, err := svc.GenerateInvoice(ctx, req)
	if !errors.Is(err, ErrNothingToBill) {
		t.Fatalf("expected ErrNothingToBill on rerun, got %v", err)
	}

	n, err := svc.CountUnbilled(ctx, "t1", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 unbilled after generation, got %d", n)
	}
	if len(repo.Invoices) != 1 {
		t.Fatalf("expected exactly one invoice, got %d", len(repo.Invoices))
	}
}

func TestGenerateInvoice_TenantNotFound(t *testing.T) {
	svc := NewService(testRepo(), nil, 30)
	_, err := svc.GenerateInvoice(context.Background(), GenerateRequest{
		TenantID:    "nope",
		PeriodStart: windowStart,
		PeriodEnd:   windowEnd,
	})
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestGenerateInvoice_CallerDueDateKeptWhenFuture(t *testing.T) {
	svc := NewService(testRepo(), nil, 30)
	genAt := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	fixedClock(svc, genAt)

	future := genAt.AddDate(0, 1, 0)
	inv, err := svc.GenerateInvoice(context.Background(), GenerateRequest{
		TenantID:    "t1",
		PeriodStart: windowStart,
		PeriodEnd:   windowEnd,
		DueDate:     future,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !inv.DueDate.Equal(future) {
		t.Fatalf("expected caller due date kept, got %s", inv.DueDate)
	}

	// A stale caller-supplied due date is replaced.
	repo2 := testRepo()
	svc2 := NewService(repo2, nil, 30)
	fixedClock(svc2, genAt)
	inv2, err := svc2.GenerateInvoice(context.Background(), GenerateRequest{
		TenantID:    "t1",
		PeriodStart: windowStart,
		PeriodEnd:   windowEnd,
		DueDate:     windowStart, // long past
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !inv2.DueDate.Equal(genAt.AddDate(0, 0, 30)) {
		t.Fatalf("expected recomputed due date, got %s", inv2.DueDate)
	}
}

func TestCountUnbilled_IsSideEffectFree(t *testing.T) {
	repo := testRepo()
	svc := NewService(repo, nil, 30)
	ctx := context.Background()

	n, err := svc.CountUnbilled(ctx, "t1", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	for _, rec := range repo.Records {
		if rec.Billed {
			t.Fatalf("count must not flag records")
		}
	}

	if _, err := svc.CountUnbilled(ctx, "t1", windowEnd, windowStart); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for inverted window, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	svc := NewService(testRepo(), nil, 30)
	ctx := context.Background()

	inv, err := svc.GenerateInvoice(ctx, GenerateRequest{TenantID: "t1", PeriodStart: windowStart, PeriodEnd: windowEnd})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	paid, err := svc.MarkPaid(ctx, inv.ID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if paid.Status != StatusPaid || paid.PaidDate == nil {
		t.Fatalf("expected paid with paid date, got %+v", paid)
	}

	if _, err := svc.MarkPaid(ctx, inv.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double pay, got %v", err)
	}
	if _, err := svc.Cancel(ctx, inv.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition cancelling a paid invoice, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkOverdue(t *testing.T) {
	svc := NewService(testRepo(), nil, 30)
	ctx := context.Background()
	genAt := time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)
	fixedClock(svc, genAt)

	inv, err := svc.GenerateInvoice(ctx, GenerateRequest{TenantID: "t1", PeriodStart: windowStart, PeriodEnd: windowEnd})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Before the due date the transition is rejected.
	if _, err := svc.MarkOverdue(ctx, inv.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition before due date, got %v", err)
	}

	fixedClock(svc, inv.DueDate.Add(24*time.Hour))
	over, err := svc.MarkOverdue(ctx, inv.ID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if over.Status != StatusOverdue {
		t.Fatalf("expected overdue, got %s", over.Status)
	}

	// Overdue invoices can still be paid.
	paid, err := svc.MarkPaid(ctx, inv.ID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if paid.Status != StatusPaid {
		t.Fatalf("expected paid, got %s", paid.Status)
	}
}

func TestGenerateInvoice_CancelledContextAborts(t *testing.T) {
	repo := testRepo()
	svc := NewService(repo, nil, 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GenerateInvoice(ctx, GenerateRequest{TenantID: "t1", PeriodStart: windowStart, PeriodEnd: windowEnd})
	if err == nil {
		t.Fatalf("expected error from cancelled context")
	}
	for _, rec := range repo.Records {
		if rec.Billed {
			t.Fatalf("cancelled generation must leave records unbilled")
		}
	}
	if len(repo.Invoices) != 0 {
		t.Fatalf("cancelled generation must not persist an invoice")
	}
}
