package audit

import (
	"context"
	"errors"
	"testing"
)

func TestAppend_FillsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogRateImport(context.Background(), "admin", 42); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(repo.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(repo.Events))
	}
	e := repo.Events[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled: %+v", e)
	}
	if e.Type != EventTypeRateImport {
		t.Fatalf("unexpected type %s", e.Type)
	}
}

func TestAppend_RejectsMissingType(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Append(context.Background(), Event{TenantID: "t1"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestAppend_RequiresRepo(t *testing.T) {
	svc := NewService(nil)
	if err := svc.LogInvoiceGenerated(context.Background(), "t1", "inv1", 3); err == nil {
		t.Fatalf("expected error without repository")
	}
}
