package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information. Callers treat appends as
// best-effort and only log failures.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogRateImport records an administrative buy-rate upload.
func (s *Service) LogRateImport(ctx context.Context, actor string, rows int) error {
	return s.Append(ctx, Event{
		Type:    EventTypeRateImport,
		Actor:   actor,
		Message: fmt.Sprintf("imported %d base rates", rows),
	})
}

// LogInvoiceGenerated records a billing run over a tenant's usage window.
func (s *Service) LogInvoiceGenerated(ctx context.Context, tenantID, invoiceID string, records int) error {
	return s.Append(ctx, Event{
		TenantID:  tenantID,
		Type:      EventTypeInvoiceGenerated,
		InvoiceID: invoiceID,
		Message:   fmt.Sprintf("invoice over %d usage records", records),
	})
}

// LogManualCredit records a privileged wallet credit.
func (s *Service) LogManualCredit(ctx context.Context, tenantID, actor, ledgerEntryID, reason string) error {
	return s.Append(ctx, Event{
		TenantID:      tenantID,
		Type:          EventTypeManualCredit,
		Actor:         actor,
		LedgerEntryID: ledgerEntryID,
		Message:       reason,
	})
}
