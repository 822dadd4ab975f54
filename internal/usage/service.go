package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voip-billing/internal/rates"
	"voip-billing/internal/wallet"
	"voip-billing/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is the hot-path usage intake: price the event, debit the wallet,
// persist the rated record.
//
// Propagation policy: rating and wallet errors abort the event. A call whose
// cost cannot be debited is never recorded as completed with a zero cost;
// rejecting beats silently underbilling.
type Service struct {
	rater  Rater
	wallet Debiter
	repo   Repository
	clock  func() time.Time
}

// Rater prices usage events (implemented by rates.Service).
type Rater interface {
	CallCost(ctx context.Context, tenantID, dialedNumber string, durationSeconds int) (rates.CallCost, error)
	SMSCost(ctx context.Context, tenantID, dialedNumber string) (rates.SMSCost, error)
}

// Debiter is the wallet surface the intake needs (implemented by wallet.Service).
// Credit is used only to reverse a debit whose record could not be persisted.
type Debiter interface {
	Debit(ctx context.Context, tenantID string, amount decimal.Decimal, reason wallet.EntryType, description, externalRef string) (wallet.DebitResult, error)
	Credit(ctx context.Context, tenantID string, amount decimal.Decimal, entryType wallet.EntryType, description, externalRef string) (wallet.CreditResult, error)
	Balance(ctx context.Context, tenantID string) (decimal.Decimal, error)
}

// Repository persists rated usage records.
type Repository interface {
	Insert(ctx context.Context, rec Record) error
}

var ErrInvalidEvent = errors.New("usage: invalid event")

func NewService(rater Rater, w Debiter, repo Repository) *Service {
	return &Service{rater: rater, wallet: w, repo: repo, clock: time.Now}
}

// SubmitCall rates and charges a completed call.
func (s *Service) SubmitCall(ctx context.Context, ev CallEvent) (ChargeResult, error) {
	if ev.TenantID == "" || ev.Destination == "" || ev.DurationSeconds <= 0 {
		return ChargeResult{}, ErrInvalidEvent
	}
	if ev.StartedAt.IsZero() {
		ev.StartedAt = s.clock().UTC()
	}

	cc, err := s.rater.CallCost(ctx, ev.TenantID, ev.Destination, ev.DurationSeconds)
	if err != nil {
		return ChargeResult{}, err
	}

	rec := Record{
		ID:              uuid.NewString(),
		TenantID:        ev.TenantID,
		Kind:            KindCall,
		Destination:     ev.Destination,
		DestinationName: cc.Rate.DestinationName,
		StartedAt:       ev.StartedAt.UTC(),
		DurationSeconds: ev.DurationSeconds,
		Cost:            cc.Cost,
		CreatedAt:       s.clock().UTC(),
	}

	desc := fmt.Sprintf("call to %s (%ds)", cc.Rate.DestinationName, ev.DurationSeconds)
	newBal, err := s.charge(ctx, rec, wallet.EntryTypeCallCost, desc)
	if err != nil {
		return ChargeResult{}, err
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		s.reverseCharge(ctx, rec, desc)
		return ChargeResult{}, err
	}
	return ChargeResult{Record: rec, NewBalance: newBal}, nil
}

// SubmitSMS rates and charges a sent message.
func (s *Service) SubmitSMS(ctx context.Context, ev SMSEvent) (ChargeResult, error) {
	if ev.TenantID == "" || ev.Destination == "" || ev.MessageLength <= 0 {
		return ChargeResult{}, ErrInvalidEvent
	}
	if ev.SentAt.IsZero() {
		ev.SentAt = s.clock().UTC()
	}

	sc, err := s.rater.SMSCost(ctx, ev.TenantID, ev.Destination)
	if err != nil {
		return ChargeResult{}, err
	}

	rec := Record{
		ID:              uuid.NewString(),
		TenantID:        ev.TenantID,
		Kind:            KindSMS,
		Destination:     ev.Destination,
		DestinationName: sc.Rate.DestinationName,
		StartedAt:       ev.SentAt.UTC(),
		MessageLength:   ev.MessageLength,
		Cost:            sc.Cost,
		CreatedAt:       s.clock().UTC(),
	}

	desc := fmt.Sprintf("sms to %s", sc.Rate.DestinationName)
	newBal, err := s.charge(ctx, rec, wallet.EntryTypeSMSCost, desc)
	if err != nil {
		return ChargeResult{}, err
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		s.reverseCharge(ctx, rec, desc)
		return ChargeResult{}, err
	}
	return ChargeResult{Record: rec, NewBalance: newBal}, nil
}

func (s *Service) charge(ctx context.Context, rec Record, reason wallet.EntryType, description string) (decimal.Decimal, error) {
	// Free-plan usage costs zero; there is nothing to debit and the ledger
	// stays free of zero-amount noise.
	if rec.Cost.IsZero() {
		return s.wallet.Balance(ctx, rec.TenantID)
	}
	res, err := s.wallet.Debit(ctx, rec.TenantID, rec.Cost, reason, description, "usage:"+rec.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return res.NewBalance, nil
}

// reverseCharge refunds a debit whose usage record failed to persist. The
// tenant must not pay for an event that can never be invoiced or reported;
// both ledger entries are kept so the reconciliation invariant holds.
func (s *Service) reverseCharge(ctx context.Context, rec Record, description string) {
	if rec.Cost.IsZero() {
		return
	}
	if _, err := s.wallet.Credit(ctx, rec.TenantID, rec.Cost, wallet.EntryTypeAdjustment, "reversal: "+description, "usage:"+rec.ID); err != nil {
		logger.From(ctx).Error("usage charge reversal failed",
			"tenant_id", rec.TenantID,
			"record_id", rec.ID,
			"amount", rec.Cost.String(),
			"err", err)
	}
}
