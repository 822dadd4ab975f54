package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voip-billing/pkg/utils"

	"github.com/shopspring/decimal"
)

// PostgresRepo implements Repository over database/sql.
//
// NOTE: This repository assumes the following tables exist:
// - wallets         (tenant_id PK, balance NUMERIC(18,5))
// - wallet_ledger   (immutable append-only)
//
// Debit strategy: a conditional update
//   UPDATE wallets SET balance = balance - $amt WHERE tenant_id = $t AND balance >= $amt
// with a RowsAffected check. The database serializes concurrent debits per
// tenant row, which stays correct across multiple service instances; no
// in-process lock is involved.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetOrCreate(ctx context.Context, tenantID, currency string, now time.Time) (Wallet, error) {
	const ins = `
INSERT INTO wallets (tenant_id, balance, currency, created_at, updated_at)
VALUES ($1, 0, $2, $3, $3)
ON CONFLICT (tenant_id) DO NOTHING
`
	if _, err := r.db.ExecContext(ctx, ins, tenantID, currency, now); err != nil {
		return Wallet{}, err
	}
	w, ok, err := r.Get(ctx, tenantID)
	if err != nil {
		return Wallet{}, err
	}
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID string) (Wallet, bool, error) {
	const q = `
SELECT tenant_id, balance, currency, created_at, updated_at
FROM wallets
WHERE tenant_id = $1
`
	var w Wallet
	err := r.db.QueryRowContext(ctx, q, tenantID).Scan(
		&w.TenantID,
		&w.Balance,
		&w.Currency,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, false, nil
		}
		return Wallet{}, false, err
	}
	return w, true, nil
}

func (r *PostgresRepo) DebitIfSufficient(ctx context.Context, tenantID string, amount decimal.Decimal, entry LedgerEntry) (decimal.Decimal, error) {
	const upd = `
UPDATE wallets
SET balance = balance - $2, updated_at = $3
WHERE tenant_id = $1 AND balance >= $2
RETURNING balance
`
	var newBal decimal.Decimal
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, upd, tenantID, amount, entry.CreatedAt).Scan(&newBal)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			// The conditional update matched nothing: missing wallet or
			// short balance. Read the current balance for the error payload.
			cur, ok, gerr := r.getTx(ctx, tx, tenantID)
			if gerr != nil {
				return gerr
			}
			if !ok {
				return ErrNotFound
			}
			return &InsufficientBalanceError{Current: cur.Balance, Required: amount}
		}
		return insertLedger(ctx, tx, entry)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newBal, nil
}

func (r *PostgresRepo) Credit(ctx context.Context, tenantID string, amount decimal.Decimal, entry LedgerEntry) (decimal.Decimal, error) {
	const upd = `
UPDATE wallets
SET balance = balance + $2, updated_at = $3
WHERE tenant_id = $1
RETURNING balance
`
	var newBal decimal.Decimal
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, upd, tenantID, amount, entry.CreatedAt).Scan(&newBal); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return insertLedger(ctx, tx, entry)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newBal, nil
}

func (r *PostgresRepo) ListLedger(ctx context.Context, tenantID string) ([]LedgerEntry, error) {
	const q = `
SELECT id, tenant_id, amount, type, status, description, external_ref, created_at
FROM wallet_ledger
WHERE tenant_id = $1
ORDER BY created_at DESC, id DESC
`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Amount, &e.Type, &e.Status, &e.Description, &e.ExternalRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) getTx(ctx context.Context, tx *sql.Tx, tenantID string) (Wallet, bool, error) {
	const q = `
SELECT tenant_id, balance, currency, created_at, updated_at
FROM wallets
WHERE tenant_id = $1
`
	var w Wallet
	err := tx.QueryRowContext(ctx, q, tenantID).Scan(
		&w.TenantID,
		&w.Balance,
		&w.Currency,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, false, nil
		}
		return Wallet{}, false, err
	}
	return w, true, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, e LedgerEntry) error {
	const q = `
INSERT INTO wallet_ledger (
  id, tenant_id, amount, type, status, description, external_ref, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	if _, err := tx.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		e.Amount,
		e.Type,
		e.Status,
		e.Description,
		e.ExternalRef,
		e.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}
