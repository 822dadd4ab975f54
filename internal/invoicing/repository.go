package invoicing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voip-billing/internal/usage"
	"voip-billing/pkg/utils"
)

// PostgresRepo implements Repository over database/sql.
//
// NOTE: This repository assumes the following tables exist:
// - tenants
// - usage_records (billed bool, invoice_id nullable)
// - invoices
// - invoice_line_items
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	const q = `SELECT 1 FROM tenants WHERE id = $1`
	var one int
	err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PostgresRepo) CountUnbilled(ctx context.Context, tenantID string, start, end time.Time) (int, error) {
	const q = `
SELECT COUNT(*)
FROM usage_records
WHERE tenant_id = $1 AND billed = false AND started_at >= $2 AND started_at < $3
`
	var n int
	if err := r.db.QueryRowContext(ctx, q, tenantID, start, end).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) ListUnbilled(ctx context.Context, tenantID string, start, end time.Time) ([]usage.Record, error) {
	const q = `
SELECT id, tenant_id, kind, destination, destination_name, started_at,
       duration_seconds, message_length, cost, billed, COALESCE(invoice_id, ''), created_at
FROM usage_records
WHERE tenant_id = $1 AND billed = false AND started_at >= $2 AND started_at < $3
ORDER BY started_at
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []usage.Record
	for rows.Next() {
		var rec usage.Record
		if err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&rec.Kind,
			&rec.Destination,
			&rec.DestinationName,
			&rec.StartedAt,
			&rec.DurationSeconds,
			&rec.MessageLength,
			&rec.Cost,
			&rec.Billed,
			&rec.InvoiceID,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateInvoice runs the whole batch in one transaction: invoice insert,
// line item inserts, and the billed-flag updates. A context cancellation or
// any failure rolls the entire unit back, leaving the window fully unbilled
// and safely re-runnable.
func (r *PostgresRepo) CreateInvoice(ctx context.Context, inv Invoice, recordIDs []string) error {
	const insInvoice = `
INSERT INTO invoices (
  id, tenant_id, period_start, period_end, status, total_amount, due_date, created_at, paid_date
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,NULL
)
`
	const insItem = `
INSERT INTO invoice_line_items (id, invoice_id, description, quantity, unit_price, amount)
VALUES ($1,$2,$3,$4,$5,$6)
`
	const flagRecords = `
UPDATE usage_records
SET billed = true, invoice_id = $1
WHERE id = ANY($2) AND billed = false
`
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insInvoice,
			inv.ID,
			inv.TenantID,
			inv.PeriodStart,
			inv.PeriodEnd,
			inv.Status,
			inv.TotalAmount,
			inv.DueDate,
			inv.CreatedAt,
		); err != nil {
			return err
		}
		for _, it := range inv.LineItems {
			if _, err := tx.ExecContext(ctx, insItem, it.ID, it.InvoiceID, it.Description, it.Quantity, it.UnitPrice, it.Amount); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, flagRecords, inv.ID, recordIDs)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != int64(len(recordIDs)) {
			// A concurrent generation billed some of these records first.
			// Roll everything back; the caller can retry over the window.
			return fmt.Errorf("%w: flagged %d of %d records", ErrConcurrencyConflict, n, len(recordIDs))
		}
		return nil
	})
}

func (r *PostgresRepo) GetInvoice(ctx context.Context, invoiceID string) (Invoice, bool, error) {
	const q = `
SELECT id, tenant_id, period_start, period_end, status, total_amount, due_date, created_at, paid_date
FROM invoices
WHERE id = $1
`
	var inv Invoice
	err := r.db.QueryRowContext(ctx, q, invoiceID).Scan(
		&inv.ID,
		&inv.TenantID,
		&inv.PeriodStart,
		&inv.PeriodEnd,
		&inv.Status,
		&inv.TotalAmount,
		&inv.DueDate,
		&inv.CreatedAt,
		&inv.PaidDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Invoice{}, false, nil
		}
		return Invoice{}, false, err
	}

	items, err := r.listItems(ctx, invoiceID)
	if err != nil {
		return Invoice{}, false, err
	}
	inv.LineItems = items
	return inv, true, nil
}

func (r *PostgresRepo) ListInvoices(ctx context.Context, tenantID string) ([]Invoice, error) {
	const q = `
SELECT id, tenant_id, period_start, period_end, status, total_amount, due_date, created_at, paid_date
FROM invoices
WHERE tenant_id = $1
ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(
			&inv.ID,
			&inv.TenantID,
			&inv.PeriodStart,
			&inv.PeriodEnd,
			&inv.Status,
			&inv.TotalAmount,
			&inv.DueDate,
			&inv.CreatedAt,
			&inv.PaidDate,
		); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, invoiceID string, status Status, paidDate *time.Time) error {
	const q = `
UPDATE invoices
SET status = $2, paid_date = $3
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, invoiceID, status, paidDate)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) listItems(ctx context.Context, invoiceID string) ([]LineItem, error) {
	const q = `
SELECT id, invoice_id, description, quantity, unit_price, amount
FROM invoice_line_items
WHERE invoice_id = $1
ORDER BY description
`
	rows, err := r.db.QueryContext(ctx, q, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Amount); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
