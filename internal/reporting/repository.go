package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"voip-billing/internal/usage"
	"voip-billing/internal/wallet"
)

const (
	sqlListLedgerRange = `
		SELECT id, tenant_id, amount, entry_type, status, description, external_ref, created_at
		FROM ledger_entries
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC`

	sqlListUsageRange = `
		SELECT id, tenant_id, kind, destination, destination_name, started_at,
		       duration_seconds, message_length, cost, billed, invoice_id, created_at
		FROM usage_records
		WHERE tenant_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY started_at ASC`
)

// PostgresRepo reads reporting data straight from the ledger and usage tables.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListLedger(ctx context.Context, tenantID string, from, to time.Time) ([]wallet.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, sqlListLedgerRange, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list ledger range: %w", err)
	}
	defer rows.Close()

	var out []wallet.LedgerEntry
	for rows.Next() {
		var e wallet.LedgerEntry
		var ref sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Amount, &e.Type, &e.Status, &e.Description, &ref, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.ExternalRef = ref.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListUsage(ctx context.Context, tenantID string, from, to time.Time) ([]usage.Record, error) {
	rows, err := r.db.QueryContext(ctx, sqlListUsageRange, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list usage range: %w", err)
	}
	defer rows.Close()

	var out []usage.Record
	for rows.Next() {
		var rec usage.Record
		var invoiceID sql.NullString
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.Kind, &rec.Destination, &rec.DestinationName,
			&rec.StartedAt, &rec.DurationSeconds, &rec.MessageLength, &rec.Cost, &rec.Billed, &invoiceID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		rec.InvoiceID = invoiceID.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
