package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo implements Repository over database/sql.
//
// NOTE: Assumes an audit_events table with an INSERT-only policy
// (optionally enforced by a trigger preventing UPDATE/DELETE).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, tenant_id, type, actor, invoice_id, ledger_entry_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		e.Type,
		e.Actor,
		e.InvoiceID,
		e.LedgerEntryID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
