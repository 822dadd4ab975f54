package usage

import (
	"context"
	"database/sql"
)

// PostgresRepo implements Repository over database/sql.
//
// NOTE: Assumes a usage_records table with billed defaulting to false and a
// nullable invoice_id. Invoice generation updates those two columns; nothing
// else ever does.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO usage_records (
  id, tenant_id, kind, destination, destination_name, started_at,
  duration_seconds, message_length, cost, billed, invoice_id, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,false,NULL,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.TenantID,
		rec.Kind,
		rec.Destination,
		rec.DestinationName,
		rec.StartedAt,
		rec.DurationSeconds,
		rec.MessageLength,
		rec.Cost,
		rec.CreatedAt,
	)
	return err
}
