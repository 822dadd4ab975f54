package rates

import (
	"context"
	"database/sql"
	"errors"

	"voip-billing/pkg/utils"
)

// PostgresRepo implements Repository over database/sql.
//
// NOTE: This repository assumes the following tables exist:
// - base_rates        UNIQUE (code, destination_name)
// - tariff_plans      UNIQUE (name)
// - tenants           (tariff_plan_id nullable)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListBaseRates(ctx context.Context) ([]BaseRate, error) {
	const q = `
SELECT code, destination_name, buy_price, created_at, updated_at
FROM base_rates
ORDER BY destination_name, code
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BaseRate
	for rows.Next() {
		var b BaseRate
		if err := rows.Scan(&b.Code, &b.DestinationName, &b.BuyPrice, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpsertBaseRates(ctx context.Context, list []BaseRate) (int, error) {
	const q = `
INSERT INTO base_rates (code, destination_name, buy_price, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (code, destination_name)
DO UPDATE SET buy_price = EXCLUDED.buy_price,
              updated_at = EXCLUDED.updated_at
`
	n := 0
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for _, b := range list {
			if _, err := tx.ExecContext(ctx, q, b.Code, b.DestinationName, b.BuyPrice, b.CreatedAt, b.UpdatedAt); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) FindPlan(ctx context.Context, planID string) (TariffPlan, bool, error) {
	const q = `
SELECT id, name, type, profit_percent, fixed_profit, min_profit, max_profit,
       precision, charging_interval_seconds, created_at, updated_at
FROM tariff_plans
WHERE id = $1
`
	var p TariffPlan
	err := r.db.QueryRowContext(ctx, q, planID).Scan(
		&p.ID,
		&p.Name,
		&p.Type,
		&p.ProfitPercent,
		&p.FixedProfit,
		&p.MinProfit,
		&p.MaxProfit,
		&p.Precision,
		&p.ChargingIntervalSeconds,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TariffPlan{}, false, nil
		}
		return TariffPlan{}, false, err
	}
	return p, true, nil
}

func (r *PostgresRepo) FindTenantPlanID(ctx context.Context, tenantID string) (string, bool, error) {
	const q = `
SELECT tariff_plan_id
FROM tenants
WHERE id = $1
`
	var planID sql.NullString
	err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	if !planID.Valid || planID.String == "" {
		return "", false, nil
	}
	return planID.String, true, nil
}

func (r *PostgresRepo) FindLongestPrefix(ctx context.Context, dialedNumber string) (BaseRate, bool, error) {
	// The longest code that prefixes the dialed number wins.
	const q = `
SELECT code, destination_name, buy_price, created_at, updated_at
FROM base_rates
WHERE $1 LIKE code || '%'
ORDER BY length(code) DESC
LIMIT 1
`
	var b BaseRate
	err := r.db.QueryRowContext(ctx, q, dialedNumber).Scan(&b.Code, &b.DestinationName, &b.BuyPrice, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BaseRate{}, false, nil
		}
		return BaseRate{}, false, err
	}
	return b, true, nil
}
