package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"aircx/internal/results"
	"aircx/internal/types"
)

// ResultSchema creates the default result table. Each row is one rule's
// verdicts across the active sensitivity tiers; the per-tier maps are JSONB
// objects keyed by tier name.
const ResultSchema = `CREATE TABLE IF NOT EXISTS diagnostic_results (
	id                 UUID PRIMARY KEY,
	equipment_id       TEXT NOT NULL,
	datetime           TIMESTAMPTZ NOT NULL,
	diagnostic_name    TEXT NOT NULL,
	diagnostic_message JSONB NOT NULL,
	result_code        JSONB NOT NULL,
	color_code         JSONB NOT NULL,
	energy_impact      DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_diagnostic_results_equipment_time
	ON diagnostic_results (equipment_id, datetime DESC);`

// ResultRepository stores result-table rows in Postgres. The table name is
// chosen per call and quoted as an identifier.
type ResultRepository struct {
	db DBTX
}

// Compile-time assertion that ResultRepository can back the sink.
var _ results.RowStore = (*ResultRepository)(nil)

// NewResultRepository creates a new ResultRepository backed by the given
// database connection (pool or transaction).
func NewResultRepository(db DBTX) *ResultRepository {
	return &ResultRepository{db: db}
}

// EnsureSchema creates the default table and its index when missing.
func (r *ResultRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, ResultSchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create result table", err)
	}
	return nil
}

// InsertTableRow writes one row. A repeated row ID is ignored so redelivered
// rows do not duplicate.
func (r *ResultRepository) InsertTableRow(ctx context.Context, table string, row results.TableRow) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (id, equipment_id, datetime, diagnostic_name, diagnostic_message, result_code, color_code, energy_impact)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`, quoteTable(table))

	_, err := r.db.Exec(ctx, query,
		row.ID,
		row.EquipmentID,
		row.Datetime,
		row.DiagnosticName,
		row.DiagnosticMessage,
		row.ResultCode,
		row.ColorCode,
		row.EnergyImpact,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert result row", err).
			WithDetails(map[string]any{"table": table, "diagnostic": row.DiagnosticName})
	}
	return nil
}

// Recent returns up to limit rows for one unit, newest first, optionally
// bounded below by since.
func (r *ResultRepository) Recent(ctx context.Context, table, equipmentID string, since time.Time, limit int) ([]results.TableRow, error) {
	if limit <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationLimit, "limit must be positive", nil)
	}
	query := fmt.Sprintf(
		`SELECT id, equipment_id, datetime, diagnostic_name, diagnostic_message, result_code, color_code, energy_impact
		 FROM %s
		 WHERE equipment_id = $1 AND datetime >= $2
		 ORDER BY datetime DESC
		 LIMIT $3`, quoteTable(table))

	rows, err := r.db.Query(ctx, query, equipmentID, since, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query result rows", err)
	}
	defer rows.Close()

	var out []results.TableRow
	for rows.Next() {
		var row results.TableRow
		if err := rows.Scan(
			&row.ID,
			&row.EquipmentID,
			&row.Datetime,
			&row.DiagnosticName,
			&row.DiagnosticMessage,
			&row.ResultCode,
			&row.ColorCode,
			&row.EnergyImpact,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan result row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating result rows", err)
	}
	return out, nil
}

// CountByColor tallies the primary-tier colors of a unit's rows since a point
// in time. Only rows carrying the given tier are counted.
func (r *ResultRepository) CountByColor(ctx context.Context, table, equipmentID string, tier types.Tier, since time.Time) (map[types.Color]int, error) {
	query := fmt.Sprintf(
		`SELECT color_code ->> $2 AS color, COUNT(*)
		 FROM %s
		 WHERE equipment_id = $1 AND datetime >= $3 AND color_code ? $2
		 GROUP BY color`, quoteTable(table))

	rows, err := r.db.Query(ctx, query, equipmentID, tier.String(), since)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count result colors", err)
	}
	defer rows.Close()

	counts := make(map[types.Color]int)
	for rows.Next() {
		var color string
		var n int
		if err := rows.Scan(&color, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan color count", err)
		}
		counts[types.Color(color)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating color counts", err)
	}
	return counts, nil
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(table string) string {
	if table == "" {
		table = results.DefaultTable
	}
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}
