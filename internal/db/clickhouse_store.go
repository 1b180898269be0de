package db

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"aircx/internal/results"
	"aircx/internal/types"
)

// ClickHouseResultTableSQL creates the analytics copy of the result table.
// The per-tier maps are flattened into Map columns keyed by tier name.
const ClickHouseResultTableSQL = `
	CREATE TABLE IF NOT EXISTS %s (
		id UUID,
		equipment_id String,
		datetime DateTime64(3),
		diagnostic_name String,
		diagnostic_message Map(String, String),
		result_code Map(String, Float64),
		color_code Map(String, String),
		energy_impact Nullable(Float64)
	) ENGINE = MergeTree()
	ORDER BY (equipment_id, datetime)
	PARTITION BY toYYYYMM(datetime)
`

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// clickHouseExecer is the part of driver.Conn the store uses.
type clickHouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ClickHouseOptions configures OpenClickHouse.
type ClickHouseOptions struct {
	Addr        []string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// ClickHouseStore writes result rows to ClickHouse for fleet-wide analysis.
type ClickHouseStore struct {
	conn clickHouseExecer
}

// Compile-time assertion that ClickHouseStore can back the sink.
var _ results.RowStore = (*ClickHouseStore)(nil)

// NewClickHouseStore wraps an open connection.
func NewClickHouseStore(conn clickHouseExecer) *ClickHouseStore {
	return &ClickHouseStore{conn: conn}
}

// OpenClickHouse connects with LZ4 compression and verifies the connection.
func OpenClickHouse(ctx context.Context, opts ClickHouseOptions) (driver.Conn, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addr,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: opts.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to connect to ClickHouse", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to ping ClickHouse", err)
	}
	return conn, nil
}

// EnsureTable creates the table when missing.
func (s *ClickHouseStore) EnsureTable(ctx context.Context, table string) error {
	name, err := checkTableName(table)
	if err != nil {
		return err
	}
	if err := s.conn.Exec(ctx, fmt.Sprintf(ClickHouseResultTableSQL, name)); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create ClickHouse result table", err)
	}
	return nil
}

// InsertTableRow writes one row.
func (s *ClickHouseStore) InsertTableRow(ctx context.Context, table string, row results.TableRow) error {
	name, err := checkTableName(table)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, equipment_id, datetime, diagnostic_name, diagnostic_message, result_code, color_code, energy_impact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, name)

	err = s.conn.Exec(ctx, query,
		row.ID,
		row.EquipmentID,
		row.Datetime,
		row.DiagnosticName,
		byTierName(row.DiagnosticMessage, func(m string) string { return m }),
		byTierName(row.ResultCode, func(c float64) float64 { return c }),
		byTierName(row.ColorCode, func(c types.Color) string { return string(c) }),
		row.EnergyImpact,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert ClickHouse result row", err).
			WithDetails(map[string]any{"table": name, "diagnostic": row.DiagnosticName})
	}
	return nil
}

func checkTableName(table string) (string, error) {
	if table == "" {
		table = results.DefaultTable
	}
	if !tableName.MatchString(table) {
		return "", types.NewAppError(types.ErrCodeInternalDB,
			fmt.Sprintf("invalid ClickHouse table name %q", table), nil)
	}
	return table, nil
}

// byTierName converts a tier-keyed map into the string-keyed form the Map
// column expects.
func byTierName[V, W any](m types.TierMap[V], conv func(V) W) map[string]W {
	out := make(map[string]W, len(m))
	for tier, v := range m {
		out[tier.String()] = conv(v)
	}
	return out
}
