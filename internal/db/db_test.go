package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"aircx/internal/results"
	"aircx/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Rows ---

// resultMockRows implements pgx.Rows over prepared result rows.
type resultMockRows struct {
	data    []results.TableRow
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newResultRows(rows ...results.TableRow) *resultMockRows {
	return &resultMockRows{data: rows, idx: -1}
}

func (r *resultMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *resultMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if r.idx < 0 || r.idx >= len(r.data) {
		return errors.New("no current row")
	}
	row := r.data[r.idx]
	*dest[0].(*uuid.UUID) = row.ID
	*dest[1].(*string) = row.EquipmentID
	*dest[2].(*time.Time) = row.Datetime
	*dest[3].(*string) = row.DiagnosticName
	*dest[4].(*types.TierMap[string]) = row.DiagnosticMessage
	*dest[5].(*types.TierMap[float64]) = row.ResultCode
	*dest[6].(*types.TierMap[types.Color]) = row.ColorCode
	*dest[7].(**float64) = row.EnergyImpact
	return nil
}

func (r *resultMockRows) Close()                                       { r.closed = true }
func (r *resultMockRows) Err() error                                   { return r.errVal }
func (r *resultMockRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *resultMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *resultMockRows) RawValues() [][]byte                           { return nil }
func (r *resultMockRows) Values() ([]any, error)                        { return nil, nil }
func (r *resultMockRows) Conn() *pgx.Conn                              { return nil }

// colorMockRows implements pgx.Rows for (color, count) tuples.
type colorMockRows struct {
	resultMockRows
	colors []string
	counts []int
}

func (r *colorMockRows) Next() bool {
	r.idx++
	return r.idx < len(r.colors)
}

func (r *colorMockRows) Scan(dest ...any) error {
	*dest[0].(*string) = r.colors[r.idx]
	*dest[1].(*int) = r.counts[r.idx]
	return nil
}

func sampleRow() results.TableRow {
	return results.TableRow{
		ID:                uuid.MustParse("6f1c1a52-3c55-4d8a-9a53-0f3a2b4c5d6e"),
		EquipmentID:       "ahu-1",
		Datetime:          time.Date(2024, 6, 3, 10, 14, 0, 0, time.UTC),
		DiagnosticName:    "Low Duct Static Pressure",
		DiagnosticMessage: types.TierMap[string]{types.TierNormal: "Duct static pressure is too low"},
		ResultCode:        types.TierMap[float64]{types.TierNormal: 12.1},
		ColorCode:         types.TierMap[types.Color]{types.TierNormal: types.ColorRed},
	}
}

// --- ResultRepository Tests ---

func TestResultRepository_InsertTableRow(t *testing.T) {
	db := new(mockDBTX)
	repo := NewResultRepository(db)
	row := sampleRow()

	db.On("Exec", mock.Anything,
		mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, `INSERT INTO "diagnostic_results"`) &&
				strings.Contains(sql, "ON CONFLICT (id) DO NOTHING")
		}),
		mock.MatchedBy(func(args []any) bool {
			return len(args) == 8 && args[0] == row.ID && args[1] == "ahu-1" && args[3] == row.DiagnosticName
		}),
	).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.InsertTableRow(context.Background(), "", row))
	db.AssertExpectations(t)
}

func TestResultRepository_InsertTableRow_SchemaQualified(t *testing.T) {
	db := new(mockDBTX)
	repo := NewResultRepository(db)

	db.On("Exec", mock.Anything,
		mock.MatchedBy(func(sql string) bool { return strings.Contains(sql, `INSERT INTO "aircx"."results"`) }),
		mock.Anything,
	).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.InsertTableRow(context.Background(), "aircx.results", sampleRow()))
	db.AssertExpectations(t)
}

func TestResultRepository_InsertTableRow_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewResultRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.InsertTableRow(context.Background(), "", sampleRow())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestResultRepository_Recent(t *testing.T) {
	db := new(mockDBTX)
	repo := NewResultRepository(db)
	row := sampleRow()
	since := row.Datetime.Add(-time.Hour)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"),
		[]any{"ahu-1", since, 10},
	).Return(newResultRows(row), nil)

	got, err := repo.Recent(context.Background(), "", "ahu-1", since, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, row, got[0])
}

func TestResultRepository_Recent_Errors(t *testing.T) {
	repo := NewResultRepository(new(mockDBTX))
	_, err := repo.Recent(context.Background(), "", "ahu-1", time.Time{}, 0)
	assert.Equal(t, types.ErrCodeValidationLimit, types.CodeOf(err))

	db := new(mockDBTX)
	repo = NewResultRepository(db)
	rows := newResultRows(sampleRow())
	rows.scanErr = errors.New("bad column")
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)

	_, err = repo.Recent(context.Background(), "", "ahu-1", time.Time{}, 5)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	assert.True(t, rows.closed)
}

func TestResultRepository_CountByColor(t *testing.T) {
	db := new(mockDBTX)
	repo := NewResultRepository(db)
	rows := &colorMockRows{resultMockRows: resultMockRows{idx: -1}, colors: []string{"RED", "GREEN"}, counts: []int{3, 9}}

	db.On("Query", mock.Anything, mock.AnythingOfType("string"),
		mock.MatchedBy(func(args []any) bool { return len(args) == 3 && args[1] == "normal" }),
	).Return(rows, nil)

	got, err := repo.CountByColor(context.Background(), "", "ahu-1", types.TierNormal, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, map[types.Color]int{types.ColorRed: 3, types.ColorGreen: 9}, got)
}

// --- ClickHouseStore Tests ---

type mockClickHouse struct {
	mock.Mock
}

func (m *mockClickHouse) Exec(ctx context.Context, query string, args ...any) error {
	return m.Called(ctx, query, args).Error(0)
}

func TestClickHouseStore_InsertTableRow(t *testing.T) {
	conn := new(mockClickHouse)
	store := NewClickHouseStore(conn)
	row := sampleRow()

	conn.On("Exec", mock.Anything,
		mock.MatchedBy(func(q string) bool { return strings.Contains(q, "INSERT INTO diagnostic_results") }),
		mock.MatchedBy(func(args []any) bool {
			if len(args) != 8 {
				return false
			}
			colors, ok := args[6].(map[string]string)
			codes, ok2 := args[5].(map[string]float64)
			return ok && ok2 && colors["normal"] == "RED" && codes["normal"] == 12.1
		}),
	).Return(nil)

	require.NoError(t, store.InsertTableRow(context.Background(), "", row))
	conn.AssertExpectations(t)
}

func TestClickHouseStore_RejectsUnsafeTableName(t *testing.T) {
	store := NewClickHouseStore(new(mockClickHouse))
	err := store.InsertTableRow(context.Background(), "results; DROP TABLE x", sampleRow())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))

	assert.Error(t, store.EnsureTable(context.Background(), "bad-name"))
}

func TestClickHouseStore_EnsureTable(t *testing.T) {
	conn := new(mockClickHouse)
	store := NewClickHouseStore(conn)
	conn.On("Exec", mock.Anything,
		mock.MatchedBy(func(q string) bool { return strings.Contains(q, "CREATE TABLE IF NOT EXISTS analytics.results") }),
		mock.Anything,
	).Return(nil)

	require.NoError(t, store.EnsureTable(context.Background(), "analytics.results"))
	conn.AssertExpectations(t)
}
