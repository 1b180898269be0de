package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aircx/internal/types"
)

// RowStore persists result-table rows (Postgres, ClickHouse, the in-memory
// Recorder).
type RowStore interface {
	InsertTableRow(ctx context.Context, table string, row TableRow) error
}

// Commander delivers a setpoint command to the building gateway.
type Commander interface {
	Send(ctx context.Context, msg types.CommandMessage) error
}

// Metrics observes what passes through the sink.
type Metrics interface {
	RecordRow(ctx context.Context, row TableRow)
	RecordCommand(ctx context.Context, msg types.CommandMessage, err error)
}

// Fanout is the production Sink: logs go to slog, rows to every store and
// commands to every commander. A failing store or commander does not stop
// the others; the joined error is returned.
type Fanout struct {
	logger     *slog.Logger
	stores     []RowStore
	commanders []Commander
	metrics    Metrics
	now        func() time.Time
}

// Compile-time assertion that Fanout implements Sink.
var _ Sink = (*Fanout)(nil)

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithStores adds row stores.
func WithStores(stores ...RowStore) FanoutOption {
	return func(f *Fanout) { f.stores = append(f.stores, stores...) }
}

// WithCommanders adds command transports.
func WithCommanders(commanders ...Commander) FanoutOption {
	return func(f *Fanout) { f.commanders = append(f.commanders, commanders...) }
}

// WithMetrics sets the metrics observer.
func WithMetrics(m Metrics) FanoutOption {
	return func(f *Fanout) { f.metrics = m }
}

// NewFanout creates a Fanout. A nil logger uses slog.Default().
func NewFanout(logger *slog.Logger, opts ...FanoutOption) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fanout{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Log implements Sink. The equipment and run IDs from ctx are attached.
func (f *Fanout) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	f.scoped(ctx).Log(ctx, level, msg, args...)
}

// InsertTableRow implements Sink.
func (f *Fanout) InsertTableRow(ctx context.Context, table string, row TableRow) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.EquipmentID == "" {
		row.EquipmentID = types.GetEquipmentID(ctx)
	}

	var errs []error
	for _, s := range f.stores {
		if err := s.InsertTableRow(ctx, table, row); err != nil {
			errs = append(errs, err)
		}
	}
	if f.metrics != nil {
		f.metrics.RecordRow(ctx, row)
	}

	err := errors.Join(errs...)
	if err != nil {
		f.scoped(ctx).ErrorContext(ctx, "failed to store result row",
			"table", table,
			"diagnostic", row.DiagnosticName,
			"error", err,
		)
		return fmt.Errorf("insert %s row: %w", table, err)
	}
	return nil
}

// Command implements Sink.
func (f *Fanout) Command(ctx context.Context, channel types.Channel, value float64) error {
	msg := types.CommandMessage{
		CommandID:   uuid.NewString(),
		EquipmentID: types.GetEquipmentID(ctx),
		Channel:     channel,
		Value:       value,
		IssuedAt:    f.now().UTC(),
		RunID:       types.GetRunID(ctx),
	}

	var errs []error
	for _, c := range f.commanders {
		if err := c.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if f.metrics != nil {
		f.metrics.RecordCommand(ctx, msg, err)
	}

	logger := f.scoped(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to deliver command",
			"command_id", msg.CommandID,
			"channel", string(channel),
			"value", value,
			"error", err,
		)
		return types.NewAppError(types.ErrCodeUpstreamCommand, "deliver setpoint command", err)
	}
	logger.InfoContext(ctx, "command issued",
		"command_id", msg.CommandID,
		"channel", string(channel),
		"value", value,
	)
	return nil
}

func (f *Fanout) scoped(ctx context.Context) *slog.Logger {
	l := f.logger
	if id := types.GetEquipmentID(ctx); id != "" {
		l = l.With("equipment_id", id)
	}
	if id := types.GetRunID(ctx); id != "" {
		l = l.With("run_id", id)
	}
	return l
}
