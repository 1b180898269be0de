package results

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"aircx/internal/types"
)

// LogEntry is one captured Sink.Log call.
type LogEntry struct {
	EquipmentID string
	Level       slog.Level
	Message     string
	Args        []any
}

// CommandRecord is one captured Sink.Command call.
type CommandRecord struct {
	EquipmentID string
	Command     types.Command
	IssuedAt    time.Time
}

// Recorder is an in-memory Sink that keeps the most recent entries per
// equipment unit. It backs the status API and is the sink used in tests. Safe
// for concurrent use.
type Recorder struct {
	limit int
	now   func() time.Time

	mu       sync.RWMutex
	rows     map[string][]TableRow
	commands map[string][]CommandRecord
	logs     map[string][]LogEntry
}

// Compile-time assertion that Recorder implements Sink.
var _ Sink = (*Recorder)(nil)

// NewRecorder keeps up to limit entries of each kind per equipment unit; a
// non-positive limit keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{
		limit:    limit,
		now:      time.Now,
		rows:     make(map[string][]TableRow),
		commands: make(map[string][]CommandRecord),
		logs:     make(map[string][]LogEntry),
	}
}

// Log implements Sink.
func (r *Recorder) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	id := types.GetEquipmentID(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[id] = trim(append(r.logs[id], LogEntry{EquipmentID: id, Level: level, Message: msg, Args: args}), r.limit)
}

// InsertTableRow implements Sink. The table name is not used for storage.
func (r *Recorder) InsertTableRow(ctx context.Context, table string, row TableRow) error {
	id := row.EquipmentID
	if id == "" {
		id = types.GetEquipmentID(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id] = trim(append(r.rows[id], row), r.limit)
	return nil
}

// Command implements Sink.
func (r *Recorder) Command(ctx context.Context, channel types.Channel, value float64) error {
	id := types.GetEquipmentID(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[id] = trim(append(r.commands[id], CommandRecord{
		EquipmentID: id,
		Command:     types.Command{Channel: channel, Value: value},
		IssuedAt:    r.now(),
	}), r.limit)
	return nil
}

// Rows returns up to n of the most recent rows for an equipment unit, oldest
// first. n <= 0 returns all retained rows.
func (r *Recorder) Rows(equipmentID string, n int) []TableRow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.rows[equipmentID], n)
}

// Commands returns the retained commands for an equipment unit, oldest first.
func (r *Recorder) Commands(equipmentID string) []CommandRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.commands[equipmentID], 0)
}

// Logs returns the retained log entries for an equipment unit, oldest first.
func (r *Recorder) Logs(equipmentID string) []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.logs[equipmentID], 0)
}

// Equipment lists every unit with at least one retained entry, sorted.
func (r *Recorder) Equipment() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, m := range []map[string]int{lengths(r.rows), lengths(r.commands), lengths(r.logs)} {
		for id := range m {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Total returns the number of retained rows, commands and log entries for an
// equipment unit.
func (r *Recorder) Total(equipmentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows[equipmentID]) + len(r.commands[equipmentID]) + len(r.logs[equipmentID])
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s %s %v", e.Level, e.Message, e.Args)
}

func lengths[T any](m map[string][]T) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = len(v)
	}
	return out
}

func trim[T any](xs []T, limit int) []T {
	if limit > 0 && len(xs) > limit {
		return append(xs[:0:0], xs[len(xs)-limit:]...)
	}
	return xs
}

func tail[T any](xs []T, n int) []T {
	if n > 0 && len(xs) > n {
		xs = xs[len(xs)-n:]
	}
	return append([]T(nil), xs...)
}
