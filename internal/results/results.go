// Package results defines the sink every diagnostic writes through: log
// entries, result-table rows and setpoint commands. The sink is the only
// component with side effects; evaluation code never talks to storage or
// transports directly.
package results

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aircx/internal/types"
)

// DefaultTable is the result table diagnostics write to.
const DefaultTable = "diagnostic_results"

// Sink receives everything a diagnostic produces.
type Sink interface {
	Log(ctx context.Context, level slog.Level, msg string, args ...any)
	InsertTableRow(ctx context.Context, table string, row TableRow) error
	// Command issues a setpoint command for the equipment carried by ctx
	// (see types.WithEquipmentID).
	Command(ctx context.Context, channel types.Channel, value float64) error
}

// TableRow is one result-table entry: one rule at one timestamp, with a
// message, code and color per evaluated tier.
type TableRow struct {
	ID                uuid.UUID                  `json:"id"`
	EquipmentID       string                     `json:"equipment_id"`
	Datetime          time.Time                  `json:"datetime"`
	DiagnosticName    string                     `json:"diagnostic_name"`
	DiagnosticMessage types.TierMap[string]      `json:"diagnostic_message"`
	ResultCode        types.TierMap[float64]     `json:"result_code"`
	ColorCode         types.TierMap[types.Color] `json:"color_code"`
	EnergyImpact      *float64                   `json:"energy_impact,omitempty"`
}

// RowsFromVerdicts groups verdicts by rule into table rows, preserving the
// order in which rules first appear.
func RowsFromVerdicts(equipmentID string, ts time.Time, verdicts []types.Verdict) []TableRow {
	var rows []TableRow
	index := make(map[string]int)
	for _, v := range verdicts {
		i, ok := index[v.Rule]
		if !ok {
			i = len(rows)
			index[v.Rule] = i
			rows = append(rows, TableRow{
				ID:                uuid.New(),
				EquipmentID:       equipmentID,
				Datetime:          ts,
				DiagnosticName:    v.Rule,
				DiagnosticMessage: types.TierMap[string]{},
				ResultCode:        types.TierMap[float64]{},
				ColorCode:         types.TierMap[types.Color]{},
			})
		}
		row := &rows[i]
		row.DiagnosticMessage[v.Tier] = v.Message
		row.ResultCode[v.Tier] = v.Code
		row.ColorCode[v.Tier] = v.Color
		if v.EnergyImpact != nil {
			impact := *v.EnergyImpact
			row.EnergyImpact = &impact
		}
	}
	return rows
}

// Worst returns the most severe color in the row: RED over GREY over GREEN
// over WHITE.
func (r TableRow) Worst() types.Color {
	rank := map[types.Color]int{types.ColorWhite: 0, types.ColorGreen: 1, types.ColorGrey: 2, types.ColorRed: 3}
	worst := types.ColorWhite
	for _, c := range r.ColorCode {
		if rank[c] > rank[worst] {
			worst = c
		}
	}
	return worst
}
