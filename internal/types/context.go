package types

import "context"

// Context Keys
type contextKey string

const (
	runIDKey       contextKey = "run_id"
	equipmentIDKey contextKey = "equipment_id"
)

// WithRunID stores the engine run identifier in the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID retrieves the run identifier from the context.
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// WithEquipmentID stores the equipment unit being processed in the context.
func WithEquipmentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, equipmentIDKey, id)
}

// GetEquipmentID retrieves the equipment identifier from the context.
func GetEquipmentID(ctx context.Context) string {
	id, _ := ctx.Value(equipmentIDKey).(string)
	return id
}
