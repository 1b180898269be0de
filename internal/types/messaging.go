package types

import "time"

// CommandMessage is the queue payload carrying one setpoint command to the
// building gateway. JSON tags use snake_case to match the gateway's schema.
type CommandMessage struct {
	CommandID   string    `json:"command_id"`
	EquipmentID string    `json:"equipment_id"`
	Channel     Channel   `json:"channel"`
	Value       float64   `json:"value"`
	IssuedAt    time.Time `json:"issued_at"`

	// Observability
	RunID string `json:"run_id,omitempty"`
}
