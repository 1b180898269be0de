package types

import (
	"math"
	"time"
)

// Channel names the semantic role of a sensor point. Equipment configuration
// maps building-automation point names onto these roles at ingest time.
type Channel string

const (
	ChannelFanStatus            Channel = "supply_fan_status"
	ChannelFanSpeed             Channel = "supply_fan_speed"
	ChannelDuctPressure         Channel = "duct_static_pressure"
	ChannelDuctPressureSetpoint Channel = "duct_static_pressure_setpoint"
	ChannelZoneDamper           Channel = "zone_damper_position"
	ChannelZoneReheat           Channel = "zone_reheat_valve_position"
	ChannelSupplyTemp           Channel = "supply_air_temperature"
	ChannelSupplyTempSetpoint   Channel = "supply_air_temperature_setpoint"
	ChannelZoneTemp             Channel = "zone_temperature"
	ChannelZoneTempSetpoint     Channel = "zone_temperature_setpoint"
)

// OverrideChannel returns the companion channel carrying the operator override
// flag for a controllable setpoint.
func OverrideChannel(c Channel) Channel {
	return c + "_override"
}

// SampleSet is every reading published for one equipment unit at one
// timestamp. Channels with several physical points (one damper per zone) carry
// one value per point; an absent key or an empty slice means "no reading".
type SampleSet struct {
	EquipmentID string                `json:"equipment_id"`
	Timestamp   time.Time             `json:"timestamp"`
	Values      map[Channel][]float64 `json:"values"`
}

// Readings returns the finite readings for a channel, dropping NaN/Inf values
// that upstream conversion may leave behind.
func (s SampleSet) Readings(c Channel) []float64 {
	raw := s.Values[c]
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Average returns the mean of the channel's readings and whether any existed.
func (s SampleSet) Average(c Channel) (float64, bool) {
	vs := s.Readings(c)
	if len(vs) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs)), true
}

// Has reports whether the channel carries at least one usable reading.
func (s SampleSet) Has(c Channel) bool {
	return len(s.Readings(c)) > 0
}
