package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aircx/internal/diagnostics"
	"aircx/internal/types"
)

const validEquipment = `{
  "equipment": [
    {
      "id": "ahu-1",
      "diagnostics": ["static_pressure", "supply_temperature"],
      "sensitivity": "all",
      "window": {"minutes": 60, "min_samples": 30},
      "thresholds": {"damper_high_limit": 85},
      "static_pressure_correction": {"enabled": true, "step": 0.1, "min": 0.5, "max": 2.5},
      "supply_temperature_correction": {"enabled": false, "step": 1, "min": 50, "max": 65},
      "fan_speed_max": 100,
      "fan_speed_min": 20
    },
    {
      "id": "rtu-7",
      "diagnostics": ["cycling"]
    }
  ]
}`

func TestParseEquipmentAppliesDefaults(t *testing.T) {
	units, err := ParseEquipment(strings.NewReader(validEquipment))
	if err != nil {
		t.Fatalf("ParseEquipment returned error: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}

	ahu := units[0]
	if ahu.Thresholds.DamperHighLimit != 85 {
		t.Errorf("DamperHighLimit = %v, want the configured 85", ahu.Thresholds.DamperHighLimit)
	}
	if ahu.Thresholds.DamperLowLimit != 15 {
		t.Errorf("DamperLowLimit = %v, want default 15", ahu.Thresholds.DamperLowLimit)
	}
	if ahu.PrereqTimeout != diagnostics.DefaultPrereqTimeout {
		t.Errorf("PrereqTimeout = %d, want default", ahu.PrereqTimeout)
	}

	rtu := units[1]
	if rtu.Sensitivity != diagnostics.DefaultSensitivity {
		t.Errorf("Sensitivity = %q, want default", rtu.Sensitivity)
	}
	if rtu.Cycling.Channel != types.ChannelZoneTemp {
		t.Errorf("Cycling.Channel = %q, want zone temperature", rtu.Cycling.Channel)
	}
}

func TestParseEquipmentKeepsExplicitZeroThresholds(t *testing.T) {
	doc := `{"equipment": [{
		"id": "vav-3",
		"diagnostics": ["supply_temperature"],
		"supply_temperature_correction": {"step": 1, "min": 50, "max": 65},
		"thresholds": {"reheat_valve_limit": 0, "high_sat_reheat_limit": 0, "damper_low_limit": 0}
	}]}`
	units, err := ParseEquipment(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseEquipment returned error: %v", err)
	}
	thr := units[0].Thresholds
	if thr.ReheatValveLimit != 0 {
		t.Errorf("ReheatValveLimit = %v, want the configured 0", thr.ReheatValveLimit)
	}
	if thr.HighSATReheatLimit != 0 {
		t.Errorf("HighSATReheatLimit = %v, want the configured 0", thr.HighSATReheatLimit)
	}
	if thr.DamperLowLimit != 0 {
		t.Errorf("DamperLowLimit = %v, want the configured 0", thr.DamperLowLimit)
	}
	if thr.ReheatFractionPct != 25 {
		t.Errorf("ReheatFractionPct = %v, want default 25", thr.ReheatFractionPct)
	}
}

func TestParseEquipmentFailures(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantType ConfigErrorType
		wantCode types.ErrorCode
	}{
		{
			name:     "not json",
			doc:      `equipment: ahu-1`,
			wantType: ErrParsing,
		},
		{
			name:     "unknown field",
			doc:      `{"equipment": [{"id": "ahu-1", "diagnostics": ["cycling"], "damper_limit": 90}]}`,
			wantType: ErrParsing,
		},
		{
			name:     "unknown threshold",
			doc:      `{"equipment": [{"id": "ahu-1", "diagnostics": ["cycling"], "thresholds": {"reheat_limit": 0}}]}`,
			wantType: ErrParsing,
		},
		{
			name:     "empty list",
			doc:      `{"equipment": []}`,
			wantType: ErrValidation,
		},
		{
			name:     "unknown diagnostic",
			doc:      `{"equipment": [{"id": "ahu-1", "diagnostics": ["economizer"]}]}`,
			wantType: ErrValidation,
		},
		{
			name:     "damper limits inverted",
			doc:      `{"equipment": [{"id": "ahu-1", "diagnostics": ["cycling"], "thresholds": {"damper_high_limit": 10, "damper_low_limit": 20}}]}`,
			wantType: ErrValidation,
		},
		{
			name: "duplicate id",
			doc: `{"equipment": [
				{"id": "ahu-1", "diagnostics": ["cycling"]},
				{"id": "ahu-1", "diagnostics": ["cycling"]}
			]}`,
			wantType: ErrValidation,
		},
		{
			name:     "correction bounds inverted",
			doc:      `{"equipment": [{"id": "ahu-1", "diagnostics": ["static_pressure"], "static_pressure_correction": {"step": 0.1, "min": 2, "max": 1}}]}`,
			wantType: ErrValidation,
			wantCode: types.ErrCodeConfigInvalidBounds,
		},
		{
			name:     "fan speed bounds inverted",
			doc:      `{"equipment": [{"id": "ahu-1", "diagnostics": ["static_pressure"], "static_pressure_correction": {"step": 0.1, "min": 0.5, "max": 2}, "fan_speed_min": 100}]}`,
			wantType: ErrValidation,
			wantCode: types.ErrCodeConfigInvalidBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEquipment(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if cfgErr.Type != tt.wantType {
				t.Errorf("Type = %q, want %q (%v)", cfgErr.Type, tt.wantType, err)
			}
			if tt.wantCode != "" {
				if got := types.CodeOf(err); got != tt.wantCode {
					t.Errorf("CodeOf = %q, want %q", got, tt.wantCode)
				}
			}
		})
	}
}

func TestLoadEquipmentFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "equipment.json")
	if err := os.WriteFile(path, []byte(validEquipment), 0o644); err != nil {
		t.Fatalf("failed to write equipment file: %v", err)
	}

	units, err := LoadEquipment(path)
	if err != nil {
		t.Fatalf("LoadEquipment returned error: %v", err)
	}
	if units[0].ID != "ahu-1" || units[1].ID != "rtu-7" {
		t.Errorf("unexpected ids: %q %q", units[0].ID, units[1].ID)
	}
}

func TestLoadEquipmentMissingFile(t *testing.T) {
	_, err := LoadEquipment(filepath.Join(t.TempDir(), "absent.json"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrMissingEnv {
		t.Fatalf("expected missing-file ConfigError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("expected the cause to unwrap to os.ErrNotExist")
	}
}
