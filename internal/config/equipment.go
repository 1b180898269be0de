package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"

	"aircx/internal/diagnostics"
)

// EquipmentFile is the JSON document named by EQUIPMENT_CONFIG_PATH.
//
//	{"equipment": [{"id": "ahu-1", "diagnostics": ["static_pressure"], ...}]}
type EquipmentFile struct {
	Equipment []diagnostics.EquipmentConfig `json:"equipment" validate:"required,min=1,dive"`
}

// LoadEquipment reads, defaults and validates the equipment definitions at
// path. Every failure is a *ConfigError; those raised by a unit's own checks
// also unwrap to the underlying *types.AppError.
func LoadEquipment(path string) ([]diagnostics.EquipmentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{
			Type:    ErrMissingEnv,
			Message: fmt.Sprintf("failed to read equipment file %s", path),
			Err:     err,
		}
	}
	return ParseEquipment(bytes.NewReader(raw))
}

// ParseEquipment decodes an equipment document. Unknown fields are rejected
// so that a misspelt threshold does not silently fall back to its default.
func ParseEquipment(r io.Reader) ([]diagnostics.EquipmentConfig, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var file EquipmentFile
	if err := dec.Decode(&file); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to decode equipment definitions",
			Err:     err,
		}
	}

	for i := range file.Equipment {
		file.Equipment[i] = file.Equipment[i].WithDefaults()
	}

	if err := validator.New().Struct(file); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "equipment validation failed",
			Err:     err,
		}
	}

	seen := make(map[string]struct{}, len(file.Equipment))
	for _, eq := range file.Equipment {
		if _, dup := seen[eq.ID]; dup {
			return nil, &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("duplicate equipment id %q", eq.ID),
			}
		}
		seen[eq.ID] = struct{}{}

		if err := eq.Validate(); err != nil {
			return nil, &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("equipment %q is misconfigured", eq.ID),
				Err:     err,
			}
		}
	}
	return file.Equipment, nil
}
