package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. Scan is on pointer receivers; Value is on
// value receivers.
var (
	_ sql.Scanner   = (*TierMap[string])(nil)
	_ driver.Valuer = TierMap[string](nil)
)

// scanJSONB scans a JSONB database value into a Go pointer. It handles nil
// values, []byte, and string representations from different database drivers.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// TierMap holds one value per sensitivity tier, stored as a JSONB object keyed
// by tier name: {"low": ..., "normal": ...}.
type TierMap[V any] map[Tier]V

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (m *TierMap[V]) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSONB(m, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (m TierMap[V]) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(map[Tier]V(m))
}
