package types

const redactedPlaceholder = "***REDACTED***"

// SecretString keeps credentials (database URLs, broker passwords) out of logs
// and JSON dumps. Use Unmask when the raw value must reach a driver.
type SecretString string

// String returns a redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON always encodes the redacted placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// Unmask returns the raw plaintext value.
func (s SecretString) Unmask() string {
	return string(s)
}
