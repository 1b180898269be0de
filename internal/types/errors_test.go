package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := NewAppError(ErrCodeConfigInvalidBounds, "min must be below max", nil)
	expected := "config_invalid_bounds: min must be below max"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}

	wrapped := NewAppError(ErrCodeInternalDB, "insert result row", errors.New("connection reset"))
	expected = "internal_database_error: insert result row: connection reset"
	if wrapped.Error() != expected {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), expected)
	}
}

func TestAppErrorUnwrapAndCodeOf(t *testing.T) {
	underlying := errors.New("broker unreachable")
	appErr := NewAppError(ErrCodeUpstreamCommand, "publish command", underlying)
	chain := fmt.Errorf("process sample: %w", appErr)

	if !errors.Is(chain, underlying) {
		t.Error("errors.Is should find the underlying error through the chain")
	}
	if got := CodeOf(chain); got != ErrCodeUpstreamCommand {
		t.Errorf("CodeOf = %q, want %q", got, ErrCodeUpstreamCommand)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
}

func TestErrorCodeIsConfig(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeConfigInvalidThresholds, true},
		{ErrCodeConfigInvalidBounds, true},
		{ErrCodeConfigInvalidWindow, true},
		{ErrCodeConfigInvalidSelection, true},
		{ErrCodeConfigUnknownDiagnostic, true},
		{ErrCodeConfigMissingChannel, true},
		{ErrCodeInternalDB, false},
		{ErrCodeUpstreamCommand, false},
		{ErrCodeIngestMalformed, false},
	}
	for _, tt := range tests {
		if got := tt.code.IsConfig(); got != tt.want {
			t.Errorf("%s.IsConfig() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationLimit, http.StatusBadRequest},
		{ErrCodeIngestMalformed, http.StatusBadRequest},
		{ErrCodeNotFoundEquipment, http.StatusNotFound},
		{ErrCodeUpstreamMetrics, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestAppErrorWithDetails(t *testing.T) {
	original := NewAppError(ErrCodeConfigMissingChannel, "channel not mapped", nil).
		WithDetails(map[string]any{"equipment_id": "ahu-1"})
	merged := original.WithDetails(map[string]any{"channel": "zone_damper_position"})

	if len(original.Details) != 1 {
		t.Errorf("original mutated: %v", original.Details)
	}
	if merged.Details["equipment_id"] != "ahu-1" || merged.Details["channel"] != "zone_damper_position" {
		t.Errorf("merged details = %v", merged.Details)
	}
	if merged.Code != original.Code {
		t.Errorf("code changed: %s", merged.Code)
	}
}
