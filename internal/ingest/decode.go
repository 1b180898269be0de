// Package ingest reads sample sets from a Kafka topic or from JSON-lines
// archives (optionally zstd-compressed) and hands them to a Handler in
// arrival order.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"aircx/internal/types"
)

// Handler consumes one decoded sample set. A returned error is logged by the
// source; it never stops consumption.
type Handler func(ctx context.Context, set types.SampleSet) error

// Source delivers sample sets until it is exhausted or ctx is done.
type Source interface {
	Run(ctx context.Context, handle Handler) error
}

// envelope is the wire form of a sample set. Values may be a single number
// or an array per channel; null entries are dropped.
type envelope struct {
	EquipmentID string                     `json:"equipment_id"`
	Timestamp   json.RawMessage            `json:"timestamp"`
	Values      map[string]json.RawMessage `json:"values"`
}

// Decode parses one record. fallbackID is used when the record carries no
// equipment_id (the Kafka message key, for example).
func Decode(raw []byte, fallbackID string) (types.SampleSet, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return types.SampleSet{}, malformed("invalid JSON", err)
	}

	id := strings.TrimSpace(env.EquipmentID)
	if id == "" {
		id = strings.TrimSpace(fallbackID)
	}
	if id == "" {
		return types.SampleSet{}, malformed("equipment_id is required", nil)
	}
	ts, err := parseTimestamp(env.Timestamp)
	if err != nil {
		return types.SampleSet{}, malformed("invalid timestamp", err)
	}

	values := make(map[types.Channel][]float64, len(env.Values))
	for name, rawVal := range env.Values {
		vs, err := decodeValues(rawVal)
		if err != nil {
			return types.SampleSet{}, malformed(fmt.Sprintf("invalid values for %q", name), err)
		}
		if len(vs) > 0 {
			values[types.Channel(name)] = vs
		}
	}

	return types.SampleSet{EquipmentID: id, Timestamp: ts, Values: values}, nil
}

// Encode renders a sample set in the form Decode reads.
func Encode(set types.SampleSet) ([]byte, error) {
	out := struct {
		EquipmentID string                      `json:"equipment_id"`
		Timestamp   string                      `json:"timestamp"`
		Values      map[types.Channel][]float64 `json:"values"`
	}{set.EquipmentID, set.Timestamp.UTC().Format(time.RFC3339Nano), set.Values}
	return json.Marshal(out)
}

func decodeValues(raw json.RawMessage) ([]float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '[' {
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return []float64{v}, nil
	}
	var ptrs []*float64
	if err := json.Unmarshal(raw, &ptrs); err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(ptrs))
	for _, p := range ptrs {
		if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// parseTimestamp accepts an RFC 3339 string or Unix seconds, as a number or
// a numeric string.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e6))*1e3).UTC(), nil
}

func malformed(msg string, err error) error {
	return types.NewAppError(types.ErrCodeIngestMalformed, msg, err)
}
