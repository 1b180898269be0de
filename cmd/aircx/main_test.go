package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aircx/internal/config"
	"aircx/internal/ingest"
	"aircx/internal/results"
	"aircx/internal/types"
)

const equipmentDoc = `{
  "equipment": [
    {
      "id": "ahu-1",
      "diagnostics": ["static_pressure"],
      "sensitivity": "normal",
      "window": {"minutes": 15, "min_samples": 10},
      "static_pressure_correction": {"enabled": true, "step": 0.1, "min": 0.5, "max": 2.5}
    }
  ]
}`

func writeEquipment(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "equipment.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

// writeArchive records 20 one-minute samples of a low duct pressure fault.
func writeArchive(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	w, err := ingest.CreateArchive(path)
	require.NoError(t, err)
	t0 := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		require.NoError(t, w.Write(types.SampleSet{
			EquipmentID: "ahu-1",
			Timestamp:   t0.Add(time.Duration(i) * time.Minute),
			Values: map[types.Channel][]float64{
				types.ChannelFanStatus:            {1},
				types.ChannelFanSpeed:             {80},
				types.ChannelDuctPressure:         {1.5},
				types.ChannelDuctPressureSetpoint: {1.95},
				types.ChannelZoneDamper:           {95, 97, 92},
			},
		}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "equipment_id", "ahu-1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"equipment_id":"ahu-1"`)
}

func TestValidateCommand(t *testing.T) {
	path := writeEquipment(t, equipmentDoc)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate", "--equipment", path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "ahu-1")
	assert.Contains(t, out.String(), "15m/10 samples")
	assert.Contains(t, out.String(), "1 equipment unit(s) OK")
}

func TestValidateCommand_InvalidBounds(t *testing.T) {
	doc := strings.Replace(equipmentDoc, `"min": 0.5, "max": 2.5`, `"min": 3, "max": 2.5`, 1)
	path := writeEquipment(t, doc)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "--equipment", path})
	err := cmd.Execute()
	require.Error(t, err)

	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, types.ErrCodeConfigInvalidBounds, types.CodeOf(err))
}

func TestReplayCommand_Summary(t *testing.T) {
	for _, name := range []string{"samples.jsonl", "samples.jsonl.zst"} {
		t.Run(name, func(t *testing.T) {
			equipment := writeEquipment(t, equipmentDoc)
			archive := writeArchive(t, name)

			var out, logs bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&logs)
			cmd.SetArgs([]string{"replay", "--equipment", equipment, archive})
			require.NoError(t, cmd.Execute())

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			require.Len(t, lines, 3, out.String())
			assert.Equal(t, []string{"EQUIPMENT", "ROWS", "GREEN", "RED", "GREY", "WHITE", "COMMANDS"}, strings.Fields(lines[0]))
			// One evaluated window: tracking RED, low pressure RED, high pressure GREEN.
			assert.Equal(t, []string{"ahu-1", "3", "1", "2", "0", "0", "1"}, strings.Fields(lines[1]))
			assert.Equal(t, "samples: 20 read, 20 processed, 0 failed, 0 for unknown equipment", lines[2])
		})
	}
}

func TestReplayCommand_JSONFromStdin(t *testing.T) {
	equipment := writeEquipment(t, equipmentDoc)
	raw, err := os.ReadFile(writeArchive(t, "samples.jsonl"))
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(bytes.NewReader(raw))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"replay", "--json", "--equipment", equipment, "-"})
	require.NoError(t, cmd.Execute())

	dec := json.NewDecoder(&out)
	var rows []results.TableRow
	for dec.More() {
		var row results.TableRow
		require.NoError(t, dec.Decode(&row))
		rows = append(rows, row)
	}
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "ahu-1", row.EquipmentID)
		assert.Contains(t, row.ColorCode, types.TierNormal)
	}
}

func TestReplayCommand_MissingArchive(t *testing.T) {
	equipment := writeEquipment(t, equipmentDoc)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"replay", "--equipment", equipment, filepath.Join(t.TempDir(), "absent.jsonl")})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamIngest, types.CodeOf(err))
}
