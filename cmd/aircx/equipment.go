package main

import (
	"log/slog"

	"aircx/internal/config"
	"aircx/internal/diagnostics"
	"aircx/internal/results"
	"aircx/internal/worker"
)

// resolveEquipmentPath prefers an explicit --equipment flag and otherwise
// falls back to EQUIPMENT_CONFIG_PATH, which needs the full configuration.
func resolveEquipmentPath(flags *rootFlags, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	cfg, err := config.LoadConfig(flags.envFiles...)
	if err != nil {
		return "", err
	}
	return cfg.Equipment.Path, nil
}

// buildApplications constructs one pipeline per unit, all writing to sink.
func buildApplications(units []diagnostics.EquipmentConfig, sink results.Sink, logger *slog.Logger) ([]worker.Processor, error) {
	apps := make([]worker.Processor, 0, len(units))
	for _, u := range units {
		app, err := diagnostics.New(u, sink, logger.With("equipment_id", u.ID))
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func equipmentIDs(units []diagnostics.EquipmentConfig) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}
