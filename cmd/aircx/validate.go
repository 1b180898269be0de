package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aircx/internal/config"
	"aircx/internal/results"
)

func newValidateCmd(flags *rootFlags) *cobra.Command {
	var equipmentPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the equipment definitions and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveEquipmentPath(flags, equipmentPath)
			if err != nil {
				return err
			}
			return validateEquipment(cmd.OutOrStdout(), path)
		},
	}
	cmd.Flags().StringVar(&equipmentPath, "equipment", "", "equipment definitions file (default $EQUIPMENT_CONFIG_PATH)")
	return cmd
}

func validateEquipment(out io.Writer, path string) error {
	units, err := config.LoadEquipment(path)
	if err != nil {
		return err
	}
	// Building the pipelines runs the same checks the engine does at startup.
	if _, err := buildApplications(units, results.NewRecorder(1), newLogger(io.Discard, "error")); err != nil {
		return fmt.Errorf("equipment definitions in %s: %w", path, err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EQUIPMENT\tDIAGNOSTICS\tSENSITIVITY\tWINDOW")
	for _, u := range units {
		window := fmt.Sprintf("%dm/%d samples", u.Window.Minutes, u.Window.MinSamples)
		if u.Window.Minutes == 0 {
			window = fmt.Sprintf("%s/%d samples", u.Window.Schedule, u.Window.MinSamples)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, strings.Join(u.Diagnostics, ","), u.Sensitivity, window)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d equipment unit(s) OK\n", len(units))
	return nil
}
