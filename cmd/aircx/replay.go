package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aircx/internal/config"
	"aircx/internal/ingest"
	"aircx/internal/results"
	"aircx/internal/types"
	"aircx/internal/worker"
)

type replayOptions struct {
	equipmentPath string
	logLevel      string
	jsonRows      bool
}

func newReplayCmd(flags *rootFlags) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay <archive.jsonl[.zst] | ->",
		Short: "Run an archived sample stream through the diagnostics",
		Long: "Replays a JSON-lines sample archive (zstd-compressed when the name ends in .zst)\n" +
			"through the configured diagnostics. Commands are recorded, never sent.\n" +
			"Use - to read an uncompressed stream from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveEquipmentPath(flags, opts.equipmentPath)
			if err != nil {
				return err
			}
			return replay(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), path, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.equipmentPath, "equipment", "", "equipment definitions file (default $EQUIPMENT_CONFIG_PATH)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level for engine messages written to stderr")
	cmd.Flags().BoolVar(&opts.jsonRows, "json", false, "print every result row as a JSON line instead of a summary")
	return cmd
}

func replay(ctx context.Context, in io.Reader, out, logOut io.Writer, equipmentPath, archive string, opts *replayOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(logOut, opts.logLevel)

	var src ingest.Source = ingest.NewFileSource(archive, logger)
	if archive == "-" {
		src = ingest.NewReaderSource("stdin", in, false, logger)
	}

	units, err := config.LoadEquipment(equipmentPath)
	if err != nil {
		return err
	}
	rec := results.NewRecorder(0)
	apps, err := buildApplications(units, rec, logger)
	if err != nil {
		return err
	}
	// Replayed samples are hours or days old, so ingest lag is not recorded.
	runner, err := worker.NewRunner(apps, logger, worker.WithQueueSize(1))
	if err != nil {
		return err
	}
	if err := runner.Run(ctx, src); err != nil {
		return err
	}

	ids := equipmentIDs(units)
	if opts.jsonRows {
		return writeRows(out, rec, ids)
	}
	return writeSummary(out, rec, ids, runner.Stats())
}

func writeRows(out io.Writer, rec *results.Recorder, ids []string) error {
	enc := json.NewEncoder(out)
	for _, id := range ids {
		for _, row := range rec.Rows(id, 0) {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSummary(out io.Writer, rec *results.Recorder, ids []string, stats worker.Stats) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EQUIPMENT\tROWS\tGREEN\tRED\tGREY\tWHITE\tCOMMANDS")
	for _, id := range ids {
		rows := rec.Rows(id, 0)
		counts := make(map[types.Color]int)
		for _, row := range rows {
			counts[row.Worst()]++
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n", id, len(rows),
			counts[types.ColorGreen], counts[types.ColorRed], counts[types.ColorGrey], counts[types.ColorWhite],
			len(rec.Commands(id)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "samples: %d read, %d processed, %d failed, %d for unknown equipment\n",
		stats.Received, stats.Processed, stats.Failed, stats.Unknown)
	return err
}
