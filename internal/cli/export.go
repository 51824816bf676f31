package cli

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"khamriver-server/internal/modules/waterquality/export"
	"khamriver-server/internal/modules/waterquality/service"
)

func newExportCommand(opts *RootOptions) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write readings or stations as CSV",
	}
	cmd.PersistentFlags().StringVar(&format, "format", string(export.Plain), "csv flavour: plain or rfc4180")
	cmd.PersistentFlags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")

	// run resolves the format, builds the file and writes it out.
	run := func(cmd *cobra.Command, build func(svc *service.Service, format export.Format) (service.File, error)) error {
		f, err := export.ParseFormat(format)
		if err != nil {
			return err
		}
		return opts.withDB(func(conn *sql.DB) error {
			file, err := build(opts.waterQuality(conn), f)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(file.Data)
				return err
			}
			if err := os.WriteFile(out, file.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			slog.Info("export written", "path", out, "bytes", len(file.Data), "suggested_name", file.Name)
			return nil
		})
	}

	var (
		ff            filterFlags
		page          int
		scope         string
		withCollector bool
	)
	readings := &cobra.Command{
		Use:   "readings",
		Short: "Export filtered readings: one page, or --scope all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			return run(cmd, func(svc *service.Service, format export.Format) (service.File, error) {
				return svc.ExportReadings(cmd.Context(), f, page, service.ParseScope(scope), withCollector, format)
			})
		},
	}
	ff.register(readings)
	readings.Flags().IntVar(&page, "page", 1, "page to export when --scope is page")
	readings.Flags().StringVar(&scope, "scope", string(service.ScopePage), "page or all")
	readings.Flags().BoolVar(&withCollector, "collector", false, "let --search match the collector name")

	var stationSearch string
	stations := &cobra.Command{
		Use:   "stations",
		Short: "Export the station list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(svc *service.Service, format export.Format) (service.File, error) {
				return svc.ExportStations(cmd.Context(), stationSearch, format)
			})
		},
	}
	stations.Flags().StringVar(&stationSearch, "search", "", "match station name, number or location")

	var timeframe string
	station := &cobra.Command{
		Use:   "station <id>",
		Short: "Export one station's readings within a timeframe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(svc *service.Service, format export.Format) (service.File, error) {
				return svc.ExportStation(cmd.Context(), args[0], timeframe, format)
			})
		},
	}
	station.Flags().StringVar(&timeframe, "timeframe", "7d", "7d, 30d or 90d")

	cmd.AddCommand(readings, stations, station)
	return cmd
}
