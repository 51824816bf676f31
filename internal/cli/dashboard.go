package cli

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"khamriver-server/internal/modules/waterquality/service"
)

func newDashboardCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print the admin summary: counts, recent readings and activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(func(conn *sql.DB) error {
				svc := opts.waterQuality(conn)
				d, err := svc.Dashboard(cmd.Context())
				if err != nil {
					slog.Warn("dashboard is partial", "error", err)
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), struct {
						service.Dashboard
						Partial bool `json:"partial"`
					}{d, err != nil})
				}
				return printDashboard(cmd.OutOrStdout(), d, svc.Location())
			})
		},
	}
}

func printDashboard(w io.Writer, d service.Dashboard, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Stations\t%d (%d active)\n", d.TotalStations, d.ActiveStations)
	fmt.Fprintf(tw, "Readings\t%d (%d in the last %d days)\n", d.TotalReadings, d.RecentCount, service.ActivityDays)

	fmt.Fprintln(tw, "\nRecent readings")
	for _, r := range d.Recent {
		fmt.Fprintf(tw, "  %s\t%s\tpH %.2f\n", r.Timestamp.In(loc).Format("2006-01-02 15:04"), r.StationName(), r.PH)
	}

	fmt.Fprintln(tw, "\nReadings per day")
	for _, day := range d.Daily {
		fmt.Fprintf(tw, "  %s\t%d\n", day.Date, day.Count)
	}

	fmt.Fprintln(tw, "\nReadings per station")
	for _, s := range d.PerStation {
		fmt.Fprintf(tw, "  %s\t%d\n", s.StationName, s.Count)
	}
	return tw.Flush()
}
