package cli

import (
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"khamriver-server/internal/migrate"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(func(conn *sql.DB) error {
				applied, err := migrate.Run(cmd.Context(), conn)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				out := cmd.OutOrStdout()
				if opts.JSON {
					return writeJSON(out, map[string]any{"applied": applied})
				}
				if len(applied) == 0 {
					fmt.Fprintln(out, "schema is up to date")
					return nil
				}
				for _, v := range applied {
					fmt.Fprintf(out, "applied %s\n", v)
				}
				return nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List embedded migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(func(conn *sql.DB) error {
				statuses, err := migrate.List(cmd.Context(), conn)
				if err != nil {
					return fmt.Errorf("migrate status: %w", err)
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), statuses)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
				for _, s := range statuses {
					at := "pending"
					if s.Applied {
						at = s.AppliedAt
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Version, s.Name, at)
				}
				return tw.Flush()
			})
		},
	})
	return cmd
}
