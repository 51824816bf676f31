package cli

import (
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"khamriver-server/internal/modules/auth/repository"
	"khamriver-server/internal/modules/auth/service"
)

func newAdminCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}
	authService := func(conn *sql.DB) *service.Service {
		return service.NewService(repository.NewRepository(conn), service.Options{SessionTTL: opts.cfg.SessionTTL})
	}

	var in service.UserInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(func(conn *sql.DB) error {
				u, err := authService(conn).CreateUser(cmd.Context(), in)
				if err != nil {
					return err
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), u)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "administrator email")
	create.Flags().StringVar(&in.Password, "password", "", "initial password (at least 6 characters)")

	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List administrators by email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(func(conn *sql.DB) error {
				users, err := authService(conn).ListUsers(cmd.Context(), search)
				if err != nil {
					return err
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), users)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tEMAIL\tCREATED")
				for _, u := range users {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Email, u.CreatedAt.Format("2006-01-02"))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&search, "search", "", "filter by email")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an administrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(func(conn *sql.DB) error {
				if err := authService(conn).DeleteUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted admin %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}
