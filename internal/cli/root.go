// Package cli implements khamctl, the operator command line.
package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"khamriver-server/internal/config"
	"khamriver-server/internal/db"
	"khamriver-server/internal/modules/waterquality/repository"
	"khamriver-server/internal/modules/waterquality/service"
)

// RootOptions holds global flags and the configuration loaded before any
// subcommand runs.
type RootOptions struct {
	EnvFile string
	JSON    bool

	cfg config.Config
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "khamctl",
		Short:         "Operate the Kham River water quality server",
		Long:          "Apply migrations, manage administrators, browse and export readings against the configured database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(opts.EnvFile); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			slog.SetDefault(slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
				Level:      cfg.LogLevel,
				TimeFormat: time.Kitchen,
			})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file read before the environment")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print JSON instead of text")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newAdminCommand(opts))
	cmd.AddCommand(newReadingsCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newDashboardCommand(opts))

	return cmd
}

// withDB opens the configured database for the duration of fn.
func (o *RootOptions) withDB(fn func(conn *sql.DB) error) error {
	conn, err := db.Open(o.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()
	return fn(conn)
}

func (o *RootOptions) waterQuality(conn *sql.DB) *service.Service {
	return service.NewService(repository.NewRepository(conn), service.Options{
		PageSize: o.cfg.PageSize,
		Location: o.cfg.DisplayLocation,
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
