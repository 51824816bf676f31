package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"khamriver-server/internal/migrate"
	"khamriver-server/internal/utils"
)

const healthTimeout = 2 * time.Second

type health struct {
	Status string `json:"status"`
	// Schema is the newest applied migration, "unknown" when it cannot be read.
	Schema string `json:"schema"`
}

// healthz fails only when the database is unreachable.
func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			slog.Error("health check: database unreachable", "error", err)
			utils.WriteError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		out := health{Status: "ok", Schema: "unknown"}
		if v, err := migrate.Current(ctx, db); err != nil {
			slog.Warn("health check: schema version", "error", err)
		} else if v != "" {
			out.Schema = v
		}
		utils.WriteJSON(w, http.StatusOK, out)
	}
}
