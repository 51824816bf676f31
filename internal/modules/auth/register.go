package auth

import (
	"database/sql"
	"log/slog"
	"net/http"

	"khamriver-server/internal/config"
	"khamriver-server/internal/modules/auth/controller"
	"khamriver-server/internal/modules/auth/repository"
	"khamriver-server/internal/modules/auth/service"
	"khamriver-server/internal/mqtt"
)

// RegisterFeature mounts sign-in and admin user routes. The returned
// controller's RequireAdmin guards other features' admin routes.
func RegisterFeature(mux *http.ServeMux, db *sql.DB, cfg config.Config, publisher mqtt.ChangePublisher) controller.AuthController {
	authRepository := repository.NewRepository(db)
	authService := service.NewService(authRepository, service.Options{
		SessionTTL: cfg.SessionTTL,
		Publisher:  publisher,
		Logger:     slog.Default().With("module", "auth"),
	})
	authController := controller.NewAuthController(authService, controller.Options{
		SecureCookies: cfg.AppEnv == "prod",
	})
	authController.RegisterRoutes(mux)
	return authController
}
