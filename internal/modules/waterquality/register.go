package waterquality

import (
	"database/sql"
	"log/slog"
	"net/http"

	"khamriver-server/internal/config"
	"khamriver-server/internal/modules/waterquality/controller"
	"khamriver-server/internal/modules/waterquality/repository"
	"khamriver-server/internal/modules/waterquality/service"
	"khamriver-server/internal/mqtt"
)

func RegisterFeature(mux *http.ServeMux, db *sql.DB, cfg config.Config, publisher mqtt.ChangePublisher, requireAdmin func(http.Handler) http.Handler) {
	waterQualityRepository := repository.NewRepository(db)
	waterQualityService := service.NewService(waterQualityRepository, service.Options{
		PageSize:  cfg.PageSize,
		Location:  cfg.DisplayLocation,
		Publisher: publisher,
		Logger:    slog.Default().With("module", "waterquality"),
	})
	waterQualityController := controller.NewWaterQualityController(waterQualityService)
	waterQualityController.RegisterRoutes(mux, requireAdmin)
}
