package controller

import (
	"context"
	"net/http"
	"time"

	"khamriver-server/internal/modules/waterquality/export"
	"khamriver-server/internal/modules/waterquality/query"
	"khamriver-server/internal/modules/waterquality/service"
	"khamriver-server/internal/modules/waterquality/types"
	"khamriver-server/internal/modules/waterquality/validate"
)

type WaterQualityService interface {
	Home(ctx context.Context) (service.Home, error)
	Stations(ctx context.Context, search string) ([]types.Station, error)
	GetStation(ctx context.Context, id string) (types.Station, error)
	StationDetail(ctx context.Context, id, timeframe string) (service.StationDetail, error)
	Browse(ctx context.Context, f query.Filter, page int, withCollector bool) (service.BrowseResult, error)
	GetReading(ctx context.Context, id string) (types.Reading, error)
	Dashboard(ctx context.Context) (service.Dashboard, error)

	CreateStation(ctx context.Context, in validate.StationInput) (types.Station, error)
	UpdateStation(ctx context.Context, id string, in validate.StationInput) (types.Station, error)
	DeleteStation(ctx context.Context, id string) error
	CreateReading(ctx context.Context, in validate.ReadingInput) (types.Reading, error)
	UpdateReading(ctx context.Context, id string, in validate.ReadingInput) (types.Reading, error)
	DeleteReading(ctx context.Context, id string) error

	ExportStation(ctx context.Context, id, timeframe string, format export.Format) (service.File, error)
	ExportReadings(ctx context.Context, f query.Filter, page int, scope service.Scope, withCollector bool, format export.Format) (service.File, error)
	ExportStations(ctx context.Context, search string, format export.Format) (service.File, error)
	Import(ctx context.Context, filename string, size int64) service.ImportReceipt

	Location() *time.Location
}

type WaterQualityController interface {
	// RegisterRoutes mounts public routes as-is and admin routes behind requireAdmin.
	RegisterRoutes(mux *http.ServeMux, requireAdmin func(http.Handler) http.Handler)
}

type waterQualityControllerImpl struct {
	service WaterQualityService
}

func NewWaterQualityController(svc WaterQualityService) WaterQualityController {
	return &waterQualityControllerImpl{service: svc}
}

func (c *waterQualityControllerImpl) RegisterRoutes(mux *http.ServeMux, requireAdmin func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /{$}", c.handleHomePage)
	mux.HandleFunc("GET /stations", c.handleStationsPage)
	mux.HandleFunc("GET /stations/{id}", c.handleStationPage)
	mux.HandleFunc("GET /data", c.handleDataPage)

	mux.HandleFunc("GET /api/home", c.handleHome)
	mux.HandleFunc("GET /api/reference-ranges", c.handleReferenceRanges)
	mux.HandleFunc("GET /api/stations", c.handleStations)
	mux.HandleFunc("GET /api/stations/{id}", c.handleStation)
	mux.HandleFunc("GET /api/stations/{id}/detail", c.handleStationDetail)
	mux.HandleFunc("GET /api/stations/{id}/export", c.handleExportStation)
	mux.HandleFunc("GET /api/readings", c.handleReadings)
	mux.HandleFunc("GET /api/readings/export", c.handleExportReadings)
	mux.HandleFunc("GET /api/readings/{id}", c.handleReading)

	admin := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAdmin(h))
	}
	admin("GET /api/admin/dashboard", c.handleDashboard)
	admin("GET /api/admin/stations/export", c.handleExportStations)
	admin("POST /api/admin/stations", c.handleCreateStation)
	admin("PUT /api/admin/stations/{id}", c.handleUpdateStation)
	admin("DELETE /api/admin/stations/{id}", c.handleDeleteStation)
	admin("GET /api/admin/readings", c.handleAdminReadings)
	admin("GET /api/admin/readings/export", c.handleAdminExportReadings)
	admin("POST /api/admin/readings", c.handleCreateReading)
	admin("PUT /api/admin/readings/{id}", c.handleUpdateReading)
	admin("DELETE /api/admin/readings/{id}", c.handleDeleteReading)
	admin("POST /api/admin/import", c.handleImport)
}
