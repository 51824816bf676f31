package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"khamriver-server/internal/modules/waterquality/classify"
	"khamriver-server/internal/modules/waterquality/export"
	"khamriver-server/internal/modules/waterquality/repository"
	"khamriver-server/internal/modules/waterquality/service"
	"khamriver-server/internal/modules/waterquality/types"
	"khamriver-server/internal/modules/waterquality/validate"
	"khamriver-server/internal/utils"
)

func (c *waterQualityControllerImpl) handleHome(w http.ResponseWriter, r *http.Request) {
	home, err := c.service.Home(r.Context())
	if err != nil {
		writeServiceError(w, "load overview", "", err)
		return
	}
	if home.Stations == nil {
		home.Stations = []service.StationSummary{}
	}
	utils.WriteJSON(w, http.StatusOK, home)
}

func (c *waterQualityControllerImpl) handleReferenceRanges(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, classify.ReferenceRanges())
}

func (c *waterQualityControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := c.service.Stations(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeServiceError(w, "load stations", "", err)
		return
	}
	if stations == nil {
		stations = []types.Station{}
	}
	utils.WriteJSON(w, http.StatusOK, stations)
}

func (c *waterQualityControllerImpl) handleStation(w http.ResponseWriter, r *http.Request) {
	st, err := c.service.GetStation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "load station", "station not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, st)
}

func (c *waterQualityControllerImpl) handleStationDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := c.service.StationDetail(r.Context(), r.PathValue("id"), r.URL.Query().Get("timeframe"))
	if err != nil {
		writeServiceError(w, "load station", "station not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, detail)
}

func (c *waterQualityControllerImpl) handleExportStation(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	file, err := c.service.ExportStation(r.Context(), r.PathValue("id"), r.URL.Query().Get("timeframe"), format)
	if err != nil {
		writeServiceError(w, "export station readings", "station not found", err)
		return
	}
	utils.WriteCSV(w, file.Name, file.Data)
}

func (c *waterQualityControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	c.browse(w, r, false)
}

func (c *waterQualityControllerImpl) handleReading(w http.ResponseWriter, r *http.Request) {
	reading, err := c.service.GetReading(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "load reading", "reading not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, reading)
}

func (c *waterQualityControllerImpl) handleExportReadings(w http.ResponseWriter, r *http.Request) {
	c.exportReadings(w, r, false)
}

// browse serves one page of readings. withCollector widens search to the
// collector name, which only administrators see.
func (c *waterQualityControllerImpl) browse(w http.ResponseWriter, r *http.Request, withCollector bool) {
	f, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := c.service.Browse(r.Context(), f, parsePage(r), withCollector)
	if err != nil {
		writeServiceError(w, "load readings", "", err)
		return
	}
	if res.Visible == nil {
		res.Visible = []types.Reading{}
	}
	if res.Page.Records == nil {
		res.Page.Records = []types.Reading{}
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (c *waterQualityControllerImpl) exportReadings(w http.ResponseWriter, r *http.Request, withCollector bool) {
	f, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	scope := service.ParseScope(r.URL.Query().Get("scope"))
	file, err := c.service.ExportReadings(r.Context(), f, parsePage(r), scope, withCollector, format)
	if err != nil {
		writeServiceError(w, "export readings", "", err)
		return
	}
	utils.WriteCSV(w, file.Name, file.Data)
}

// writeServiceError maps service errors to responses. Unexpected errors are
// logged and reported generically.
func writeServiceError(w http.ResponseWriter, op, notFound string, err error) {
	var verr *validate.Error
	var inUse *service.StationInUseError
	switch {
	case errors.As(err, &verr):
		utils.WriteFieldError(w, http.StatusBadRequest, verr.Field, verr.Message)
	case errors.As(err, &inUse):
		utils.WriteError(w, http.StatusConflict, inUse.Error())
	case notFound != "" && errors.Is(err, repository.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, notFound)
	default:
		slog.Error(op+" failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
