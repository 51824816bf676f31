package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"khamriver-server/internal/modules/waterquality/export"
	"khamriver-server/internal/modules/waterquality/service"
	"khamriver-server/internal/modules/waterquality/validate"
	"khamriver-server/internal/utils"
)

// maxImportSize bounds uploaded import files.
const maxImportSize = 32 << 20

type dashboardResponse struct {
	service.Dashboard
	// Partial is set when some sections could not be loaded and are empty.
	Partial bool `json:"partial"`
}

func (c *waterQualityControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := c.service.Dashboard(r.Context())
	if err != nil {
		slog.Error("dashboard: some sections failed", "error", err)
	}
	utils.WriteJSON(w, http.StatusOK, dashboardResponse{Dashboard: d, Partial: err != nil})
}

func (c *waterQualityControllerImpl) handleExportStations(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	file, err := c.service.ExportStations(r.Context(), r.URL.Query().Get("search"), format)
	if err != nil {
		writeServiceError(w, "export stations", "", err)
		return
	}
	utils.WriteCSV(w, file.Name, file.Data)
}

func (c *waterQualityControllerImpl) handleCreateStation(w http.ResponseWriter, r *http.Request) {
	var in validate.StationInput
	if err := utils.ReadJSON(w, r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := c.service.CreateStation(r.Context(), in)
	if err != nil {
		writeServiceError(w, "create station", "", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, st)
}

func (c *waterQualityControllerImpl) handleUpdateStation(w http.ResponseWriter, r *http.Request) {
	var in validate.StationInput
	if err := utils.ReadJSON(w, r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := c.service.UpdateStation(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, "update station", "station not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, st)
}

func (c *waterQualityControllerImpl) handleDeleteStation(w http.ResponseWriter, r *http.Request) {
	if err := c.service.DeleteStation(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, "delete station", "station not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *waterQualityControllerImpl) handleAdminReadings(w http.ResponseWriter, r *http.Request) {
	c.browse(w, r, true)
}

func (c *waterQualityControllerImpl) handleAdminExportReadings(w http.ResponseWriter, r *http.Request) {
	c.exportReadings(w, r, true)
}

func (c *waterQualityControllerImpl) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	var in validate.ReadingInput
	if err := utils.ReadJSON(w, r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	reading, err := c.service.CreateReading(r.Context(), in)
	if err != nil {
		writeServiceError(w, "create reading", "", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, reading)
}

func (c *waterQualityControllerImpl) handleUpdateReading(w http.ResponseWriter, r *http.Request) {
	var in validate.ReadingInput
	if err := utils.ReadJSON(w, r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	reading, err := c.service.UpdateReading(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, "update reading", "reading not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, reading)
}

func (c *waterQualityControllerImpl) handleDeleteReading(w http.ResponseWriter, r *http.Request) {
	if err := c.service.DeleteReading(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, "delete reading", "reading not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *waterQualityControllerImpl) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.WriteError(w, http.StatusRequestEntityTooLarge, "Import file is too large.")
			return
		}
		utils.WriteError(w, http.StatusBadRequest, "Please select a file to import.")
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Error("import: close upload failed", "error", closeErr)
		}
	}()
	utils.WriteJSON(w, http.StatusAccepted, c.service.Import(r.Context(), header.Filename, header.Size))
}
