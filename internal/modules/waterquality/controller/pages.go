package controller

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"khamriver-server/internal/modules/waterquality/repository"
	"khamriver-server/internal/modules/waterquality/service"
	"khamriver-server/internal/modules/waterquality/views"
	"khamriver-server/internal/utils"
)

func (c *waterQualityControllerImpl) page(title, nav string) views.Page {
	return views.Page{Title: title, Nav: nav, Location: c.service.Location()}
}

func (c *waterQualityControllerImpl) handleHomePage(w http.ResponseWriter, r *http.Request) {
	home, err := c.service.Home(r.Context())
	if err != nil {
		slog.Error("home page: load overview failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load overview")
		return
	}
	writePage(w, "home", func(buf *bytes.Buffer) error {
		return views.RenderHome(buf, &views.HomeData{Page: c.page("Home", "home"), Home: home})
	})
}

func (c *waterQualityControllerImpl) handleStationsPage(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	stations, err := c.service.Stations(r.Context(), search)
	if err != nil {
		slog.Error("stations page: list stations failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stations")
		return
	}
	writePage(w, "stations", func(buf *bytes.Buffer) error {
		return views.RenderStations(buf, &views.StationsData{
			Page:     c.page("Stations", "stations"),
			Search:   search,
			Stations: stations,
		})
	})
}

func (c *waterQualityControllerImpl) handleStationPage(w http.ResponseWriter, r *http.Request) {
	detail, err := c.service.StationDetail(r.Context(), r.PathValue("id"), r.URL.Query().Get("timeframe"))
	if errors.Is(err, repository.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("station page: load station failed", "station_id", r.PathValue("id"), "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load station")
		return
	}
	writePage(w, "station", func(buf *bytes.Buffer) error {
		return views.RenderStation(buf, &views.StationData{
			Page:       c.page(detail.Station.Name, "stations"),
			Detail:     detail,
			Timeframes: service.Timeframes(),
		})
	})
}

func (c *waterQualityControllerImpl) handleDataPage(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := c.service.Browse(r.Context(), f, parsePage(r), false)
	if err != nil {
		slog.Error("data page: browse failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	q := r.URL.Query()
	writePage(w, "data", func(buf *bytes.Buffer) error {
		return views.RenderData(buf, &views.DataData{
			Page:      c.page("Data", "data"),
			Result:    res,
			StationID: f.StationID,
			Search:    f.Search,
			From:      formatDate(f.From),
			To:        formatDate(f.To),
			Query:     filterQuery(q),
		})
	})
}

// writePage renders into a buffer first so a template error still yields a
// clean 500.
func writePage(w http.ResponseWriter, name string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		slog.Error(name+" page render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error(name+" page: write response failed", "error", err)
	}
}
