package service

import (
	"context"
	"fmt"
	"strings"

	"khamriver-server/internal/modules/waterquality/export"
	"khamriver-server/internal/modules/waterquality/query"
)

type Scope string

const (
	ScopePage Scope = "page"
	ScopeAll  Scope = "all"
)

// ParseScope maps a query value to a Scope. Anything but "all" is the page.
func ParseScope(s string) Scope {
	if strings.EqualFold(strings.TrimSpace(s), string(ScopeAll)) {
		return ScopeAll
	}
	return ScopePage
}

type File struct {
	Name string
	Data []byte
}

// ExportStation exports the station's readings within timeframe, newest first.
func (s *Service) ExportStation(ctx context.Context, id, timeframe string, format export.Format) (File, error) {
	detail, err := s.StationDetail(ctx, id, timeframe)
	if err != nil {
		return File{}, err
	}
	data, err := s.exporter(format).StationReadings(detail.Readings)
	if err != nil {
		return File{}, fmt.Errorf("export station readings: %w", err)
	}
	return File{Name: export.StationFilename(detail.Station.Name), Data: data}, nil
}

// ExportReadings exports what a reading list shows: the visible page, or with
// ScopeAll every reading matching f. Search narrows both.
func (s *Service) ExportReadings(ctx context.Context, f query.Filter, page int, scope Scope, withCollector bool, format export.Format) (File, error) {
	var err error
	var data []byte
	switch scope {
	case ScopeAll:
		all, lerr := s.repository.ListAllReadings(ctx, s.composer.Readings(f))
		if lerr != nil {
			return File{}, fmt.Errorf("list readings: %w", lerr)
		}
		data, err = s.exporter(format).AllReadings(query.SearchReadings(all, f.Search, withCollector))
	default:
		res, berr := s.Browse(ctx, f, page, withCollector)
		if berr != nil {
			return File{}, berr
		}
		data, err = s.exporter(format).AllReadings(res.Visible)
	}
	if err != nil {
		return File{}, fmt.Errorf("export readings: %w", err)
	}
	return File{Name: export.AllDataFilename, Data: data}, nil
}

func (s *Service) ExportStations(ctx context.Context, search string, format export.Format) (File, error) {
	stations, err := s.Stations(ctx, search)
	if err != nil {
		return File{}, err
	}
	data, err := s.exporter(format).Stations(stations)
	if err != nil {
		return File{}, fmt.Errorf("export stations: %w", err)
	}
	return File{Name: export.StationsFilename, Data: data}, nil
}

const importInitiatedMessage = "Your data import has been initiated. This may take a few minutes to process."

type ImportReceipt struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Message  string `json:"message"`
}

// Import acknowledges an uploaded file. The file is not processed.
func (s *Service) Import(_ context.Context, filename string, size int64) ImportReceipt {
	s.logger.Info("data import received", "filename", filename, "size", size)
	return ImportReceipt{Filename: filename, Size: size, Message: importInitiatedMessage}
}
