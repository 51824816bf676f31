// Package export serializes readings and stations as CSV text.
//
// The default Plain format joins fields with commas and rows with "\n"
// without quoting, so a text field containing a comma or newline shifts the
// columns of its row. RFC4180 quotes such fields.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"khamriver-server/internal/modules/waterquality/types"
)

type Format string

const (
	Plain   Format = "plain"
	RFC4180 Format = "rfc4180"
)

// ParseFormat maps a query value to a Format. Empty means Plain.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", Plain:
		return Plain, nil
	case RFC4180:
		return RFC4180, nil
	default:
		return "", fmt.Errorf("invalid format %q (allowed: plain, rfc4180)", s)
	}
}

const (
	DateLayout = "1/2/2006"
	TimeLayout = "3:04:05 PM"

	StationFileSuffix = "-data.csv"
	AllDataFilename   = "water-quality-data.csv"
	StationsFilename  = "stations.csv"
)

var stationHeader = []string{
	"Date", "Time", "pH Level", "Temperature (°C)", "Turbidity (NTU)",
	"TDS (mg/L)", "Conductivity (µS/cm)", "Dissolved Oxygen (mg/L)", "Collector", "Notes",
}

var stationsHeader = []string{
	"Name", "Number", "Frequency", "Status", "Latitude", "Longitude",
	"Contact Person", "Installation Date", "Description",
}

// StationReadingsHeader is the column contract of a single-station export.
func StationReadingsHeader() []string {
	return append([]string(nil), stationHeader...)
}

// AllReadingsHeader prefixes the station name and number.
func AllReadingsHeader() []string {
	return append([]string{"Station", "Station ID"}, stationHeader...)
}

type Exporter struct {
	Format   Format
	Location *time.Location
}

// StationReadings writes the readings of one station.
func (e Exporter) StationReadings(readings []types.Reading) ([]byte, error) {
	rows := make([][]string, 0, len(readings)+1)
	rows = append(rows, StationReadingsHeader())
	for _, r := range readings {
		rows = append(rows, e.readingFields(r))
	}
	return e.encode(rows)
}

// AllReadings writes readings from any station. Station name and number come
// from the eager-loaded station reference.
func (e Exporter) AllReadings(readings []types.Reading) ([]byte, error) {
	rows := make([][]string, 0, len(readings)+1)
	rows = append(rows, AllReadingsHeader())
	for _, r := range readings {
		row := append([]string{r.StationName(), r.StationNumber()}, e.readingFields(r)...)
		rows = append(rows, row)
	}
	return e.encode(rows)
}

func (e Exporter) Stations(stations []types.Station) ([]byte, error) {
	rows := make([][]string, 0, len(stations)+1)
	rows = append(rows, append([]string(nil), stationsHeader...))
	for _, s := range stations {
		installed := ""
		if s.InstallationDate != nil {
			installed = s.InstallationDate.Format("2006-01-02")
		}
		rows = append(rows, []string{
			s.Name,
			s.Number,
			s.Frequency,
			string(s.Status),
			optionalFloat(s.Latitude),
			optionalFloat(s.Longitude),
			optionalString(s.ContactPerson),
			installed,
			optionalString(s.Description),
		})
	}
	return e.encode(rows)
}

// StationFilename is the download name for a station export.
func StationFilename(stationName string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '"', '/', '\\', '\r', '\n':
			return '_'
		}
		return r
	}, strings.TrimSpace(stationName))
	if name == "" {
		name = "station"
	}
	return name + StationFileSuffix
}

func (e Exporter) readingFields(r types.Reading) []string {
	ts := r.Timestamp.In(e.location())
	return []string{
		ts.Format(DateLayout),
		ts.Format(TimeLayout),
		formatFloat(r.PH),
		formatFloat(r.Temperature),
		formatFloat(r.Turbidity),
		formatFloat(r.TDS),
		optionalFloat(r.Conductivity),
		optionalFloat(r.DissolvedOxygen),
		optionalString(r.CollectorName),
		optionalString(r.Notes),
	}
}

func (e Exporter) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func (e Exporter) encode(rows [][]string) ([]byte, error) {
	if e.Format == RFC4180 {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows); err != nil {
			return nil, fmt.Errorf("write csv: %w", err)
		}
		return buf.Bytes(), nil
	}
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, ",")
	}
	return []byte(strings.Join(lines, "\n")), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
