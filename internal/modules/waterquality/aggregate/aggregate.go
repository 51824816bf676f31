// Package aggregate reduces readings into the series behind the dashboard charts.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"khamriver-server/internal/modules/waterquality/query"
	"khamriver-server/internal/modules/waterquality/types"
)

const (
	DateLayout = "2006-01-02"
	// DashboardDays is the trailing window of the daily series.
	DashboardDays = 14
	// DashboardStations is how many stations the per-station series compares.
	DashboardStations = 5
)

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type StationCount struct {
	StationID   string `json:"stationId"`
	StationName string `json:"stationName"`
	Count       int    `json:"count"`
}

// WindowStart is now minus days, the lower bound of a trailing window.
func WindowStart(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// DailyCounts groups readings by calendar date in loc and emits one entry per
// date in the order first seen. Dates without readings are not emitted.
func DailyCounts(readings []types.Reading, loc *time.Location) []DayCount {
	if loc == nil {
		loc = time.UTC
	}
	index := make(map[string]int)
	var out []DayCount
	for _, r := range readings {
		day := r.Timestamp.In(loc).Format(DateLayout)
		i, ok := index[day]
		if !ok {
			index[day] = len(out)
			out = append(out, DayCount{Date: day})
			i = len(out) - 1
		}
		out[i].Count++
	}
	return out
}

type ReadingCounter interface {
	CountReadings(ctx context.Context, q query.ReadingQuery) (int, error)
}

// StationCounts issues one count per station concurrently and returns the
// counts in station order. If any count fails the whole result fails.
func StationCounts(ctx context.Context, counter ReadingCounter, stations []types.Station) ([]StationCount, error) {
	out := make([]StationCount, len(stations))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range stations {
		out[i] = StationCount{StationID: s.ID, StationName: s.Name}
		g.Go(func() error {
			n, err := counter.CountReadings(gctx, query.ReadingQuery{StationID: s.ID})
			if err != nil {
				return fmt.Errorf("count readings for station %s: %w", s.ID, err)
			}
			out[i].Count = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
