package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"khamriver-server/internal/modules/waterquality/aggregate"
	"khamriver-server/internal/modules/waterquality/classify"
	"khamriver-server/internal/modules/waterquality/query"
	"khamriver-server/internal/modules/waterquality/types"
)

const (
	// HomeStationLimit is how many active stations the overview shows.
	HomeStationLimit = 4
	// RecentReadingsLimit is the length of the dashboard's recent list.
	RecentReadingsLimit = 10
	// HomeRecentWindow is how far back the overview's recent count reaches.
	HomeRecentWindow = 3 * 24 * time.Hour
	// ActivityDays is the trailing window of the "readings this week" counter.
	ActivityDays = 7
)

type BrowseResult struct {
	Filter   query.Filter    `json:"-"`
	Stations []types.Station `json:"stations"`
	Page     query.Page      `json:"page"`
	// Visible is Page.Records narrowed by the search text.
	Visible []types.Reading `json:"visible"`
}

// Browse fetches one page of readings for f. Search is applied to the fetched
// page only. A page past the end is clamped to the last page by the paginator.
func (s *Service) Browse(ctx context.Context, f query.Filter, page int, withCollector bool) (BrowseResult, error) {
	out := BrowseResult{Filter: f}

	stations, err := s.repository.ListStations(ctx)
	if err != nil {
		return out, fmt.Errorf("list stations: %w", err)
	}
	out.Stations = stations

	q := s.composer.Readings(f)
	p, err := s.paginator.Fetch(ctx, q, page)
	if err != nil {
		return out, err
	}
	out.Page = p
	out.Visible = query.SearchReadings(p.Records, f.Search, withCollector)
	return out, nil
}

// Stations lists stations by name, narrowed by a case-insensitive search over
// name, number and description.
func (s *Service) Stations(ctx context.Context, search string) ([]types.Station, error) {
	sq := s.composer.Stations(query.Filter{Search: search})
	stations, err := s.repository.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	return query.SearchStations(stations, sq.Search), nil
}

func (s *Service) GetStation(ctx context.Context, id string) (types.Station, error) {
	return s.repository.GetStation(ctx, id)
}

func (s *Service) GetReading(ctx context.Context, id string) (types.Reading, error) {
	return s.repository.GetReading(ctx, id)
}

type StationSummary struct {
	Station types.Station  `json:"station"`
	Latest  *types.Reading `json:"latest"`
	Tier    classify.Tier  `json:"tier"`
}

type Home struct {
	TotalStations int `json:"totalStations"`
	TotalReadings int `json:"totalReadings"`
	// RecentReadings counts readings recorded within HomeRecentWindow.
	RecentReadings int              `json:"recentReadings"`
	Stations       []StationSummary `json:"stations"`
}

// Home is the public overview: totals and the first active stations by name,
// each with its most recently recorded reading.
func (s *Service) Home(ctx context.Context) (Home, error) {
	var out Home
	since := s.now().UTC().Add(-HomeRecentWindow)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalStations, err = s.repository.CountStations(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.TotalReadings, err = s.repository.CountReadings(gctx, query.ReadingQuery{})
		return err
	})
	g.Go(func() (err error) {
		out.RecentReadings, err = s.repository.CountReadings(gctx, query.ReadingQuery{CreatedSince: &since})
		return err
	})
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("count: %w", err)
	}

	stations, err := s.repository.ListStations(ctx)
	if err != nil {
		return out, fmt.Errorf("list stations: %w", err)
	}
	for _, st := range stations {
		if len(out.Stations) == HomeStationLimit {
			break
		}
		if st.Status != types.StatusActive {
			continue
		}
		latest, err := s.repository.LatestReading(ctx, st.ID)
		if err != nil {
			return out, fmt.Errorf("latest reading for station %s: %w", st.ID, err)
		}
		out.Stations = append(out.Stations, StationSummary{Station: st, Latest: latest, Tier: classify.ForReading(latest)})
	}
	return out, nil
}

type Timeframe struct {
	Key  string `json:"key"`
	Days int    `json:"days"`
}

var timeframes = []Timeframe{{"7d", 7}, {"30d", 30}, {"90d", 90}}

// Timeframes lists the selectable station detail windows.
func Timeframes() []Timeframe {
	return append([]Timeframe(nil), timeframes...)
}

// ParseTimeframe resolves a key such as "30d". Unknown keys mean 7d.
func ParseTimeframe(key string) Timeframe {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, tf := range timeframes {
		if tf.Key == key {
			return tf
		}
	}
	return timeframes[0]
}

type StationDetail struct {
	Station   types.Station `json:"station"`
	Timeframe Timeframe     `json:"timeframe"`
	// Readings are newest first; Series holds the same readings oldest first.
	Readings []types.Reading           `json:"readings"`
	Series   []types.Reading           `json:"series"`
	Latest   *types.Reading            `json:"latest"`
	Tier     classify.Tier             `json:"tier"`
	Ranges   []classify.ReferenceRange `json:"ranges"`
}

func (s *Service) StationDetail(ctx context.Context, id, timeframe string) (StationDetail, error) {
	st, err := s.repository.GetStation(ctx, id)
	if err != nil {
		return StationDetail{}, err
	}
	tf := ParseTimeframe(timeframe)
	from := aggregate.WindowStart(s.now(), tf.Days)

	readings, err := s.repository.ListAllReadings(ctx, query.ReadingQuery{StationID: st.ID, From: &from})
	if err != nil {
		return StationDetail{}, fmt.Errorf("list readings: %w", err)
	}
	out := StationDetail{
		Station:   st,
		Timeframe: tf,
		Readings:  readings,
		Series:    make([]types.Reading, len(readings)),
		Ranges:    classify.ReferenceRanges(),
	}
	for i, r := range readings {
		out.Series[len(readings)-1-i] = r
	}
	if len(readings) > 0 {
		out.Latest = &readings[0]
	}
	out.Tier = classify.ForReading(out.Latest)
	return out, nil
}

type Dashboard struct {
	TotalStations  int                      `json:"totalStations"`
	ActiveStations int                      `json:"activeStations"`
	TotalReadings  int                      `json:"totalReadings"`
	RecentCount    int                      `json:"recentCount"`
	Recent         []types.Reading          `json:"recent"`
	Daily          []aggregate.DayCount     `json:"daily"`
	PerStation     []aggregate.StationCount `json:"perStation"`
}

// Dashboard builds the admin summary. Sections are fetched concurrently. A
// failed section is left empty and its error is joined into the result.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var (
		out  Dashboard
		errs = make([]error, 7)
		wg   sync.WaitGroup
	)
	now := s.now()
	weekAgo := aggregate.WindowStart(now, ActivityDays)
	seriesFrom := aggregate.WindowStart(now, aggregate.DashboardDays)

	section := func(i int, name string, fn func() error) {
		wg.Go(func() {
			if err := fn(); err != nil {
				errs[i] = fmt.Errorf("%s: %w", name, err)
			}
		})
	}
	section(0, "count stations", func() (err error) {
		out.TotalStations, err = s.repository.CountStations(ctx)
		return err
	})
	section(1, "count active stations", func() (err error) {
		out.ActiveStations, err = s.repository.CountStationsByStatus(ctx, types.StatusActive)
		return err
	})
	section(2, "count readings", func() (err error) {
		out.TotalReadings, err = s.repository.CountReadings(ctx, query.ReadingQuery{})
		return err
	})
	section(3, "count recent readings", func() (err error) {
		out.RecentCount, err = s.repository.CountReadings(ctx, query.ReadingQuery{From: &weekAgo})
		return err
	})
	section(4, "list recent readings", func() (err error) {
		out.Recent, err = s.repository.ListReadings(ctx, query.ReadingQuery{}, query.PageRange(1, RecentReadingsLimit))
		return err
	})
	section(5, "daily series", func() error {
		series, err := s.repository.ListAllReadings(ctx, query.ReadingQuery{From: &seriesFrom, Ascending: true})
		if err != nil {
			return err
		}
		out.Daily = aggregate.DailyCounts(series, s.location)
		return nil
	})
	section(6, "station series", func() error {
		stations, err := s.repository.ListStations(ctx)
		if err != nil {
			return err
		}
		if len(stations) > aggregate.DashboardStations {
			stations = stations[:aggregate.DashboardStations]
		}
		out.PerStation, err = aggregate.StationCounts(ctx, s.repository, stations)
		return err
	})
	wg.Wait()

	return out, errors.Join(errs...)
}
