package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khamriver-server/internal/migrate"
	"khamriver-server/internal/modules/waterquality/aggregate"
	"khamriver-server/internal/modules/waterquality/classify"
	"khamriver-server/internal/modules/waterquality/export"
	"khamriver-server/internal/modules/waterquality/query"
	"khamriver-server/internal/modules/waterquality/repository"
	"khamriver-server/internal/modules/waterquality/types"
	"khamriver-server/internal/modules/waterquality/validate"
	"khamriver-server/internal/mqtt"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []mqtt.ChangeEvent
	err    error
}

func (p *recordingPublisher) PublishChange(_ context.Context, ev mqtt.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrate.Run(context.Background(), db)
	require.NoError(t, err)
	return db
}

func newTestService(t *testing.T, repo repository.WaterQualityRepository, pageSize int) (*Service, *recordingPublisher) {
	t.Helper()
	if repo == nil {
		repo = repository.NewRepository(setupTestDB(t))
	}
	pub := &recordingPublisher{}
	s := NewService(repo, Options{
		PageSize:  pageSize,
		Publisher: pub,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.now = func() time.Time { return testNow }
	return s, pub
}

func ptr[T any](v T) *T { return &v }

func addStation(t *testing.T, s *Service, name, status string) types.Station {
	t.Helper()
	st, err := s.CreateStation(context.Background(), validate.StationInput{
		Name: name, Number: name + "-N", Frequency: "weekly", Status: status,
	})
	require.NoError(t, err)
	return st
}

func addReading(t *testing.T, s *Service, stationID string, ts time.Time, ph float64) types.Reading {
	t.Helper()
	rd, err := s.CreateReading(context.Background(), validate.ReadingInput{
		StationID:   stationID,
		Timestamp:   &ts,
		PH:          ptr(ph),
		Temperature: ptr(26.0),
		Turbidity:   ptr(3.0),
		TDS:         ptr(180.0),
		EC:          ptr(350.0),
	})
	require.NoError(t, err)
	return rd
}

func TestDeleteStation_guard(t *testing.T) {
	s, pub := newTestService(t, nil, 20)
	ctx := context.Background()
	st := addStation(t, s, "Alpha", "")
	r1 := addReading(t, s, st.ID, testNow.Add(-time.Hour), 7)
	r2 := addReading(t, s, st.ID, testNow.Add(-2*time.Hour), 7.2)

	err := s.DeleteStation(ctx, st.ID)
	var inUse *StationInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, 2, inUse.Count)
	assert.Equal(t, "This station has 2 water quality readings associated with it. Delete the readings first.", err.Error())

	require.NoError(t, s.DeleteReading(ctx, r1.ID))
	require.NoError(t, s.DeleteReading(ctx, r2.ID))
	require.NoError(t, s.DeleteStation(ctx, st.ID))

	_, err = s.GetStation(ctx, st.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, s.DeleteStation(ctx, st.ID), repository.ErrNotFound)

	var actions []string
	for _, ev := range pub.events {
		actions = append(actions, ev.Entity+":"+string(ev.Action))
		assert.Equal(t, st.ID, ev.StationID)
	}
	assert.Equal(t, []string{
		"station:created", "reading:created", "reading:created",
		"reading:deleted", "reading:deleted", "station:deleted",
	}, actions)
}

func TestCreateStation_defaultsAndValidation(t *testing.T) {
	s, pub := newTestService(t, nil, 20)
	st := addStation(t, s, "Alpha", "")
	assert.Equal(t, types.StatusActive, st.Status)

	_, err := s.CreateStation(context.Background(), validate.StationInput{Name: "Beta", Number: "B"})
	require.Error(t, err)
	assert.True(t, validate.IsError(err))
	assert.Len(t, pub.events, 1)
}

func TestUpdateStation(t *testing.T) {
	s, _ := newTestService(t, nil, 20)
	st := addStation(t, s, "Alpha", "")

	got, err := s.UpdateStation(context.Background(), st.ID, validate.StationInput{
		Name: "Alpha 2", Number: "A2", Frequency: "daily", Status: "maintenance",
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusMaintenance, got.Status)
	assert.NotNil(t, got.UpdatedAt)

	_, err = s.UpdateStation(context.Background(), "missing", validate.StationInput{Name: "x", Number: "x", Frequency: "x"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateReading_rejections(t *testing.T) {
	s, pub := newTestService(t, nil, 20)
	ctx := context.Background()
	st := addStation(t, s, "Alpha", "")

	_, err := s.CreateReading(ctx, validate.ReadingInput{
		StationID: "no-such-station", PH: ptr(7.0), Temperature: ptr(1.0), Turbidity: ptr(1.0), TDS: ptr(1.0), EC: ptr(1.0),
	})
	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "station_id", verr.Field)

	_, err = s.CreateReading(ctx, validate.ReadingInput{
		StationID: st.ID, PH: ptr(15.0), Temperature: ptr(1.0), Turbidity: ptr(1.0), TDS: ptr(1.0), EC: ptr(1.0),
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ph_level", verr.Field)

	assert.Len(t, pub.events, 1, "only the station create is published")
}

func TestUpdateReading(t *testing.T) {
	s, _ := newTestService(t, nil, 20)
	a := addStation(t, s, "Alpha", "")
	b := addStation(t, s, "Beta", "")
	rd := addReading(t, s, a.ID, testNow.Add(-time.Hour), 7)

	got, err := s.UpdateReading(context.Background(), rd.ID, validate.ReadingInput{
		StationID: b.ID, PH: ptr(6.0), Temperature: ptr(1.0), Turbidity: ptr(1.0), TDS: ptr(1.0), EC: ptr(1.0),
		Notes: ptr("recalibrated"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Beta", got.StationName())
	assert.True(t, got.Timestamp.Equal(rd.Timestamp), "timestamp kept when omitted")
	require.NotNil(t, got.Notes)
	assert.Equal(t, "recalibrated", *got.Notes)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	s, pub := newTestService(t, nil, 20)
	pub.err = errors.New("broker down")
	st := addStation(t, s, "Alpha", "")
	assert.NotEmpty(t, st.ID)
}

func TestBrowse(t *testing.T) {
	s, _ := newTestService(t, nil, 2)
	ctx := context.Background()
	a := addStation(t, s, "Alpha", "")
	b := addStation(t, s, "Beta", "")
	addReading(t, s, a.ID, testNow.Add(-1*time.Hour), 7.0)
	addReading(t, s, b.ID, testNow.Add(-2*time.Hour), 7.1)
	addReading(t, s, a.ID, testNow.Add(-3*time.Hour), 7.2)

	res, err := s.Browse(ctx, query.Filter{}, 1, false)
	require.NoError(t, err)
	assert.Len(t, res.Stations, 2)
	assert.Equal(t, 3, res.Page.Total)
	assert.Equal(t, 2, res.Page.TotalPages)
	assert.Len(t, res.Visible, 2)

	res, err = s.Browse(ctx, query.Filter{}, 9, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Page.Page, "page past the end is clamped")
	assert.Len(t, res.Page.Records, 1)

	res, err = s.Browse(ctx, query.Filter{}, math.MaxInt64/10, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Page.Page)
	assert.Equal(t, 3, res.Page.First)
	assert.Len(t, res.Page.Records, 1)

	res, err = s.Browse(ctx, query.Filter{Search: "beta"}, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Page.Total, "search does not change the total")
	require.Len(t, res.Visible, 1)
	assert.Equal(t, b.ID, res.Visible[0].StationID)

	res, err = s.Browse(ctx, query.Filter{StationID: a.ID}, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Page.Total)
}

func TestStations_search(t *testing.T) {
	s, _ := newTestService(t, nil, 20)
	addStation(t, s, "Mekong Bridge", "")
	addStation(t, s, "Ang Nam", "")

	all, err := s.Stations(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Ang Nam", all[0].Name)

	got, err := s.Stations(context.Background(), "  MEKONG ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mekong Bridge", got[0].Name)
}

func TestHome(t *testing.T) {
	s, _ := newTestService(t, nil, 20)
	ctx := context.Background()
	addStation(t, s, "A", "inactive")
	b := addStation(t, s, "B", "")
	addStation(t, s, "C", "")
	addStation(t, s, "D", "maintenance")
	addStation(t, s, "E", "")
	addStation(t, s, "F", "")
	addStation(t, s, "G", "")
	addReading(t, s, b.ID, testNow.Add(-time.Hour), 9.1)

	home, err := s.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, home.TotalStations)
	assert.Equal(t, 1, home.TotalReadings)
	assert.Equal(t, 1, home.RecentReadings)

	// The window is measured on created_at, so moving the clock past it
	// drops the reading from the recent count but not from the total.
	s.now = func() time.Time { return time.Now().Add(HomeRecentWindow + time.Hour) }
	later, err := s.Home(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, later.TotalReadings)
	assert.Zero(t, later.RecentReadings)

	var names []string
	for _, sum := range home.Stations {
		names = append(names, sum.Station.Name)
	}
	assert.Equal(t, []string{"B", "C", "E", "F"}, names)
	require.NotNil(t, home.Stations[0].Latest)
	assert.Equal(t, classify.Poor, home.Stations[0].Tier)
	assert.Nil(t, home.Stations[1].Latest)
	assert.Equal(t, classify.Unknown, home.Stations[1].Tier)
}

func TestStationDetail(t *testing.T) {
	s, _ := newTestService(t, nil, 20)
	ctx := context.Background()
	st := addStation(t, s, "Alpha", "")
	addReading(t, s, st.ID, testNow.AddDate(0, 0, -60), 6.0)
	addReading(t, s, st.ID, testNow.AddDate(0, 0, -20), 7.0)
	addReading(t, s, st.ID, testNow.AddDate(0, 0, -3), 7.5)

	tests := []struct {
		timeframe string
		wantKey   string
		wantLen   int
	}{
		{"7d", "7d", 1},
		{"30d", "30d", 2},
		{"90d", "90d", 3},
		{"bogus", "7d", 1},
		{"", "7d", 1},
	}
	for _, tt := range tests {
		t.Run(tt.timeframe, func(t *testing.T) {
			d, err := s.StationDetail(ctx, st.ID, tt.timeframe)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, d.Timeframe.Key)
			require.Len(t, d.Readings, tt.wantLen)
			require.NotNil(t, d.Latest)
			assert.Equal(t, 7.5, d.Latest.PH)
			assert.Equal(t, classify.Good, d.Tier)
			assert.Equal(t, d.Readings[0].ID, d.Series[len(d.Series)-1].ID, "series is oldest first")
			assert.NotEmpty(t, d.Ranges)
		})
	}

	_, err := s.StationDetail(ctx, "missing", "7d")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDashboard(t *testing.T) {
	s, _ := newTestService(t, nil, 20)
	ctx := context.Background()
	var stations []types.Station
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		status := ""
		if name == "F" {
			status = "inactive"
		}
		stations = append(stations, addStation(t, s, name, status))
	}
	a, b := stations[0].ID, stations[1].ID
	addReading(t, s, a, time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC), 7)
	addReading(t, s, b, time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC), 7)
	addReading(t, s, a, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), 7)
	addReading(t, s, a, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), 7)
	addReading(t, s, b, time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC), 7)

	d, err := s.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, d.TotalStations)
	assert.Equal(t, 5, d.ActiveStations)
	assert.Equal(t, 5, d.TotalReadings)
	assert.Equal(t, 3, d.RecentCount)
	assert.Len(t, d.Recent, 5)
	assert.Equal(t, []string{"2024-03-02", "2024-03-10", "2024-03-14"}, dates(d.Daily))
	assert.Equal(t, 2, d.Daily[2].Count)

	require.Len(t, d.PerStation, 5)
	assert.Equal(t, "A", d.PerStation[0].StationName)
	assert.Equal(t, 3, d.PerStation[0].Count)
	assert.Equal(t, 2, d.PerStation[1].Count)
	assert.Equal(t, 0, d.PerStation[4].Count)
}

type failingRepo struct {
	repository.WaterQualityRepository
}

func (failingRepo) CountStationsByStatus(context.Context, types.StationStatus) (int, error) {
	return 0, errors.New("store unavailable")
}

func TestDashboard_partialFailure(t *testing.T) {
	repo := failingRepo{repository.NewRepository(setupTestDB(t))}
	s, _ := newTestService(t, repo, 20)
	addStation(t, s, "A", "")

	d, err := s.Dashboard(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count active stations")
	assert.Equal(t, 1, d.TotalStations, "other sections still load")
	assert.Equal(t, 0, d.ActiveStations)
}

func TestExports(t *testing.T) {
	s, _ := newTestService(t, nil, 2)
	ctx := context.Background()
	st := addStation(t, s, "Mekong Bridge", "")
	for i := 1; i <= 3; i++ {
		addReading(t, s, st.ID, testNow.Add(-time.Duration(i)*time.Hour), 7)
	}

	f, err := s.ExportStation(ctx, st.ID, "7d", export.Plain)
	require.NoError(t, err)
	assert.Equal(t, "Mekong Bridge-data.csv", f.Name)
	assert.Equal(t, 4, lines(f.Data))

	f, err = s.ExportReadings(ctx, query.Filter{}, 1, ScopePage, false, export.Plain)
	require.NoError(t, err)
	assert.Equal(t, export.AllDataFilename, f.Name)
	assert.Equal(t, 3, lines(f.Data), "header and the visible page")

	f, err = s.ExportReadings(ctx, query.Filter{}, 1, ScopeAll, false, export.Plain)
	require.NoError(t, err)
	assert.Equal(t, 4, lines(f.Data), "header and every match")

	f, err = s.ExportStations(ctx, "", export.Plain)
	require.NoError(t, err)
	assert.Equal(t, export.StationsFilename, f.Name)
	assert.Equal(t, 2, lines(f.Data))
}

func TestParseTimeframeAndScope(t *testing.T) {
	assert.Equal(t, 30, ParseTimeframe(" 30D ").Days)
	assert.Equal(t, 7, ParseTimeframe("1y").Days)
	assert.Len(t, Timeframes(), 3)
	assert.Equal(t, ScopeAll, ParseScope("ALL"))
	assert.Equal(t, ScopePage, ParseScope("everything"))
}

func TestImport(t *testing.T) {
	s, _ := newTestService(t, nil, 20)
	got := s.Import(context.Background(), "readings.csv", 1024)
	assert.Equal(t, "Your data import has been initiated. This may take a few minutes to process.", got.Message)
	assert.Equal(t, int64(1024), got.Size)
}

func dates(days []aggregate.DayCount) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Date
	}
	return out
}

func lines(b []byte) int {
	return len(bytes.Split(bytes.TrimRight(b, "\n"), []byte("\n")))
}
