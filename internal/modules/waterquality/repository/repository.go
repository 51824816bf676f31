package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"khamriver-server/internal/db"
	"khamriver-server/internal/modules/waterquality/query"
	"khamriver-server/internal/modules/waterquality/types"
)

//go:embed sql/list-stations.sql
var listStationsSQL string

//go:embed sql/get-station.sql
var getStationSQL string

//go:embed sql/insert-station.sql
var insertStationSQL string

//go:embed sql/update-station.sql
var updateStationSQL string

//go:embed sql/delete-station.sql
var deleteStationSQL string

//go:embed sql/count-stations.sql
var countStationsSQL string

//go:embed sql/count-stations-by-status.sql
var countStationsByStatusSQL string

//go:embed sql/select-readings.sql
var selectReadingsSQL string

//go:embed sql/count-readings.sql
var countReadingsSQL string

//go:embed sql/latest-reading.sql
var latestReadingSQL string

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/update-reading.sql
var updateReadingSQL string

//go:embed sql/delete-reading.sql
var deleteReadingSQL string

// installationDateLayout is the stored form of Station.InstallationDate.
const installationDateLayout = "2006-01-02"

var ErrNotFound = errors.New("not found")

type WaterQualityRepository interface {
	ListStations(ctx context.Context) ([]types.Station, error)
	GetStation(ctx context.Context, id string) (types.Station, error)
	CreateStation(ctx context.Context, s types.Station) (types.Station, error)
	UpdateStation(ctx context.Context, s types.Station) (types.Station, error)
	DeleteStation(ctx context.Context, id string) error
	CountStations(ctx context.Context) (int, error)
	CountStationsByStatus(ctx context.Context, status types.StationStatus) (int, error)

	CountReadings(ctx context.Context, q query.ReadingQuery) (int, error)
	ListReadings(ctx context.Context, q query.ReadingQuery, r query.Range) ([]types.Reading, error)
	ListAllReadings(ctx context.Context, q query.ReadingQuery) ([]types.Reading, error)
	GetReading(ctx context.Context, id string) (types.Reading, error)
	LatestReading(ctx context.Context, stationID string) (*types.Reading, error)
	CreateReading(ctx context.Context, r types.Reading) (types.Reading, error)
	UpdateReading(ctx context.Context, r types.Reading) (types.Reading, error)
	DeleteReading(ctx context.Context, id string) error
}

type repositoryImpl struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) WaterQualityRepository {
	return &repositoryImpl{db: db, now: time.Now}
}

func (r *repositoryImpl) ListStations(ctx context.Context) ([]types.Station, error) {
	rows, err := r.db.QueryContext(ctx, listStationsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()
	var out []types.Station
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetStation(ctx context.Context, id string) (types.Station, error) {
	s, err := scanStation(r.db.QueryRowContext(ctx, getStationSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Station{}, fmt.Errorf("station %q: %w", id, ErrNotFound)
	}
	return s, err
}

func (r *repositoryImpl) CreateStation(ctx context.Context, s types.Station) (types.Station, error) {
	s.ID = uuid.NewString()
	s.CreatedAt = r.now().UTC().Truncate(time.Millisecond)
	s.UpdatedAt = nil
	_, err := r.db.ExecContext(ctx, insertStationSQL,
		s.ID, s.Name, s.Number, s.Frequency, string(s.Status),
		nullFloat(s.Latitude), nullFloat(s.Longitude), nullString(s.ContactPerson),
		nullDate(s.InstallationDate), nullString(s.Description), db.FormatTime(s.CreatedAt),
	)
	if err != nil {
		return types.Station{}, fmt.Errorf("insert station: %w", err)
	}
	return s, nil
}

func (r *repositoryImpl) UpdateStation(ctx context.Context, s types.Station) (types.Station, error) {
	existing, err := r.GetStation(ctx, s.ID)
	if err != nil {
		return types.Station{}, err
	}
	updated := r.now().UTC().Truncate(time.Millisecond)
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = &updated
	_, err = r.db.ExecContext(ctx, updateStationSQL,
		s.Name, s.Number, s.Frequency, string(s.Status),
		nullFloat(s.Latitude), nullFloat(s.Longitude), nullString(s.ContactPerson),
		nullDate(s.InstallationDate), nullString(s.Description), db.FormatTime(updated),
		s.ID,
	)
	if err != nil {
		return types.Station{}, fmt.Errorf("update station: %w", err)
	}
	return s, nil
}

// DeleteStation fails with a foreign key error when readings still reference
// the station.
func (r *repositoryImpl) DeleteStation(ctx context.Context, id string) error {
	return r.deleteByID(ctx, deleteStationSQL, "station", id)
}

func (r *repositoryImpl) CountStations(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countStationsSQL).Scan(&n)
	return n, err
}

func (r *repositoryImpl) CountStationsByStatus(ctx context.Context, status types.StationStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countStationsByStatusSQL, string(status)).Scan(&n)
	return n, err
}

func (r *repositoryImpl) CountReadings(ctx context.Context, q query.ReadingQuery) (int, error) {
	where, args := readingWhere(q)
	var n int
	err := r.db.QueryRowContext(ctx, countReadingsSQL+where, args...).Scan(&n)
	return n, err
}

// ListReadings returns the inclusive index range rng of the readings matching
// q, newest first unless q.Ascending.
func (r *repositoryImpl) ListReadings(ctx context.Context, q query.ReadingQuery, rng query.Range) ([]types.Reading, error) {
	where, args := readingWhere(q)
	args = append(args, rng.Limit(), rng.Offset())
	stmt := selectReadingsSQL + where + readingOrder(q) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return r.queryReadings(ctx, stmt, args...)
}

// ListAllReadings is ListReadings without a range. Exports and chart series
// use it.
func (r *repositoryImpl) ListAllReadings(ctx context.Context, q query.ReadingQuery) ([]types.Reading, error) {
	where, args := readingWhere(q)
	return r.queryReadings(ctx, selectReadingsSQL+where+readingOrder(q), args...)
}

func (r *repositoryImpl) GetReading(ctx context.Context, id string) (types.Reading, error) {
	out, err := r.queryReadings(ctx, selectReadingsSQL+" WHERE wq.id = $1", id)
	if err != nil {
		return types.Reading{}, err
	}
	if len(out) == 0 {
		return types.Reading{}, fmt.Errorf("reading %q: %w", id, ErrNotFound)
	}
	return out[0], nil
}

// LatestReading returns the most recently recorded reading of a station, or
// nil when it has none.
func (r *repositoryImpl) LatestReading(ctx context.Context, stationID string) (*types.Reading, error) {
	out, err := r.queryReadings(ctx, latestReadingSQL, stationID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (r *repositoryImpl) CreateReading(ctx context.Context, rd types.Reading) (types.Reading, error) {
	rd.ID = uuid.NewString()
	rd.CreatedAt = r.now().UTC().Truncate(time.Millisecond)
	if rd.Timestamp.IsZero() {
		rd.Timestamp = rd.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, insertReadingSQL,
		rd.ID, rd.StationID, db.FormatTime(rd.Timestamp),
		rd.PH, rd.Temperature, rd.Turbidity, rd.TDS, rd.EC,
		nullFloat(rd.DissolvedOxygen), nullFloat(rd.Conductivity),
		nullString(rd.CollectorName), nullString(rd.Notes),
		db.FormatTime(rd.CreatedAt),
	)
	if err != nil {
		return types.Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	return r.GetReading(ctx, rd.ID)
}

func (r *repositoryImpl) UpdateReading(ctx context.Context, rd types.Reading) (types.Reading, error) {
	existing, err := r.GetReading(ctx, rd.ID)
	if err != nil {
		return types.Reading{}, err
	}
	if rd.Timestamp.IsZero() {
		rd.Timestamp = existing.Timestamp
	}
	_, err = r.db.ExecContext(ctx, updateReadingSQL,
		rd.StationID, db.FormatTime(rd.Timestamp),
		rd.PH, rd.Temperature, rd.Turbidity, rd.TDS, rd.EC,
		nullFloat(rd.DissolvedOxygen), nullFloat(rd.Conductivity),
		nullString(rd.CollectorName), nullString(rd.Notes),
		rd.ID,
	)
	if err != nil {
		return types.Reading{}, fmt.Errorf("update reading: %w", err)
	}
	return r.GetReading(ctx, rd.ID)
}

func (r *repositoryImpl) DeleteReading(ctx context.Context, id string) error {
	return r.deleteByID(ctx, deleteReadingSQL, "reading", id)
}

func (r *repositoryImpl) deleteByID(ctx context.Context, stmt, kind, id string) error {
	res, err := r.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return nil
}

func (r *repositoryImpl) queryReadings(ctx context.Context, stmt string, args ...any) ([]types.Reading, error) {
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()
	var out []types.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

// readingWhere renders q as a WHERE clause. Placeholders are numbered in the
// order they appear.
func readingWhere(q query.ReadingQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.StationID != "" {
		add("wq.station_id = $%d", q.StationID)
	}
	if q.From != nil {
		add("wq.ts >= $%d", db.FormatTime(*q.From))
	}
	if q.To != nil {
		add("wq.ts <= $%d", db.FormatTime(*q.To))
	}
	if q.CreatedSince != nil {
		add("wq.created_at >= $%d", db.FormatTime(*q.CreatedSince))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func readingOrder(q query.ReadingQuery) string {
	if q.Ascending {
		return " ORDER BY wq.ts ASC, wq.id ASC"
	}
	return " ORDER BY wq.ts DESC, wq.id DESC"
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStation(row scanner) (types.Station, error) {
	var (
		s                       types.Station
		status                  sql.NullString
		lat, long               sql.NullFloat64
		contact, desc, instDate sql.NullString
		created                 string
		updated                 sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Number, &s.Frequency, &status, &lat, &long,
		&contact, &instDate, &desc, &created, &updated); err != nil {
		return types.Station{}, err
	}
	s.Status = types.StationStatus(status.String)
	s.Latitude = floatPtr(lat)
	s.Longitude = floatPtr(long)
	s.ContactPerson = stringPtr(contact)
	s.Description = stringPtr(desc)

	var err error
	if s.CreatedAt, err = db.ParseTime(created); err != nil {
		return types.Station{}, err
	}
	if updated.Valid {
		t, err := db.ParseTime(updated.String)
		if err != nil {
			return types.Station{}, err
		}
		s.UpdatedAt = &t
	}
	if instDate.Valid && instDate.String != "" {
		d, err := time.Parse(installationDateLayout, instDate.String)
		if err != nil {
			return types.Station{}, fmt.Errorf("parse installation date %q: %w", instDate.String, err)
		}
		s.InstallationDate = &d
	}
	return s, nil
}

func scanReading(row scanner) (types.Reading, error) {
	var (
		rd               types.Reading
		ref              types.StationRef
		ts, created      string
		do, cond         sql.NullFloat64
		collector, notes sql.NullString
	)
	if err := row.Scan(&rd.ID, &rd.StationID, &ref.Name, &ref.Number, &ts,
		&rd.PH, &rd.Temperature, &rd.Turbidity, &rd.TDS, &rd.EC,
		&do, &cond, &collector, &notes, &created); err != nil {
		return types.Reading{}, err
	}
	ref.ID = rd.StationID
	rd.Station = &ref
	rd.DissolvedOxygen = floatPtr(do)
	rd.Conductivity = floatPtr(cond)
	rd.CollectorName = stringPtr(collector)
	rd.Notes = stringPtr(notes)

	var err error
	if rd.Timestamp, err = db.ParseTime(ts); err != nil {
		return types.Reading{}, err
	}
	if rd.CreatedAt, err = db.ParseTime(created); err != nil {
		return types.Reading{}, err
	}
	return rd, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullDate(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.Format(installationDateLayout)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
