// Package query turns user-selected criteria into store queries, pages through
// the results, and holds the explicit view state that drives a reading list.
package query

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"khamriver-server/internal/modules/waterquality/types"
)

// Filter is what a user selected: a station, a free-text fragment and an
// inclusive calendar-day range. Only the calendar date of From and To is used.
type Filter struct {
	StationID string
	Search    string
	From      *time.Time
	To        *time.Time
}

// ReadingQuery is the normalized descriptor sent to the store. From and To are
// absolute instants; both bounds are inclusive.
type ReadingQuery struct {
	StationID string
	From      *time.Time
	To        *time.Time
	// CreatedSince bounds created_at rather than the reading timestamp.
	CreatedSince *time.Time
	Ascending    bool
}

// StationQuery lists stations ordered by name. Search is applied after the fetch.
type StationQuery struct {
	Search string
}

// Composer resolves calendar days in Location (UTC when nil).
type Composer struct {
	Location *time.Location
}

func (c Composer) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Readings builds the store query for a filter. Search is not part of the
// result: it is applied to the fetched page with SearchReadings.
func (c Composer) Readings(f Filter) ReadingQuery {
	loc := c.location()
	q := ReadingQuery{StationID: strings.TrimSpace(f.StationID)}
	if f.From != nil {
		from := StartOfDay(*f.From, loc)
		q.From = &from
	}
	if f.To != nil {
		to := EndOfDay(*f.To, loc)
		q.To = &to
	}
	return q
}

func (c Composer) Stations(f Filter) StationQuery {
	return StationQuery{Search: strings.TrimSpace(f.Search)}
}

// StartOfDay is 00:00:00 of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay is 23:59:59 of t's calendar date in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, loc)
}

// SearchReadings keeps the readings whose station name or number contains
// text, ignoring case. withCollector also matches the collector name.
// An empty text returns rs as is.
func SearchReadings(rs []types.Reading, text string, withCollector bool) []types.Reading {
	m := newMatcher(text)
	if m == nil {
		return rs
	}
	out := make([]types.Reading, 0, len(rs))
	for _, r := range rs {
		fields := []string{r.StationName(), r.StationNumber()}
		if withCollector && r.CollectorName != nil {
			fields = append(fields, *r.CollectorName)
		}
		if m.any(fields...) {
			out = append(out, r)
		}
	}
	return out
}

// SearchStations matches name, number and description.
func SearchStations(ss []types.Station, text string) []types.Station {
	m := newMatcher(text)
	if m == nil {
		return ss
	}
	out := make([]types.Station, 0, len(ss))
	for _, s := range ss {
		fields := []string{s.Name, s.Number}
		if s.Description != nil {
			fields = append(fields, *s.Description)
		}
		if m.any(fields...) {
			out = append(out, s)
		}
	}
	return out
}

type matcher struct {
	caser  cases.Caser
	needle string
}

func newMatcher(text string) *matcher {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c := cases.Fold()
	return &matcher{caser: c, needle: c.String(text)}
}

func (m *matcher) any(fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(m.caser.String(f), m.needle) {
			return true
		}
	}
	return false
}
