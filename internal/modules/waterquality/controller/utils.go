package controller

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"khamriver-server/internal/modules/waterquality/query"
	"khamriver-server/internal/modules/waterquality/validate"
)

// filterParams are the query keys of a reading list; "page" travels with them.
var filterParams = []string{"station_id", "from", "to", "search"}

// parseFilter reads the reading-list filter. from and to are calendar dates
// (YYYY-MM-DD); only their date part is used.
func parseFilter(r *http.Request) (query.Filter, error) {
	q := r.URL.Query()
	f := query.Filter{
		StationID: strings.TrimSpace(q.Get("station_id")),
		Search:    strings.TrimSpace(q.Get("search")),
	}
	var err error
	if f.From, err = parseDate(q, "from"); err != nil {
		return query.Filter{}, err
	}
	if f.To, err = parseDate(q, "to"); err != nil {
		return query.Filter{}, err
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return query.Filter{}, errors.New("'from' must be <= 'to'")
	}
	return f, nil
}

func parseDate(q url.Values, key string) (*time.Time, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(validate.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid '%s' (expected YYYY-MM-DD)", key)
	}
	return &t, nil
}

// maxPage bounds the requested page so offsets stay far from overflow.
const maxPage = 1_000_000

// parsePage returns the 1-based page number from the request (default 1,
// min 1, max maxPage).
func parsePage(r *http.Request) int {
	s := r.URL.Query().Get("page")
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxPage)
}

// filterQuery keeps the filter and page keys of q, dropping empty values.
func filterQuery(q url.Values) url.Values {
	out := url.Values{}
	for _, k := range append(filterParams, "page") {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			out.Set(k, v)
		}
	}
	return out
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(validate.DateLayout)
}
