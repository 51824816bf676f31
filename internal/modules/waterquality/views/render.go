package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"khamriver-server/internal/modules/waterquality/classify"
	"khamriver-server/internal/modules/waterquality/service"
	"khamriver-server/internal/modules/waterquality/types"
)

const DateTimeLayout = "Jan 2, 2006 15:04"

var pageTmpl *template.Template

var funcs = template.FuncMap{
	"datetime": func(t time.Time, loc *time.Location) string {
		if loc == nil {
			loc = time.UTC
		}
		return t.In(loc).Format(DateTimeLayout)
	},
	"location": func(loc *time.Location) string {
		if loc == nil {
			return "UTC"
		}
		return loc.String()
	},
	"num": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
	"optnum": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatFloat(*v, 'f', 2, 64)
	},
	"status": func(s types.StationStatus) string {
		if s == types.StatusUnset {
			return "Unknown"
		}
		return cases.Title(language.English).String(string(s))
	},
	"tier": func(r types.Reading) classify.Tier { return classify.ForReading(&r) },
	"pageURL": func(q url.Values, page int) string {
		out := url.Values{}
		for k, v := range q {
			out[k] = v
		}
		out.Set("page", strconv.Itoa(page))
		return "?" + out.Encode()
	},
	// withQuery builds whole URLs; html/template would escape "&" and "="
	// in a query fragment spliced after a literal "?".
	"withQuery": func(path string, q url.Values) string {
		if len(q) == 0 {
			return path
		}
		return path + "?" + q.Encode()
	},
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
	"dict": func(kv ...any) (map[string]any, error) {
		if len(kv)%2 != 0 {
			return nil, errors.New("dict: odd number of arguments")
		}
		m := make(map[string]any, len(kv)/2)
		for i := 0; i < len(kv); i += 2 {
			k, ok := kv[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
			}
			m[k] = kv[i+1]
		}
		return m, nil
	},
}

// loadTemplatesFromFS parses page templates from dir within fsys. Tests use it
// with broken filesystems.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	pageTmpl, err = template.New("pages").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	return err
}

// LoadTemplates loads the embedded page templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// Page carries what the shared layout needs.
type Page struct {
	Title    string
	Nav      string
	Location *time.Location
}

type HomeData struct {
	Page
	Home service.Home
}

type StationsData struct {
	Page
	Search   string
	Stations []types.Station
}

type StationData struct {
	Page
	Detail     service.StationDetail
	Timeframes []service.Timeframe
}

// DataData is the reading browser. The filter fields echo the form inputs;
// Query is the current query string, reused by pagination and export links.
type DataData struct {
	Page
	Result    service.BrowseResult
	StationID string
	Search    string
	From      string
	To        string
	Query     url.Values
}

func RenderHome(w io.Writer, data *HomeData) error {
	return render(w, "home.html", data)
}

func RenderStations(w io.Writer, data *StationsData) error {
	return render(w, "stations.html", data)
}

func RenderStation(w io.Writer, data *StationData) error {
	return render(w, "station.html", data)
}

func RenderData(w io.Writer, data *DataData) error {
	return render(w, "data.html", data)
}

func render(w io.Writer, name string, data any) error {
	if pageTmpl == nil {
		return errors.New("page templates not loaded: call views.LoadTemplates during startup")
	}
	return pageTmpl.ExecuteTemplate(w, name, data)
}
