package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"khamriver-server/internal/modules/waterquality/query"
	"khamriver-server/internal/modules/waterquality/validate"
)

// filterFlags are the reading filters shared by readings and export.
type filterFlags struct {
	station string
	search  string
	from    string
	to      string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.station, "station", "", "station id")
	cmd.Flags().StringVar(&f.search, "search", "", "match station name, number, notes or ID")
	cmd.Flags().StringVar(&f.from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "last day, YYYY-MM-DD")
}

func (f *filterFlags) filter() (query.Filter, error) {
	out := query.Filter{
		StationID: strings.TrimSpace(f.station),
		Search:    strings.TrimSpace(f.search),
	}
	var err error
	if out.From, err = parseDay("from", f.from); err != nil {
		return query.Filter{}, err
	}
	if out.To, err = parseDay("to", f.to); err != nil {
		return query.Filter{}, err
	}
	if out.From != nil && out.To != nil && out.From.After(*out.To) {
		return query.Filter{}, errors.New("--from must not be after --to")
	}
	return out, nil
}

func parseDay(name, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(validate.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q (expected YYYY-MM-DD)", name, s)
	}
	return &t, nil
}
