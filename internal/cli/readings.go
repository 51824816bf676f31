package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"khamriver-server/internal/modules/waterquality/classify"
	"khamriver-server/internal/modules/waterquality/query"
)

const readingsHelp = `commands:
  n            next page
  p            previous page
  g N          go to page N
  s TEXT       search (empty clears)
  station ID   select a station (empty clears)
  range A B    date range YYYY-MM-DD YYYY-MM-DD (empty clears)
  reset        clear all filters
  q            quit`

func newReadingsCommand(opts *RootOptions) *cobra.Command {
	var (
		ff            filterFlags
		page          int
		withCollector bool
		interactive   bool
	)
	cmd := &cobra.Command{
		Use:   "readings",
		Short: "Browse water quality readings a page at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			return opts.withDB(func(conn *sql.DB) error {
				svc := opts.waterQuality(conn)
				b := query.NewBrowser(svc.Paginator(), svc.Composer(), withCollector)
				ctx := cmd.Context()
				for _, e := range []query.Event{
					query.SelectStation{StationID: f.StationID},
					query.SetDateRange{From: f.From, To: f.To},
					query.SetSearch{Text: f.Search},
				} {
					if _, err := b.Dispatch(ctx, e); err != nil {
						return err
					}
				}
				snap := b.Snapshot()
				if page > 1 {
					if snap, err = b.Dispatch(ctx, query.GoToPage{Page: page}); err != nil {
						return err
					}
				}
				if interactive {
					return browse(ctx, b, cmd.InOrStdin(), cmd.OutOrStdout(), svc.Location())
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"page": snap.Page, "visible": snap.Visible})
				}
				return printSnapshot(cmd.OutOrStdout(), snap, svc.Location())
			})
		},
	}
	ff.register(cmd)
	cmd.Flags().IntVar(&page, "page", 1, "page to show")
	cmd.Flags().BoolVar(&withCollector, "collector", false, "let --search match the collector name")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read navigation commands from stdin")
	return cmd
}

// browse runs a line-oriented session over b until q or end of input.
func browse(ctx context.Context, b *query.Browser, in io.Reader, out io.Writer, loc *time.Location) error {
	if err := printSnapshot(out, b.Snapshot(), loc); err != nil {
		return err
	}
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "q" || line == "quit" {
			return nil
		}
		e, err := parseEvent(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if e == nil {
			continue
		}
		snap, err := b.Dispatch(ctx, e)
		if err != nil && !errors.Is(err, query.ErrStale) {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if err := printSnapshot(out, snap, loc); err != nil {
			return err
		}
	}
}

func parseEvent(line string) (query.Event, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "":
		return nil, nil
	case "n", "next":
		return query.NextPage{}, nil
	case "p", "prev":
		return query.PrevPage{}, nil
	case "g", "goto":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errors.New("usage: g N")
		}
		return query.GoToPage{Page: n}, nil
	case "s", "search":
		return query.SetSearch{Text: arg}, nil
	case "station":
		return query.SelectStation{StationID: arg}, nil
	case "range":
		if arg == "" {
			return query.SetDateRange{}, nil
		}
		parts := strings.Fields(arg)
		if len(parts) != 2 {
			return nil, errors.New("usage: range YYYY-MM-DD YYYY-MM-DD")
		}
		from, err := parseDay("from", parts[0])
		if err != nil {
			return nil, err
		}
		to, err := parseDay("to", parts[1])
		if err != nil {
			return nil, err
		}
		return query.SetDateRange{From: from, To: to}, nil
	case "reset":
		return query.ResetFilters{}, nil
	case "h", "help", "?":
		return nil, errors.New(readingsHelp)
	default:
		return nil, fmt.Errorf("unknown command %q (h for help)", cmd)
	}
}

func printSnapshot(w io.Writer, snap query.Snapshot, loc *time.Location) error {
	p := snap.Page
	if len(snap.Visible) == 0 {
		fmt.Fprintln(w, "no readings match these filters")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tSTATION\tPH\tTEMP\tTURBIDITY\tTDS\tEC\tQUALITY")
		for _, r := range snap.Visible {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
				r.Timestamp.In(loc).Format("2006-01-02 15:04"), r.StationName(),
				r.PH, r.Temperature, r.Turbidity, r.TDS, r.EC, classify.ForReading(&r))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "showing %d to %d of %d (page %d of %d)\n", p.First, p.Last, p.Total, p.Page, max(p.TotalPages, 1))
	return err
}
