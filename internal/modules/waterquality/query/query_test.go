package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khamriver-server/internal/modules/waterquality/types"
)

type memStore struct {
	mu       sync.Mutex
	readings []types.Reading
	countErr error
	listErr  error
	counts   int
	lists    int
	ranges   []Range
	// gate, when set, blocks ListReadings until it receives a value.
	gate chan struct{}
}

func (m *memStore) match(q ReadingQuery) []types.Reading {
	var out []types.Reading
	for _, r := range m.readings {
		if q.StationID != "" && r.StationID != q.StationID {
			continue
		}
		if q.From != nil && r.Timestamp.Before(*q.From) {
			continue
		}
		if q.To != nil && r.Timestamp.After(*q.To) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.Ascending {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (m *memStore) CountReadings(_ context.Context, q ReadingQuery) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts++
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.match(q)), nil
}

func (m *memStore) ListReadings(_ context.Context, q ReadingQuery, r Range) ([]types.Reading, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	m.ranges = append(m.ranges, r)
	if m.listErr != nil {
		return nil, m.listErr
	}
	all := m.match(q)
	if r.Offset() < 0 {
		return nil, fmt.Errorf("negative offset %d", r.Offset())
	}
	if r.Offset() >= len(all) {
		return nil, nil
	}
	return all[r.Offset():min(r.Offset()+r.Limit(), len(all))], nil
}

func seedReadings(stations map[string]int, start time.Time) []types.Reading {
	var out []types.Reading
	ids := make([]string, 0, len(stations))
	for id := range stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	n := 0
	for _, id := range ids {
		for i := 0; i < stations[id]; i++ {
			n++
			out = append(out, types.Reading{
				ID:        fmt.Sprintf("r-%03d", n),
				StationID: id,
				Station:   &types.StationRef{ID: id, Name: "Station " + id, Number: "KR-" + id},
				Timestamp: start.Add(time.Duration(n) * time.Hour),
				PH:        7,
			})
		}
	}
	return out
}

func TestComposer_Readings(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*60*60)
	from := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	to := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	t.Run("day bounds in configured zone", func(t *testing.T) {
		q := Composer{Location: bangkok}.Readings(Filter{StationID: " st-1 ", From: &from, To: &to})
		assert.Equal(t, "st-1", q.StationID)
		require.NotNil(t, q.From)
		require.NotNil(t, q.To)
		assert.True(t, q.From.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, bangkok)))
		assert.True(t, q.To.Equal(time.Date(2024, 3, 5, 23, 59, 59, 0, bangkok)))
		assert.False(t, q.Ascending)
	})

	t.Run("nil location means UTC", func(t *testing.T) {
		q := Composer{}.Readings(Filter{From: &from})
		require.NotNil(t, q.From)
		assert.Equal(t, time.UTC, q.From.Location())
		assert.Nil(t, q.To)
	})

	t.Run("search is not pushed to the store", func(t *testing.T) {
		q := Composer{}.Readings(Filter{Search: "kham"})
		assert.Equal(t, ReadingQuery{}, q)
	})
}

func TestSearchReadings(t *testing.T) {
	collector := "Somchai"
	rs := []types.Reading{
		{ID: "1", Station: &types.StationRef{Name: "Upper Kham", Number: "KR-01"}},
		{ID: "2", Station: &types.StationRef{Name: "Lower Kham", Number: "KR-02"}, CollectorName: &collector},
		{ID: "3"},
	}

	t.Run("empty text keeps everything", func(t *testing.T) {
		assert.Len(t, SearchReadings(rs, "  ", false), 3)
	})

	t.Run("matches name case-insensitively", func(t *testing.T) {
		got := SearchReadings(rs, "UPPER", false)
		require.Len(t, got, 1)
		assert.Equal(t, "1", got[0].ID)
	})

	t.Run("matches number", func(t *testing.T) {
		got := SearchReadings(rs, "kr-02", false)
		require.Len(t, got, 1)
		assert.Equal(t, "2", got[0].ID)
	})

	t.Run("collector only when asked", func(t *testing.T) {
		assert.Empty(t, SearchReadings(rs, "somchai", false))
		assert.Len(t, SearchReadings(rs, "somchai", true), 1)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		before := append([]types.Reading(nil), rs...)
		_ = SearchReadings(rs, "lower", true)
		assert.Equal(t, before, rs)
	})
}

func TestSearchStations(t *testing.T) {
	desc := "Near the old bridge"
	ss := []types.Station{
		{ID: "a", Name: "Mae Kham", Number: "KR-01"},
		{ID: "b", Name: "Chiang Saen", Number: "KR-02", Description: &desc},
	}
	assert.Len(t, SearchStations(ss, "BRIDGE"), 1)
	assert.Len(t, SearchStations(ss, "kr-0"), 2)
	assert.Empty(t, SearchStations(ss, "nothing"))
}

func TestPageRange(t *testing.T) {
	assert.Equal(t, Range{From: 0, To: 19}, PageRange(1, 20))
	assert.Equal(t, Range{From: 40, To: 59}, PageRange(3, 20))
	assert.Equal(t, Range{From: 0, To: 19}, PageRange(0, 20))
	assert.Equal(t, 20, PageRange(7, 20).Limit())

	huge := PageRange(math.MaxInt64/10, 20)
	assert.GreaterOrEqual(t, huge.From, 0)
	assert.Greater(t, huge.To, huge.From)
	assert.Equal(t, 20, huge.Limit())
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{100, 20, 5},
		{5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, TotalPages(tt.total, tt.size))
		})
	}
}

func TestPageWindow(t *testing.T) {
	t.Run("no pages", func(t *testing.T) {
		assert.Empty(t, PageWindow(1, 0))
	})

	t.Run("five or fewer pages shows all", func(t *testing.T) {
		for total := 1; total <= 5; total++ {
			for p := 1; p <= total; p++ {
				want := make([]int, total)
				for i := range want {
					want[i] = i + 1
				}
				assert.Equal(t, want, PageWindow(p, total), "p=%d total=%d", p, total)
			}
		}
	})

	t.Run("more than five pages always shows five contiguous", func(t *testing.T) {
		for total := 6; total <= 30; total++ {
			for p := 1; p <= total; p++ {
				w := PageWindow(p, total)
				require.Len(t, w, 5, "p=%d total=%d", p, total)
				assert.GreaterOrEqual(t, w[0], 1)
				assert.LessOrEqual(t, w[4], total)
				assert.Contains(t, w, p)
				for i := 1; i < len(w); i++ {
					assert.Equal(t, w[i-1]+1, w[i])
				}
			}
		}
	})

	t.Run("near ends and middle", func(t *testing.T) {
		assert.Equal(t, []int{1, 2, 3, 4, 5}, PageWindow(3, 10))
		assert.Equal(t, []int{6, 7, 8, 9, 10}, PageWindow(8, 10))
		assert.Equal(t, []int{4, 5, 6, 7, 8}, PageWindow(6, 10))
	})

	t.Run("out of range page is clamped", func(t *testing.T) {
		assert.Equal(t, []int{6, 7, 8, 9, 10}, PageWindow(42, 10))
		assert.Equal(t, []int{1, 2, 3, 4, 5}, PageWindow(-1, 10))
	})
}

func TestPaginator_Fetch(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{readings: seedReadings(map[string]int{"a": 23, "b": 17, "c": 5}, start)}
	p := Paginator{Store: store, PageSize: 20}
	ctx := context.Background()

	t.Run("page bounded by size with count", func(t *testing.T) {
		page, err := p.Fetch(ctx, ReadingQuery{}, 1)
		require.NoError(t, err)
		assert.Len(t, page.Records, 20)
		assert.Equal(t, 45, page.Total)
		assert.Equal(t, 3, page.TotalPages)
		assert.Equal(t, 1, page.First)
		assert.Equal(t, 20, page.Last)
		assert.Equal(t, []int{1, 2, 3}, page.Window)
		assert.False(t, page.HasPrev())
		assert.True(t, page.HasNext())
	})

	t.Run("last page is partial", func(t *testing.T) {
		page, err := p.Fetch(ctx, ReadingQuery{}, 3)
		require.NoError(t, err)
		assert.Len(t, page.Records, 5)
		assert.Equal(t, 41, page.First)
		assert.Equal(t, 45, page.Last)
	})

	t.Run("newest first", func(t *testing.T) {
		page, err := p.Fetch(ctx, ReadingQuery{}, 1)
		require.NoError(t, err)
		for i := 1; i < len(page.Records); i++ {
			assert.False(t, page.Records[i].Timestamp.After(page.Records[i-1].Timestamp))
		}
	})

	t.Run("station totals partition the unfiltered total", func(t *testing.T) {
		all, err := p.Fetch(ctx, ReadingQuery{}, 1)
		require.NoError(t, err)
		sum := 0
		for _, id := range []string{"a", "b", "c"} {
			page, err := p.Fetch(ctx, ReadingQuery{StationID: id}, 1)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(page.Records), 20)
			sum += page.Total
		}
		assert.Equal(t, all.Total, sum)
	})

	t.Run("empty result has no pages", func(t *testing.T) {
		page, err := p.Fetch(ctx, ReadingQuery{StationID: "missing"}, 1)
		require.NoError(t, err)
		assert.Empty(t, page.Records)
		assert.Zero(t, page.TotalPages)
		assert.Zero(t, page.First)
		assert.Empty(t, page.Window)
	})

	t.Run("page past the end is clamped before the range query", func(t *testing.T) {
		s := &memStore{readings: store.readings}
		pp := Paginator{Store: s, PageSize: 20}
		for _, requested := range []int{4, 1000, math.MaxInt64 / 10, math.MaxInt} {
			s.lists, s.ranges = 0, nil
			page, err := pp.Fetch(ctx, ReadingQuery{}, requested)
			require.NoError(t, err)
			assert.Equal(t, 3, page.Page)
			assert.Len(t, page.Records, 5)
			assert.Equal(t, 41, page.First)
			assert.Equal(t, 45, page.Last)
			assert.Equal(t, []Range{{From: 40, To: 59}}, s.ranges)
			assert.Equal(t, 1, s.lists)
		}
	})

	t.Run("empty result queries the first page", func(t *testing.T) {
		s := &memStore{}
		page, err := Paginator{Store: s, PageSize: 20}.Fetch(ctx, ReadingQuery{}, 7)
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, []Range{{From: 0, To: 19}}, s.ranges)
	})

	t.Run("count error is wrapped", func(t *testing.T) {
		bad := Paginator{Store: &memStore{countErr: errors.New("boom")}}
		_, err := bad.Fetch(ctx, ReadingQuery{}, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "count readings")
	})
}

func TestViewState_Apply(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s := NewViewState()
	s.TotalPages = 4

	t.Run("next and prev stay in range", func(t *testing.T) {
		got := s.Apply(PrevPage{})
		assert.Equal(t, 1, got.Page)
		got = got.Apply(NextPage{}).Apply(NextPage{}).Apply(NextPage{}).Apply(NextPage{})
		assert.Equal(t, 4, got.Page)
	})

	t.Run("go to page clamps", func(t *testing.T) {
		assert.Equal(t, 4, s.Apply(GoToPage{Page: 9}).Page)
		assert.Equal(t, 1, s.Apply(GoToPage{Page: -2}).Page)
		assert.Equal(t, 3, s.Apply(GoToPage{Page: 3}).Page)
	})

	t.Run("filter changes reset page", func(t *testing.T) {
		on3 := s.Apply(GoToPage{Page: 3})
		assert.Equal(t, 1, on3.Apply(SelectStation{StationID: "a"}).Page)
		assert.Equal(t, 1, on3.Apply(SetSearch{Text: "x"}).Page)
		assert.Equal(t, 1, on3.Apply(SetDateRange{From: &day}).Page)
	})

	t.Run("reset clears filters", func(t *testing.T) {
		got := s.Apply(SelectStation{StationID: "a"}).Apply(SetSearch{Text: "x"}).Apply(ResetFilters{})
		assert.Equal(t, Filter{}, got.Filter())
		assert.Equal(t, 1, got.Page)
	})

	t.Run("apply does not modify receiver", func(t *testing.T) {
		_ = s.Apply(SelectStation{StationID: "z"})
		assert.Empty(t, s.StationID)
	})
}

func TestBrowser_Dispatch(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("navigates using fetched totals", func(t *testing.T) {
		store := &memStore{readings: seedReadings(map[string]int{"a": 30, "b": 15}, start)}
		b := NewBrowser(Paginator{Store: store, PageSize: 20}, Composer{}, false)

		snap, err := b.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, snap.State.TotalPages)

		snap, err = b.Dispatch(ctx, NextPage{})
		require.NoError(t, err)
		assert.Equal(t, 2, snap.State.Page)

		snap, err = b.Dispatch(ctx, SelectStation{StationID: "b"})
		require.NoError(t, err)
		assert.Equal(t, 1, snap.State.Page)
		assert.Equal(t, 15, snap.Page.Total)
		assert.Equal(t, 1, snap.State.TotalPages)
	})

	t.Run("search filters the visible page only", func(t *testing.T) {
		store := &memStore{readings: seedReadings(map[string]int{"a": 10, "b": 30}, start)}
		b := NewBrowser(Paginator{Store: store, PageSize: 20}, Composer{}, false)

		snap, err := b.Dispatch(ctx, SetSearch{Text: "station a"})
		require.NoError(t, err)
		assert.Len(t, snap.Page.Records, 20)
		assert.Empty(t, snap.Visible)
		assert.Equal(t, 40, snap.Page.Total)
	})

	t.Run("fetch error leaves empty page", func(t *testing.T) {
		store := &memStore{listErr: errors.New("down")}
		b := NewBrowser(Paginator{Store: store}, Composer{}, false)
		snap, err := b.Refresh(ctx)
		require.Error(t, err)
		assert.Empty(t, snap.Page.Records)
		assert.Equal(t, DefaultPageSize, snap.Page.PageSize)
	})

	t.Run("stale response is discarded", func(t *testing.T) {
		gate := make(chan struct{})
		store := &memStore{readings: seedReadings(map[string]int{"a": 3, "b": 4}, start), gate: gate}
		b := NewBrowser(Paginator{Store: store, PageSize: 20}, Composer{}, false)

		firstDone := make(chan error, 1)
		go func() {
			_, err := b.Dispatch(ctx, SelectStation{StationID: "a"})
			firstDone <- err
		}()
		// Wait until the first dispatch has taken its token.
		require.Eventually(t, func() bool { return b.seq.last.Load() == 1 }, time.Second, time.Millisecond)

		secondDone := make(chan error, 1)
		go func() {
			_, err := b.Dispatch(ctx, SelectStation{StationID: "b"})
			secondDone <- err
		}()
		require.Eventually(t, func() bool { return b.seq.last.Load() == 2 }, time.Second, time.Millisecond)

		gate <- struct{}{}
		gate <- struct{}{}
		errs := []error{<-firstDone, <-secondDone}

		stale := 0
		for _, err := range errs {
			if errors.Is(err, ErrStale) {
				stale++
			}
		}
		assert.GreaterOrEqual(t, stale, 1)
		snap := b.Snapshot()
		assert.Equal(t, "b", snap.State.StationID)
		assert.Equal(t, 4, snap.Page.Total)
	})
}
