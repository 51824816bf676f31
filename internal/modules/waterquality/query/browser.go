package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"khamriver-server/internal/modules/waterquality/types"
)

// ErrStale is returned by Dispatch when a newer dispatch was issued while
// this one was fetching. Its result was not applied.
var ErrStale = errors.New("stale response discarded")

// Sequencer hands out monotonically increasing request tokens.
type Sequencer struct {
	last atomic.Uint64
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// IsLatest reports whether token is the most recently issued one.
func (s *Sequencer) IsLatest(token uint64) bool {
	return s.last.Load() == token
}

// Snapshot is what a reading list renders.
type Snapshot struct {
	State ViewState
	Page  Page
	// Visible is Page.Records after the search post-filter.
	Visible []types.Reading
}

// Browser owns a ViewState and applies fetch results in request order.
// Dispatch may be called concurrently; only the latest fetch is applied.
type Browser struct {
	paginator     Paginator
	composer      Composer
	withCollector bool
	seq           Sequencer

	mu   sync.Mutex
	snap Snapshot
}

func NewBrowser(paginator Paginator, composer Composer, withCollector bool) *Browser {
	return &Browser{
		paginator:     paginator,
		composer:      composer,
		withCollector: withCollector,
		snap:          Snapshot{State: NewViewState()},
	}
}

func (b *Browser) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// Refresh re-fetches the current state.
func (b *Browser) Refresh(ctx context.Context) (Snapshot, error) {
	return b.Dispatch(ctx, nil)
}

// Dispatch applies e to the view state and fetches the resulting page.
// A failed fetch leaves an empty page and returns the error.
func (b *Browser) Dispatch(ctx context.Context, e Event) (Snapshot, error) {
	b.mu.Lock()
	state := b.snap.State.Apply(e)
	b.snap.State = state
	token := b.seq.Next()
	b.mu.Unlock()

	page, err := b.paginator.Fetch(ctx, b.composer.Readings(state.Filter()), state.Page)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.seq.IsLatest(token) {
		return b.snap, ErrStale
	}
	if err != nil {
		b.snap.Page = Page{Page: state.Page, PageSize: b.paginator.size()}
		b.snap.Visible = nil
		return b.snap, err
	}
	b.snap.State.TotalPages = page.TotalPages
	b.snap.State.Page = page.Page
	b.snap.Page = page
	b.snap.Visible = SearchReadings(page.Records, state.Search, b.withCollector)
	return b.snap, nil
}
