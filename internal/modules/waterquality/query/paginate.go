package query

import (
	"context"
	"fmt"
	"math"

	"khamriver-server/internal/modules/waterquality/types"
)

const (
	DefaultPageSize = 20
	windowSize      = 5
)

// Range is an inclusive row range [From, To].
type Range struct {
	From int
	To   int
}

func (r Range) Offset() int { return r.From }

func (r Range) Limit() int { return r.To - r.From + 1 }

// PageRange returns [(page-1)*size, page*size-1]. Pages below 1 are treated as
// 1 and pages whose range would overflow int are capped.
func PageRange(page, size int) Range {
	if page < 1 {
		page = 1
	}
	if size > 0 && page > math.MaxInt/size {
		page = math.MaxInt / size
	}
	return Range{From: (page - 1) * size, To: page*size - 1}
}

// TotalPages is ceil(total/size); zero records means zero pages.
func TotalPages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// ClampPage keeps page within [1, totalPages]. With no pages it returns 1.
func ClampPage(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// PageWindow returns up to five contiguous page numbers to show as buttons,
// keeping current centered except near either end.
func PageWindow(current, totalPages int) []int {
	if totalPages <= 0 {
		return nil
	}
	current = ClampPage(current, totalPages)

	start, end := 1, totalPages
	if totalPages > windowSize {
		switch {
		case current <= 3:
			start, end = 1, windowSize
		case current >= totalPages-2:
			start, end = totalPages-windowSize+1, totalPages
		default:
			start, end = current-2, current+2
		}
	}

	out := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		out = append(out, p)
	}
	return out
}

// Page is one fetched page plus everything needed to render its navigation.
type Page struct {
	Records    []types.Reading `json:"records"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
	Window     []int           `json:"window"`
	// First and Last are the 1-based positions shown as "showing First to Last of Total".
	First int `json:"first"`
	Last  int `json:"last"`
}

func (p Page) HasPrev() bool { return p.Page > 1 }

func (p Page) HasNext() bool { return p.Page < p.TotalPages }

// ReadingStore is the part of the record store the paginator needs.
type ReadingStore interface {
	CountReadings(ctx context.Context, q ReadingQuery) (int, error)
	ListReadings(ctx context.Context, q ReadingQuery, r Range) ([]types.Reading, error)
}

type Paginator struct {
	Store    ReadingStore
	PageSize int
}

func (p Paginator) size() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	return p.PageSize
}

// Fetch issues one count and one range query with the same descriptor. The
// count runs first so page can be clamped to [1, TotalPages] before the range
// is computed.
func (p Paginator) Fetch(ctx context.Context, q ReadingQuery, page int) (Page, error) {
	size := p.size()

	total, err := p.Store.CountReadings(ctx, q)
	if err != nil {
		return Page{}, fmt.Errorf("count readings: %w", err)
	}
	totalPages := TotalPages(total, size)
	page = ClampPage(page, totalPages)

	rng := PageRange(page, size)
	records, err := p.Store.ListReadings(ctx, q, rng)
	if err != nil {
		return Page{}, fmt.Errorf("list readings: %w", err)
	}
	if len(records) > size {
		records = records[:size]
	}

	out := Page{
		Records:    records,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
		Window:     PageWindow(page, totalPages),
	}
	if total > 0 && rng.From < total {
		out.First = rng.From + 1
		out.Last = min(rng.To+1, total)
	}
	return out, nil
}
