package query

import (
	"strings"
	"time"
)

// ViewState is everything a reading list remembers between interactions.
// It only changes through Apply.
type ViewState struct {
	StationID string
	Search    string
	From      *time.Time
	To        *time.Time
	Page      int
	// TotalPages is taken from the last applied fetch and bounds navigation.
	TotalPages int
}

func NewViewState() ViewState {
	return ViewState{Page: 1}
}

func (s ViewState) Filter() Filter {
	return Filter{StationID: s.StationID, Search: s.Search, From: s.From, To: s.To}
}

// Event is a discrete user input that moves a ViewState forward.
type Event interface {
	apply(ViewState) ViewState
}

type SelectStation struct{ StationID string }

type SetSearch struct{ Text string }

type SetDateRange struct{ From, To *time.Time }

type GoToPage struct{ Page int }

type NextPage struct{}

type PrevPage struct{}

type ResetFilters struct{}

// Apply returns the state after e. Any filter change goes back to page 1.
func (s ViewState) Apply(e Event) ViewState {
	if e == nil {
		return s
	}
	return e.apply(s)
}

func (e SelectStation) apply(s ViewState) ViewState {
	s.StationID = strings.TrimSpace(e.StationID)
	s.Page = 1
	return s
}

func (e SetSearch) apply(s ViewState) ViewState {
	s.Search = e.Text
	s.Page = 1
	return s
}

func (e SetDateRange) apply(s ViewState) ViewState {
	s.From, s.To = e.From, e.To
	s.Page = 1
	return s
}

func (e GoToPage) apply(s ViewState) ViewState {
	if s.TotalPages <= 0 {
		s.Page = 1
		return s
	}
	s.Page = ClampPage(e.Page, s.TotalPages)
	return s
}

func (NextPage) apply(s ViewState) ViewState {
	if s.Page >= s.TotalPages {
		return s
	}
	s.Page++
	return s
}

func (PrevPage) apply(s ViewState) ViewState {
	if s.Page <= 1 {
		return s
	}
	s.Page--
	return s
}

func (ResetFilters) apply(s ViewState) ViewState {
	return ViewState{Page: 1, TotalPages: s.TotalPages}
}
