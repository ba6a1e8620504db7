package projection

import "github.com/V4T54L/statusboard/internal/domain"

// DefaultPageSize is used when a non-positive page size is requested.
const DefaultPageSize = 10

// ViewState holds the parameters selected by the viewer. Changing the
// search term, the content-type filter or the page size returns to page 1.
type ViewState struct {
	search      string
	contentType string
	groupBy     GroupKey
	page        int
	pageSize    int
}

// NewViewState returns an ungrouped, unfiltered state on page 1.
func NewViewState(pageSize int) ViewState {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return ViewState{groupBy: GroupNone, page: 1, pageSize: pageSize}
}

func (s ViewState) Search() string      { return s.search }
func (s ViewState) ContentType() string { return s.contentType }
func (s ViewState) GroupBy() GroupKey   { return s.groupBy }
func (s ViewState) Page() int           { return max(s.page, 1) }
func (s ViewState) PageSize() int {
	if s.pageSize <= 0 {
		return DefaultPageSize
	}
	return s.pageSize
}

func (s *ViewState) SetSearch(term string) {
	s.search = term
	s.page = 1
}

func (s *ViewState) SetContentType(ct string) {
	s.contentType = ct
	s.page = 1
}

func (s *ViewState) SetPageSize(n int) {
	if n <= 0 {
		n = DefaultPageSize
	}
	s.pageSize = n
	s.page = 1
}

// SetGroupBy changes the grouping. The page is kept; Project, Clamp, Next
// and Prev bring it back in range.
func (s *ViewState) SetGroupBy(key GroupKey) {
	s.groupBy = key
}

// Clamp moves the page onto the last of totalPages when it lies beyond it.
func (s *ViewState) Clamp(totalPages int) {
	s.page = min(s.Page(), max(totalPages, 1))
}

// Next advances one page unless already on the last of totalPages.
func (s *ViewState) Next(totalPages int) {
	s.Clamp(totalPages)
	if s.page < totalPages {
		s.page++
	}
}

// Prev goes back one page unless already on page 1. The page is first
// clamped to totalPages, so going back from a page that shrank out of range
// lands on the page before the last one shown.
func (s *ViewState) Prev(totalPages int) {
	s.Clamp(totalPages)
	if s.page > 1 {
		s.page--
	}
}

// View is one computed page.
type View struct {
	Rows       []Group
	Page       int
	TotalPages int
	Matched    int // rows across all pages
	Total      int // events in the mirror
}

// Project filters, groups and paginates events. The content-type filter
// applies to events, the search term to whole rows.
func Project(events []domain.Event, state ViewState) View {
	groups := GroupEvents(FilterContentType(events, state.contentType), state.groupBy)
	groups = FilterGroups(groups, state.search)

	size := state.PageSize()
	total := TotalPages(len(groups), size)
	page := min(state.Page(), total)

	start := min((page-1)*size, len(groups))
	end := min(start+size, len(groups))
	return View{
		Rows:       groups[start:end],
		Page:       page,
		TotalPages: total,
		Matched:    len(groups),
		Total:      len(events),
	}
}

// TotalPages returns the number of pages needed for n rows; never less than 1.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return max(1, (n+pageSize-1)/pageSize)
}
