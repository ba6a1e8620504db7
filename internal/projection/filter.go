package projection

import (
	"strings"

	"github.com/V4T54L/statusboard/internal/domain"
)

// AllContentTypes disables the content-type filter.
const AllContentTypes = "All"

// MatchesSearch reports whether term is a case-insensitive substring of any
// producer field. An empty term matches everything.
func MatchesSearch(e domain.Event, term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range e.Fields() {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// MatchesContentType compares content types after folding legacy aliases.
// An empty filter or AllContentTypes matches everything.
func MatchesContentType(e domain.Event, filter string) bool {
	if filter == "" || strings.EqualFold(filter, AllContentTypes) {
		return true
	}
	return strings.EqualFold(domain.NormalizeContentType(e.ContentType), domain.NormalizeContentType(filter))
}

// FilterContentType returns the events whose content type matches filter.
// The input is returned as is when the filter is disabled.
func FilterContentType(events []domain.Event, filter string) []domain.Event {
	if filter == "" || strings.EqualFold(filter, AllContentTypes) {
		return events
	}
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if MatchesContentType(e, filter) {
			out = append(out, e)
		}
	}
	return out
}

// FilterGroups keeps the groups with at least one member matching term.
// Matching groups are kept whole.
func FilterGroups(groups []Group, term string) []Group {
	if strings.TrimSpace(term) == "" {
		return groups
	}
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		for _, e := range g.Events {
			if MatchesSearch(e, term) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}
