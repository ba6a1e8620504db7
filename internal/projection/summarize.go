package projection

import "github.com/V4T54L/statusboard/internal/domain"

// Summary aggregates a mirror for the analytics panel.
type Summary struct {
	Total         int
	ByStatus      map[string]int
	ByContentType map[string]int // legacy aliases folded
	Jobs          int
	Contents      int
	Latest        Timestamp
}

// Summarize recomputes the summary from events.
func Summarize(events []domain.Event) Summary {
	s := Summary{
		Total:         len(events),
		ByStatus:      make(map[string]int),
		ByContentType: make(map[string]int),
	}
	jobs := make(map[string]struct{})
	contents := make(map[string]struct{})
	for _, e := range events {
		s.ByStatus[e.Status]++
		s.ByContentType[domain.NormalizeContentType(e.ContentType)]++
		jobs[e.JobID] = struct{}{}
		contents[e.ContentID] = struct{}{}
		if ts := ParseTimestamp(e.Time); ts.Valid() && (!s.Latest.Valid() || ts.After(s.Latest)) {
			s.Latest = ts
		}
	}
	s.Jobs = len(jobs)
	s.Contents = len(contents)
	return s
}
