package projection

import (
	"fmt"
	"slices"
	"strings"

	"github.com/V4T54L/statusboard/internal/domain"
)

// GroupKey selects the field events are grouped by.
type GroupKey string

const (
	GroupNone      GroupKey = "none"
	GroupByJob     GroupKey = "job"
	GroupByContent GroupKey = "content"
)

// ParseGroupKey accepts the GroupKey names plus the event field names.
func ParseGroupKey(s string) (GroupKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return GroupNone, nil
	case "job", "job_id":
		return GroupByJob, nil
	case "content", "content_id":
		return GroupByContent, nil
	default:
		return "", fmt.Errorf("unknown group key %q", s)
	}
}

// Group is one row of a view: a single event when ungrouped, otherwise every
// event sharing the key. Events keep mirror order.
type Group struct {
	Key    string
	Events []domain.Event
	Latest Timestamp
}

// Len returns the number of events in the group.
func (g Group) Len() int { return len(g.Events) }

// Head returns the group's first event in mirror order.
func (g Group) Head() domain.Event { return g.Events[0] }

func keyOf(e domain.Event, key GroupKey) string {
	switch key {
	case GroupByJob:
		return e.JobID
	case GroupByContent:
		return e.ContentID
	default:
		return e.ID
	}
}

// GroupEvents partitions events by key and orders the groups by their latest
// parsed time, newest first. Keyed groups with equal times are ordered by
// key; ungrouped rows with equal times keep mirror order. Every event lands
// in exactly one group.
func GroupEvents(events []domain.Event, key GroupKey) []Group {
	if key != GroupByJob && key != GroupByContent {
		groups := make([]Group, len(events))
		for i, e := range events {
			groups[i] = Group{Key: e.ID, Events: events[i : i+1 : i+1], Latest: ParseTimestamp(e.Time)}
		}
		slices.SortStableFunc(groups, func(a, b Group) int {
			return b.Latest.SortKey().Compare(a.Latest.SortKey())
		})
		return groups
	}

	index := make(map[string]int)
	var groups []Group
	for _, e := range events {
		k := keyOf(e, key)
		ts := ParseTimestamp(e.Time)
		i, ok := index[k]
		if !ok {
			index[k] = len(groups)
			groups = append(groups, Group{Key: k, Events: []domain.Event{e}, Latest: ts})
			continue
		}
		g := &groups[i]
		g.Events = append(g.Events, e)
		if ts.After(g.Latest) || (!g.Latest.Valid() && ts.Valid()) {
			g.Latest = ts
		}
	}

	slices.SortFunc(groups, func(a, b Group) int {
		if c := b.Latest.SortKey().Compare(a.Latest.SortKey()); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return groups
}
