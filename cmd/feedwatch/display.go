package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/V4T54L/statusboard/internal/domain"
	"github.com/V4T54L/statusboard/internal/observer"
	"github.com/V4T54L/statusboard/internal/projection"
)

// display renders the mirror as a paginated table and applies viewer
// commands read from stdin.
type display struct {
	out io.Writer

	mu        sync.Mutex
	view      projection.ViewState
	mirror    []domain.Event
	state     observer.State
	stats     map[string]float64
	analytics bool
}

func newDisplay(out io.Writer, view projection.ViewState) *display {
	return &display{out: out, view: view}
}

func (d *display) SetMirror(mirror []domain.Event) {
	d.mu.Lock()
	d.mirror = mirror
	d.mu.Unlock()
	d.Render()
}

func (d *display) SetState(s observer.State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.Render()
}

func (d *display) SetStats(stats map[string]float64) {
	d.mu.Lock()
	d.stats = stats
	d.mu.Unlock()
	d.Render()
}

// errQuit is returned by Apply for the quit command.
var errQuit = errors.New("quit")

// Apply executes one command line. It reports whether the analytics panel
// was toggled, so the caller can start or stop polling.
//
//	n / p            next or previous page
//	s <term>         search, empty clears
//	c <type>         content-type filter, empty or All clears
//	g none|job|content
//	z <size>         page size
//	a                toggle analytics
//	q                quit
func (d *display) Apply(line string) (toggled bool, err error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	d.mu.Lock()
	switch cmd {
	case "":
	case "n":
		d.view.Next(projection.Project(d.mirror, d.view).TotalPages)
	case "p":
		d.view.Prev(projection.Project(d.mirror, d.view).TotalPages)
	case "s":
		d.view.SetSearch(arg)
	case "c":
		d.view.SetContentType(arg)
	case "g":
		key, perr := projection.ParseGroupKey(arg)
		if perr != nil {
			err = perr
			break
		}
		d.view.SetGroupBy(key)
	case "z":
		n, perr := strconv.Atoi(arg)
		if perr != nil || n <= 0 {
			err = fmt.Errorf("invalid page size %q", arg)
			break
		}
		d.view.SetPageSize(n)
	case "a":
		d.analytics = !d.analytics
		if !d.analytics {
			d.stats = nil
		}
		toggled = true
	case "q":
		err = errQuit
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	d.mu.Unlock()

	if err == nil {
		d.Render()
	}
	return toggled, err
}

// AnalyticsShown reports whether the analytics panel is open.
func (d *display) AnalyticsShown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.analytics
}

func (d *display) Render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := projection.Project(d.mirror, d.view)

	fmt.Fprintf(d.out, "\n[%s] page %d/%d  rows %d  events %d", d.state, v.Page, v.TotalPages, v.Matched, v.Total)
	if d.view.Search() != "" {
		fmt.Fprintf(d.out, "  search %q", d.view.Search())
	}
	if ct := d.view.ContentType(); ct != "" && ct != projection.AllContentTypes {
		fmt.Fprintf(d.out, "  type %s", ct)
	}
	if d.view.GroupBy() != projection.GroupNone {
		fmt.Fprintf(d.out, "  grouped by %s", d.view.GroupBy())
	}
	fmt.Fprintln(d.out)
	if d.state != observer.StateSynced {
		fmt.Fprintln(d.out, "  not connected, showing last known events")
	}

	tw := tabwriter.NewWriter(d.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tJOB\tCONTENT\tTYPE\tFILE\tSTATUS\tMESSAGE\tCOUNT")
	for _, row := range v.Rows {
		e := row.Head()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			projection.ParseTimestamp(e.Time).Display(),
			projection.Abbreviate(e.JobID),
			projection.Abbreviate(e.ContentID),
			domain.NormalizeContentType(e.ContentType),
			e.FileName,
			e.Status,
			e.Message,
			row.Len(),
		)
	}
	tw.Flush()

	if d.analytics {
		d.renderAnalytics()
	}
}

func (d *display) renderAnalytics() {
	s := projection.Summarize(d.mirror)
	fmt.Fprintf(d.out, "analytics: %d events, %d jobs, %d contents, latest %s\n",
		s.Total, s.Jobs, s.Contents, s.Latest.Display())
	fmt.Fprintf(d.out, "  by status: %s\n", formatCounts(s.ByStatus))
	fmt.Fprintf(d.out, "  by type:   %s\n", formatCounts(s.ByContentType))
	if d.stats == nil {
		fmt.Fprintln(d.out, "  server: waiting for stats")
		return
	}
	keys := make([]string, 0, len(d.stats))
	for k := range d.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, d.stats[k])
	}
	fmt.Fprintf(d.out, "  server: %s\n", strings.Join(parts, " "))
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}
