// Package journal implements domain.EventStore as JSON-lines segment files.
//
// Segments are named by creation time and only ever appended to. On open the
// segments are replayed oldest first to rebuild the in-memory recency window.
// When the segments outgrow the total size cap, the oldest closed segments
// are deleted.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/statusboard/internal/domain"
)

const (
	segmentPrefix = "segment-"
	segmentSuffix = ".jsonl"
	filePerm      = 0644
)

// Repository appends events to the current segment and serves Recent from a
// bounded window of the newest events.
type Repository struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	window         int
	logger         *slog.Logger
	now            func() time.Time

	mu             sync.Mutex
	currentSegment *os.File
	currentSize    int64
	recent         []domain.Event // oldest first, at most window entries
}

// NewRepository opens or creates the journal in dir. window bounds how many
// events Recent can return; a non-positive maxTotalSize keeps every segment.
func NewRepository(dir string, maxSegmentSize, maxTotalSize int64, window int, logger *slog.Logger) (*Repository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
	}
	if window <= 0 {
		window = 1
	}

	j := &Repository{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		window:         window,
		logger:         logger.With("component", "journal_repository"),
		now:            time.Now,
	}

	err := j.Replay(context.Background(), func(event domain.Event) error {
		j.remember(event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := j.openLatestSegment(); err != nil {
		return nil, err
	}
	if err := j.enforceRetention(); err != nil {
		j.logger.Error("Failed to apply journal retention", "error", err)
	}
	return j, nil
}

func (j *Repository) Append(ctx context.Context, event domain.Event) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	event.ID = uuid.NewString()
	event.ReceivedAt = j.now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%w: failed to marshal event for journal: %v", domain.ErrPersist, err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.currentSegment == nil {
		if err := j.rotate(); err != nil {
			return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrPersist, err)
		}
	}

	n, err := j.currentSegment.Write(data)
	j.currentSize += int64(n)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%w: failed to write journal segment: %v", domain.ErrPersist, err)
	}
	j.remember(event)

	if j.currentSize >= j.maxSegmentSize {
		if err := j.rotate(); err != nil {
			j.logger.Error("Failed to rotate journal segment", "error", err)
		} else if err := j.enforceRetention(); err != nil {
			j.logger.Error("Failed to apply journal retention", "error", err)
		}
	}
	return event, nil
}

// Recent returns up to limit events from the window, newest first.
func (j *Repository) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]domain.Event, 0, min(max(limit, 0), len(j.recent)))
	for i := len(j.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.recent[i])
	}
	return out, nil
}

// Replay reads every segment oldest first and calls handler for each event.
// Lines that do not decode are skipped.
func (j *Repository) Replay(ctx context.Context, handler func(event domain.Event) error) error {
	segments, err := j.getSortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		j.logger.Info("Journal is empty, nothing to replay")
		return nil
	}
	j.logger.Info("Starting journal replay", "segment_count", len(segments))

	for _, segmentPath := range segments {
		if err := j.replaySegment(ctx, segmentPath, handler); err != nil {
			return err
		}
	}
	j.logger.Info("Journal replay completed", "events", len(j.recent))
	return nil
}

func (j *Repository) replaySegment(ctx context.Context, path string, handler func(event domain.Event) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var event domain.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			j.logger.Warn("Failed to unmarshal event from journal, skipping", "error", err, "segment", path)
			continue
		}
		if err := handler(event); err != nil {
			return fmt.Errorf("replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// remember adds the event to the window; callers hold mu or own j exclusively.
func (j *Repository) remember(event domain.Event) {
	j.recent = append(j.recent, event)
	if len(j.recent) > 2*j.window {
		j.recent = append([]domain.Event(nil), j.recent[len(j.recent)-j.window:]...)
	}
}

func (j *Repository) rotate() error {
	if j.currentSegment != nil {
		if err := j.currentSegment.Sync(); err != nil {
			j.logger.Error("Failed to sync journal segment before rotating", "error", err)
		}
		if err := j.currentSegment.Close(); err != nil {
			j.logger.Error("Failed to close journal segment before rotating", "error", err)
		}
		j.currentSegment = nil
	}

	segmentName := fmt.Sprintf("%s%020d%s", segmentPrefix, j.now().UnixNano(), segmentSuffix)
	path := filepath.Join(j.dir, segmentName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create journal segment %s: %w", path, err)
	}

	j.currentSegment = f
	j.currentSize = 0
	j.logger.Info("Rotated to new journal segment", "path", path)
	return nil
}

func (j *Repository) openLatestSegment() error {
	segments, err := j.getSortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return j.rotate()
	}

	latest := segments[len(segments)-1]
	stat, err := os.Stat(latest)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latest, err)
	}
	if stat.Size() >= j.maxSegmentSize {
		return j.rotate()
	}

	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latest, err)
	}
	j.currentSegment = f
	j.currentSize = stat.Size()
	j.logger.Info("Opened existing journal segment", "path", latest, "size", j.currentSize)
	return nil
}

func (j *Repository) getSortedSegments() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			segments = append(segments, filepath.Join(j.dir, name))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

// enforceRetention deletes the oldest segments, never the current one, until
// the journal fits in maxTotalSize.
func (j *Repository) enforceRetention() error {
	if j.maxTotalSize <= 0 {
		return nil
	}
	segments, err := j.getSortedSegments()
	if err != nil {
		return err
	}

	sizes := make([]int64, len(segments))
	var total int64
	for i, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat segment %s: %w", path, err)
		}
		sizes[i] = info.Size()
		total += sizes[i]
	}

	current := ""
	if j.currentSegment != nil {
		current = j.currentSegment.Name()
	}
	for i, path := range segments {
		if total <= j.maxTotalSize {
			break
		}
		if path == current {
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove segment %s: %w", path, err)
		}
		total -= sizes[i]
		j.logger.Info("Removed journal segment over size limit", "path", path, "total_size", total)
	}
	return nil
}

// Close syncs and closes the current segment.
func (j *Repository) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.currentSegment == nil {
		return nil
	}
	if err := j.currentSegment.Sync(); err != nil {
		j.logger.Error("Failed to sync journal segment on close", "error", err)
	}
	err := j.currentSegment.Close()
	j.currentSegment = nil
	return err
}
