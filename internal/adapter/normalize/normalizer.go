// Package normalize turns producer records into canonical events.
//
// Producers send either the canonical snake_case attributes or the legacy
// keys of the processing pipeline (ID, DocumentId, PictureID, ...). Both are
// accepted; canonical keys win when both are present.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/V4T54L/statusboard/internal/domain"
)

// TimeLayout is the 12-hour layout producers and the server use for Event.Time.
const TimeLayout = "1/2/2006, 3:04:05 PM"

const (
	DefaultJobID       = "Unknown JobID"
	DefaultContentID   = "Unknown ContentID"
	DefaultContentType = "Unknown Type"
	DefaultFileName    = "Unknown File"
	DefaultStatus      = "Processed"
	DefaultMessage     = "No additional information"
)

// contentKeys lists legacy per-type id keys, checked in order.
var contentKeys = []struct {
	key         string
	contentType string
}{
	{"DocumentId", domain.ContentDocument},
	{"PictureID", domain.ContentPicture},
	{"AudioID", domain.ContentAudio},
	{"VideoID", domain.ContentVideo},
}

// Normalizer maps raw records onto domain.Event.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer stamping missing times with the wall clock.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Decode parses raw as a JSON object and normalizes it. Anything that is not
// an object wraps domain.ErrMalformed.
func (n *Normalizer) Decode(raw []byte) (domain.Event, error) {
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	if record == nil {
		return domain.Event{}, fmt.Errorf("%w: payload is not an object", domain.ErrMalformed)
	}
	return n.Normalize(record), nil
}

// Normalize builds an event from an already decoded record.
func (n *Normalizer) Normalize(record map[string]any) domain.Event {
	event := domain.Event{
		Time:      first(record, "time", "Time"),
		JobID:     first(record, "job_id", "JobID", "ID"),
		FileName:  first(record, "file_name", "FileName"),
		Status:    first(record, "status", "Status"),
		Message:   first(record, "message", "Message"),
		ContentID: first(record, "content_id", "contentID"),
	}
	event.ContentType = first(record, "content_type", "ContentType")

	for _, ck := range contentKeys {
		id := str(record[ck.key])
		if id == "" {
			continue
		}
		if event.ContentID == "" {
			event.ContentID = id
		}
		if event.ContentType == "" {
			event.ContentType = ck.contentType
		}
		break
	}

	if event.Time == "" {
		event.Time = n.now().Format(TimeLayout)
	}
	event.JobID = orDefault(event.JobID, DefaultJobID)
	event.ContentID = orDefault(event.ContentID, DefaultContentID)
	event.ContentType = orDefault(event.ContentType, DefaultContentType)
	event.FileName = orDefault(event.FileName, DefaultFileName)
	event.Status = orDefault(event.Status, DefaultStatus)
	event.Message = orDefault(event.Message, DefaultMessage)
	return event
}

func first(record map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := str(record[k]); v != "" {
			return v
		}
	}
	return ""
}

// str renders scalar values; objects and arrays are kept as compact JSON.
func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
