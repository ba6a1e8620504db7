package domain

import "time"

// Content types carried in Event.ContentType. Any other value is allowed.
const (
	ContentDocument = "Document"
	ContentImage    = "Image"
	// ContentPicture is the legacy name producers still send for images.
	ContentPicture = "Picture"
	ContentAudio   = "Audio"
	ContentVideo   = "Video"
)

// NormalizeContentType folds legacy aliases onto their canonical name.
// Applying it more than once yields the same result as applying it once.
func NormalizeContentType(ct string) string {
	if ct == ContentPicture {
		return ContentImage
	}
	return ct
}

// Event is one immutable record of the processing log.
//
// The first seven fields are producer supplied. ID and ReceivedAt are assigned
// when the event is persisted; an Event with an empty ID has not been stored.
type Event struct {
	ID          string    `json:"id,omitempty"`
	ReceivedAt  time.Time `json:"received_at,omitempty"`
	Time        string    `json:"time"`
	JobID       string    `json:"job_id"`
	ContentID   string    `json:"content_id"`
	ContentType string    `json:"content_type"`
	FileName    string    `json:"file_name"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
}

// Persisted reports whether the event has been assigned a storage identity.
func (e Event) Persisted() bool { return e.ID != "" }

// Fields returns the string representation of every producer field, in
// column order. Search and display code iterate over this.
func (e Event) Fields() []string {
	return []string{e.Time, e.JobID, e.ContentID, e.ContentType, e.FileName, e.Status, e.Message}
}
