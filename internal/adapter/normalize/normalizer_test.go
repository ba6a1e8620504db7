package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/V4T54L/statusboard/internal/domain"
)

func fixedNormalizer() *Normalizer {
	return &Normalizer{now: func() time.Time {
		return time.Date(2024, 11, 5, 15, 7, 45, 0, time.UTC)
	}}
}

func TestNormalizer_Decode(t *testing.T) {
	n := fixedNormalizer()

	tests := []struct {
		name      string
		input     string
		expected  domain.Event
		expectErr bool
	}{
		{
			name:  "Canonical fields",
			input: `{"time":"2024-11-05T10:00:00Z","job_id":"j1","content_id":"c1","content_type":"Audio","file_name":"a.mp3","status":"Queued","message":"hi"}`,
			expected: domain.Event{
				Time: "2024-11-05T10:00:00Z", JobID: "j1", ContentID: "c1", ContentType: "Audio",
				FileName: "a.mp3", Status: "Queued", Message: "hi",
			},
		},
		{
			name:  "Legacy picture record",
			input: `{"ID":"job-9","PictureID":"pic-1","FileName":"x.png","Status":"Failed","Message":"boom"}`,
			expected: domain.Event{
				Time: "11/5/2024, 3:07:45 PM", JobID: "job-9", ContentID: "pic-1", ContentType: "Picture",
				FileName: "x.png", Status: "Failed", Message: "boom",
			},
		},
		{
			name:  "Status feed record",
			input: `{"JobID":"0.42","contentID":"doc-3","Status":"Processed","time":"11/05/2024, 03:07:45 PM","message":"Status update for content doc-3"}`,
			expected: domain.Event{
				Time: "11/05/2024, 03:07:45 PM", JobID: "0.42", ContentID: "doc-3", ContentType: DefaultContentType,
				FileName: DefaultFileName, Status: "Processed", Message: "Status update for content doc-3",
			},
		},
		{
			name:  "Empty object gets defaults",
			input: `{}`,
			expected: domain.Event{
				Time: "11/5/2024, 3:07:45 PM", JobID: DefaultJobID, ContentID: DefaultContentID, ContentType: DefaultContentType,
				FileName: DefaultFileName, Status: DefaultStatus, Message: DefaultMessage,
			},
		},
		{
			name:  "Numeric values are stringified",
			input: `{"job_id":42,"content_id":true,"status":"Queued"}`,
			expected: domain.Event{
				Time: "11/5/2024, 3:07:45 PM", JobID: "42", ContentID: "true", ContentType: DefaultContentType,
				FileName: DefaultFileName, Status: "Queued", Message: DefaultMessage,
			},
		},
		{name: "Array payload", input: `[1,2,3]`, expectErr: true},
		{name: "String payload", input: `"hello"`, expectErr: true},
		{name: "Null payload", input: `null`, expectErr: true},
		{name: "Broken JSON", input: `{"job_id":`, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Decode([]byte(tt.input))
			if tt.expectErr {
				if !errors.Is(err, domain.ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.expected {
				t.Errorf("unexpected event:\n got %+v\nwant %+v", got, tt.expected)
			}
		})
	}
}
