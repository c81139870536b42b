package calls

import (
	"encoding/json"
	"time"
)

// Call is one outbound call attempt owned by a profile.
//
// ExternalID is the provider's call id. It is set when the call is recorded and never empty
// afterwards (telephony.UnknownCallID stands in when the provider omitted it).
type Call struct {
	ID         string `json:"id"`
	ExternalID string `json:"vapiCallId"`
	Status     Status `json:"status"`

	PhoneNumber string `json:"phoneNumber"`
	AssistantID string `json:"assistantId"`

	RecordingURL string `json:"recordingUrl,omitempty"`
	Transcript   string `json:"transcript,omitempty"`
	Summary      string `json:"summary,omitempty"`

	// Metadata is the last provider document seen for this call, stored verbatim.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	ProfileID string    `json:"profileId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Refresh is the provider-derived state written back onto a stored call.
// Empty strings leave the stored value untouched.
type Refresh struct {
	Status       Status
	RecordingURL string
	Transcript   string
	Summary      string
	Metadata     json.RawMessage
}

// apply merges r into c without ever clearing a field.
func (r Refresh) apply(c *Call) {
	if r.Status != "" {
		c.Status = c.Status.advance(r.Status)
	}
	if r.RecordingURL != "" {
		c.RecordingURL = r.RecordingURL
	}
	if r.Transcript != "" {
		c.Transcript = r.Transcript
	}
	if r.Summary != "" {
		c.Summary = r.Summary
	}
	if len(r.Metadata) > 0 {
		c.Metadata = r.Metadata
	}
}

// Summary counts a profile's calls for the dashboard.
type Summary struct {
	TotalCalls      int `json:"totalCalls"`
	PendingCalls    int `json:"pendingCalls"`
	InProgressCalls int `json:"inProgressCalls"`
	CompletedCalls  int `json:"completedCalls"`
	FailedCalls     int `json:"failedCalls"`
	RecordedCalls   int `json:"recordedCalls"`
}

// StatusCount is one row of a per-status aggregate.
type StatusCount struct {
	Status   Status
	Calls    int
	Recorded int
}
