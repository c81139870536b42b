package batches

import "time"

// BatchStatus is the lifecycle of a batch upload: PENDING -> PROCESSING -> {COMPLETED, FAILED}.
type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
)

func (s BatchStatus) IsTerminal() bool { return s == BatchCompleted || s == BatchFailed }

// allowedFrom lists the statuses a batch may move to s from.
func (s BatchStatus) allowedFrom() []BatchStatus {
	switch s {
	case BatchProcessing:
		return []BatchStatus{BatchPending}
	case BatchCompleted:
		return []BatchStatus{BatchProcessing}
	case BatchFailed:
		return []BatchStatus{BatchPending, BatchProcessing}
	default:
		return nil
	}
}

// ItemStatus is the state of one phone number in a batch. SCHEDULED and FAILED are terminal.
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemScheduled ItemStatus = "SCHEDULED"
	ItemFailed    ItemStatus = "FAILED"
)

// DefaultFilename is used when a submission carries no file name.
const DefaultFilename = "batch-upload.xlsx"

type BatchUpload struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`

	TotalCalls      int `json:"totalCalls"`
	SuccessfulCalls int `json:"successfulCalls"`
	FailedCalls     int `json:"failedCalls"`

	Status      BatchStatus `json:"status"`
	AssistantID string      `json:"assistantId"`
	ProfileID   string      `json:"profileId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b BatchUpload) Counters() Counters {
	return Counters{Total: b.TotalCalls, Successful: b.SuccessfulCalls, Failed: b.FailedCalls}
}

type CallItem struct {
	ID            string `json:"id"`
	BatchUploadID string `json:"batchUploadId"`
	// Position is the zero-based creation order within the batch.
	Position    int        `json:"position"`
	PhoneNumber string     `json:"phoneNumber"`
	Status      ItemStatus `json:"status"`

	ErrorMessage string `json:"errorMessage,omitempty"`
	CallID       string `json:"callId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Counters is a consistent snapshot of a batch's progress.
type Counters struct {
	Total      int
	Successful int
	Failed     int
}

// Done reports whether every item has been counted.
func (c Counters) Done() bool { return c.Successful+c.Failed == c.Total }
