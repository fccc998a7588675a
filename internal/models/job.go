package models

// JobStatus represents the status of a parse job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusFiltering JobStatus = "filtering"
	JobStatusParsing   JobStatus = "parsing"
	JobStatusComplete  JobStatus = "complete"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusError     JobStatus = "error"
)

// ParseJob tracks one running or finished parse of an uploaded archive.
type ParseJob struct {
	ID               string       `json:"id"`
	FileID           string       `json:"fileId"`
	Mode             string       `json:"mode"`
	Status           JobStatus    `json:"status"`
	Progress         float64      `json:"progress"` // 0-100
	LineCount        int          `json:"lineCount,omitempty"`
	RecordCount      int          `json:"recordCount,omitempty"`
	ProcessingTimeMs int64        `json:"processingTimeMs,omitempty"`
	Error            string       `json:"error,omitempty"`
	ParseErrors      []ParseError `json:"parseErrors,omitempty"`
}

// NewParseJob creates a new ParseJob in pending status.
func NewParseJob(id, fileID, mode string) *ParseJob {
	return &ParseJob{
		ID:       id,
		FileID:   fileID,
		Mode:     mode,
		Status:   JobStatusPending,
		Progress: 0,
	}
}
