package docs

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IngestJob is the durable record of one processing request for a document.
// The broker delivers it; this row is the source of truth for attempts and
// terminal state, and survives broker restarts.
type IngestJob struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	DocumentID string `gorm:"size:26;index;not null"`
	OwnerID    string `gorm:"size:64;index;not null"`
	BlobPath   string `gorm:"size:512;not null"`

	Status      JobStatus `gorm:"type:varchar(16);index;not null"`
	Attempts    int       `gorm:"not null;default:0"`
	MaxAttempts int       `gorm:"not null"`

	// Filled when succeeded
	ChunkCount *int

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
