package docs

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusError      Status = "error"
	StatusDeleted    Status = "deleted"
)

type Document struct {
	ID   string `gorm:"primaryKey;size:26" json:"id"` // ULID length
	Name string `gorm:"size:255;not null" json:"name"`
	Path string `gorm:"size:512;not null" json:"-"` // blob locator under the upload root
	Size int64  `gorm:"not null" json:"size"`

	MimeType  string  `gorm:"size:128" json:"mime_type"`
	Extension string  `gorm:"size:16" json:"extension"`
	Hash      *string `gorm:"size:64;index:idx_files_owner_hash,priority:2" json:"-"`

	OwnerID string `gorm:"size:64;not null;index;index:idx_files_owner_hash,priority:1" json:"-"`

	Status       Status  `gorm:"type:varchar(16);index;not null" json:"status"`
	ChunkCount   *int    `json:"chunk_count"`
	Collection   *string `gorm:"size:128" json:"collection"`
	ErrorMessage *string `gorm:"type:text" json:"error_message"`

	EmbeddingModel *string    `gorm:"size:128" json:"embedding_model"`
	ProcessedAt    *time.Time `json:"processed_at"`

	JobID *string `gorm:"size:26;index" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Document) TableName() string { return "files" }

type ChatMessage struct {
	ID      string `gorm:"primaryKey;size:26" json:"id"`
	OwnerID string `gorm:"size:64;index;not null" json:"-"`
	Role    string `gorm:"type:varchar(16);not null" json:"role"`
	Content string `gorm:"type:text;not null" json:"content"`

	// JSON-encoded ordered list of document ids used as grounding context.
	ContextFileIDs string `gorm:"type:text" json:"context_file_ids"`

	ParentMessageID *string   `gorm:"size:26" json:"parent_message_id"`
	CreatedAt       time.Time `json:"created_at"`
}

func (ChatMessage) TableName() string { return "messages" }
