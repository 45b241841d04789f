package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// AttachmentRef points at a stored upload. ProjectIndex is -1 for the
// reference resume.
type AttachmentRef struct {
	ProjectIndex int    `json:"project_index"`
	Name         string `json:"name"`
	MIMEType     string `json:"mime_type"`
	StorageKey   string `json:"storage_key"`
}

type GenerationJob struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	SessionID    string    `gorm:"type:text;index" json:"session_id"`
	Status       JobStatus `gorm:"not null;default:'queued'" json:"status"`
	Bundle       string    `gorm:"type:jsonb;not null" json:"-"`
	Attachments  string    `gorm:"type:jsonb;not null" json:"-"`
	Result       *string   `gorm:"type:jsonb" json:"-"`
	Attempts     int       `gorm:"not null;default:0" json:"attempts"`
	ErrorKind    *string   `gorm:"type:text" json:"error_kind,omitempty"`
	ErrorMessage *string   `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}
