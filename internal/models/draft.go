package models

import "time"

// Draft holds the wizard's form state for one browser session. File blobs
// are never part of it.
type Draft struct {
	SessionID string    `gorm:"type:text;primaryKey" json:"session_id"`
	Data      string    `gorm:"type:jsonb;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (Draft) TableName() string {
	return "drafts"
}
