package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FanoutFailure records a broadcast recipient whose notification could not
// be written. Unresolved rows are picked up by the retry loop.
type FanoutFailure struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"report_id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Attempts   int        `gorm:"not null;default:0" json:"attempts"`
	LastError  string     `gorm:"type:text" json:"last_error"`
	ResolvedAt *time.Time `gorm:"index" json:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (FanoutFailure) TableName() string {
	return "fanout_failures"
}

func (f *FanoutFailure) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
