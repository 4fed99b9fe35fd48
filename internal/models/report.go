package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportApproved ReportStatus = "approved"
	ReportRejected ReportStatus = "rejected"
)

// Terminal reports accept no further review.
func (s ReportStatus) Terminal() bool {
	return s == ReportApproved || s == ReportRejected
}

// Report is a user submission about a suspected false claim.
type Report struct {
	ID               uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	RumorURL         string       `gorm:"size:2048;not null;index:idx_reports_rumor_created,priority:1" json:"rumor_url"`
	Description      string       `gorm:"type:text;not null" json:"description"`
	ImageURL         *string      `gorm:"size:2048" json:"image_url"`
	SubmittedBy      uuid.UUID    `gorm:"type:uuid;not null;index" json:"submitted_by"`
	SubmittedByEmail string       `gorm:"size:255" json:"submitted_by_email"`
	SubmittedByName  string       `gorm:"size:255" json:"submitted_by_name"`
	Status           ReportStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	CreatedAt        time.Time    `gorm:"index:idx_reports_rumor_created,priority:2" json:"created_at"`
	ReviewedAt       *time.Time   `json:"reviewed_at"`
	ReviewedBy       *string      `gorm:"size:255" json:"reviewed_by"`
	AdminNotes       *string      `gorm:"type:text" json:"admin_notes"`
	PointsAwarded    *int         `json:"points_awarded"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (Report) TableName() string {
	return "reports"
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = ReportPending
	}
	return nil
}
