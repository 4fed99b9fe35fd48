package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LedgerReason string

const LedgerReportApproved LedgerReason = "report_approved"

// PointsLedgerEntry is an append-only record of a points award. The unique
// index on ReportID allows one entry per approved report.
type PointsLedgerEntry struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
	ReportID  uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex" json:"report_id"`
	RumorURL  *string      `gorm:"size:2048" json:"rumor_url"`
	Points    int          `gorm:"not null" json:"points"`
	Reason    LedgerReason `gorm:"size:50;not null" json:"reason"`
	CreatedAt time.Time    `json:"created_at"`
}

func (PointsLedgerEntry) TableName() string {
	return "points_ledger"
}

func (e *PointsLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate keeps ledger rows immutable.
func (e *PointsLedgerEntry) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerImmutable
}
