package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationReportApproved  NotificationType = "report_approved"
	NotificationReportRejected  NotificationType = "report_rejected"
	NotificationReportBroadcast NotificationType = "report_approved_broadcast"
	NotificationOther           NotificationType = "other"
)

type Notification struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	Type      NotificationType `gorm:"size:40;not null" json:"type"`
	Title     string           `gorm:"size:255;not null" json:"title"`
	Message   string           `gorm:"type:text" json:"message"`
	Points    int              `gorm:"not null;default:0" json:"points"`
	Read      bool             `gorm:"not null;default:false;index" json:"read"`
	ReadAt    *time.Time       `json:"read_at"`
	CreatedAt time.Time        `gorm:"index:idx_notifications_user_created,priority:2" json:"created_at"`
	ReportID  *uuid.UUID       `gorm:"type:uuid;index" json:"report_id"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
