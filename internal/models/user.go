package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User holds identity plus the cumulative points credited by approvals.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"size:255;index" json:"email"`
	Name         string    `gorm:"size:255" json:"name"`
	Password     string    `gorm:"size:255" json:"-"`
	TotalPoints  int       `gorm:"not null;default:0;index" json:"total_points"`
	TotalReports int       `gorm:"not null;default:0" json:"total_reports"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.LastActive.IsZero() {
		u.LastActive = time.Now().UTC()
	}
	return nil
}
