package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	AdminRoleAdmin     = "admin"
	AdminRoleModerator = "moderator"
)

// Admin grants review rights to a user. Rows are managed out of band
// (rumorctl admins grant) and only read by the API.
type Admin struct {
	UserID      uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"user_id"`
	Email       string                      `gorm:"size:255;index" json:"email"`
	Role        string                      `gorm:"size:20;not null;default:'admin'" json:"role"`
	Permissions datatypes.JSONSlice[string] `json:"permissions"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

func (Admin) TableName() string {
	return "admins"
}
