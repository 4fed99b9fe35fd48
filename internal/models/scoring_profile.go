package models

import (
	"time"

	"gorm.io/datatypes"
)

// CurrentScoringProfile is the reserved profile name consulted at approval time.
const CurrentScoringProfile = "current"

// ScoringProfile stores a named points schedule. Tiers[i] is awarded to the
// report ranked i among reports sharing a rumor URL.
type ScoringProfile struct {
	Name          string                   `gorm:"size:100;primaryKey" json:"name"`
	Tiers         datatypes.JSONSlice[int] `gorm:"not null" json:"tiers"`
	DefaultPoints int                      `gorm:"not null" json:"default_points"`
	Version       int                      `gorm:"not null;default:1" json:"version"`
	UpdatedBy     string                   `gorm:"size:255" json:"updated_by"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

func (ScoringProfile) TableName() string {
	return "scoring"
}
