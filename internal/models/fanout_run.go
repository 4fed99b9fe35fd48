package models

import (
	"time"

	"github.com/google/uuid"
)

type FanoutRunStatus string

const (
	FanoutRunPending  FanoutRunStatus = "pending"
	FanoutRunComplete FanoutRunStatus = "complete"
	FanoutRunPartial  FanoutRunStatus = "partial"
	FanoutRunLost     FanoutRunStatus = "lost"
	// FanoutRunSkipped marks runs whose report was gone or no longer
	// approved when the run was resumed.
	FanoutRunSkipped FanoutRunStatus = "skipped"
)

// FanoutRun is the durable record that an approval owes a broadcast. It is
// written in the approval transaction and stays pending until a fan-out
// run finishes, so a broadcast interrupted by a restart is resumed instead
// of lost.
type FanoutRun struct {
	ReportID  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"report_id"`
	Status    FanoutRunStatus `gorm:"size:20;not null;default:'pending';index:idx_fanout_runs_status_updated,priority:1" json:"status"`
	Attempts  int             `gorm:"not null;default:0" json:"attempts"`
	LastError string          `gorm:"type:text" json:"last_error"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `gorm:"index:idx_fanout_runs_status_updated,priority:2" json:"updated_at"`
}

func (FanoutRun) TableName() string {
	return "fanout_runs"
}
