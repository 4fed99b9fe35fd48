package dto

import (
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/scoring"
)

type CreateReportRequest struct {
	RumorURL    string `json:"rumor_url" form:"rumor_url" validate:"required,max=2048,rumorurl"`
	Description string `json:"description" form:"description" validate:"required,min=10,max=5000"`
}

type ReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Notes    string `json:"notes" validate:"max=2000"`
}

type AdminNotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type ReviewResponse struct {
	Report        *models.Report `json:"report"`
	PointsAwarded int            `json:"points_awarded"`
	Rank          *int           `json:"rank,omitempty"`
}

type ReviewPreviewResponse struct {
	ReportID         string              `json:"report_id"`
	Status           models.ReportStatus `json:"status"`
	Rank             int                 `json:"rank"`
	Points           int                 `json:"points"`
	CompetingReports int                 `json:"competing_reports"`
	Config           scoring.Config      `json:"config"`
}

type ReportListResponse struct {
	Reports []models.Report `json:"reports"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}
