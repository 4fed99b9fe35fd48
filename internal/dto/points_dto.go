package dto

import (
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/google/uuid"
)

type LeaderboardEntry struct {
	Rank         int       `json:"rank"`
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	TotalPoints  int       `json:"total_points"`
	TotalReports int       `json:"total_reports"`
}

type LedgerResponse struct {
	Entries []models.PointsLedgerEntry `json:"entries"`
	Total   int64                      `json:"total"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
}
