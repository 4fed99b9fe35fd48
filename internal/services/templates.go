package services

import (
	"fmt"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/google/uuid"
)

func approvedNotification(r *models.Report, points int) models.Notification {
	id := r.ID
	return models.Notification{
		UserID:   r.SubmittedBy,
		Type:     models.NotificationReportApproved,
		Title:    "Report approved",
		Message:  fmt.Sprintf("Your report on %s was approved. You earned %d points.", r.RumorURL, points),
		Points:   points,
		ReportID: &id,
	}
}

func rejectedNotification(r *models.Report, notes string) models.Notification {
	id := r.ID
	msg := fmt.Sprintf("Your report on %s was reviewed and not approved.", r.RumorURL)
	if notes != "" {
		msg += " Reviewer note: " + notes
	}
	return models.Notification{
		UserID:   r.SubmittedBy,
		Type:     models.NotificationReportRejected,
		Title:    "Report not approved",
		Message:  msg,
		ReportID: &id,
	}
}

func broadcastNotification(r *models.Report, recipient uuid.UUID) models.Notification {
	id := r.ID
	return models.Notification{
		UserID:   recipient,
		Type:     models.NotificationReportBroadcast,
		Title:    "Rumor flagged",
		Message:  fmt.Sprintf("A report on %s was verified by moderators. Be careful sharing it.", r.RumorURL),
		ReportID: &id,
	}
}
