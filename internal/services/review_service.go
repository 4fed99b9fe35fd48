package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/realtime"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/scoring"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/triggers"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReviewInput struct {
	Decision models.ReportStatus
	Reviewer string
	Notes    string
}

type ReviewResult struct {
	Report        *models.Report
	PointsAwarded int
	// Rank is set for approvals only.
	Rank *int
}

// ReviewPreview is what an approval would award right now.
type ReviewPreview struct {
	ReportID         uuid.UUID
	Status           models.ReportStatus
	Rank             int
	Points           int
	CompetingReports int
	Config           scoring.Config
}

// ReviewService moves reports out of pending and credits submitters.
type ReviewService struct {
	db        *gorm.DB
	publisher triggers.Publisher
	hub       realtime.Hub
	metrics   *metrics.Metrics
}

func NewReviewService(db *gorm.DB, publisher triggers.Publisher, hub realtime.Hub, m *metrics.Metrics) *ReviewService {
	return &ReviewService{db: db, publisher: publisher, hub: hub, metrics: m}
}

// Review approves or rejects a pending report. The status change, the user
// credit, the ledger entry, the pending broadcast run and the submitter
// notification commit together or not at all.
func (s *ReviewService) Review(ctx context.Context, reportID uuid.UUID, in ReviewInput) (*ReviewResult, error) {
	if in.Decision != models.ReportApproved && in.Decision != models.ReportRejected {
		s.metrics.Reviews.WithLabelValues(string(in.Decision), "invalid").Inc()
		return nil, ErrInvalidDecision
	}

	var before, after models.Report
	var note models.Notification
	result := &ReviewResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&before, "id = ?", reportID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReportNotFound
			}
			return fmt.Errorf("failed to load report: %w", err)
		}
		if before.Status != models.ReportPending {
			return ErrAlreadyReviewed
		}

		updates := map[string]interface{}{
			"status":      in.Decision,
			"reviewed_at": time.Now().UTC(),
			"reviewed_by": in.Reviewer,
		}
		if in.Notes != "" {
			updates["admin_notes"] = in.Notes
		}

		points := 0
		if in.Decision == models.ReportApproved {
			rank, _, err := rankOf(tx, &before)
			if err != nil {
				return err
			}
			cfg, err := loadScoringConfig(tx)
			if err != nil {
				return err
			}
			points = scoring.PointsForRank(rank, cfg)
			updates["points_awarded"] = points
			result.Rank = &rank
		}

		res := tx.Model(&models.Report{}).
			Where("id = ? AND status = ?", reportID, models.ReportPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update report: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyReviewed
		}

		if in.Decision == models.ReportApproved {
			if err := creditUser(tx, &before, points); err != nil {
				return err
			}
			entry := models.PointsLedgerEntry{
				UserID:   before.SubmittedBy,
				ReportID: before.ID,
				Points:   points,
				Reason:   models.LedgerReportApproved,
			}
			if before.RumorURL != "" {
				url := before.RumorURL
				entry.RumorURL = &url
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("failed to write ledger entry: %w", err)
			}
			now := time.Now().UTC()
			run := models.FanoutRun{ReportID: before.ID, Status: models.FanoutRunPending, CreatedAt: now, UpdatedAt: now}
			if err := tx.Create(&run).Error; err != nil {
				return fmt.Errorf("failed to record broadcast run: %w", err)
			}
			note = approvedNotification(&before, points)
		} else {
			note = rejectedNotification(&before, in.Notes)
		}

		if err := tx.Create(&note).Error; err != nil {
			return fmt.Errorf("failed to write notification: %w", err)
		}
		if err := tx.First(&after, "id = ?", reportID).Error; err != nil {
			return fmt.Errorf("failed to reload report: %w", err)
		}
		result.PointsAwarded = points
		return nil
	})
	if err != nil {
		s.metrics.Reviews.WithLabelValues(string(in.Decision), reviewOutcome(err)).Inc()
		if !errors.Is(err, ErrAlreadyReviewed) && !errors.Is(err, ErrReportNotFound) {
			slog.Error("report review failed", "report_id", reportID.String(), "action", "review", "error", err)
		}
		return nil, err
	}

	result.Report = &after
	s.metrics.Reviews.WithLabelValues(string(in.Decision), "ok").Inc()
	s.metrics.PointsAwarded.Add(float64(result.PointsAwarded))

	attrs := []any{"report_id", after.ID.String(), "user_id", after.SubmittedBy.String(),
		"decision", string(in.Decision), "reviewed_by", in.Reviewer, "points", result.PointsAwarded}
	if result.Rank != nil {
		attrs = append(attrs, "rank", *result.Rank)
	}
	slog.Info("report reviewed", attrs...)

	s.publisher.Publish(triggers.ReportChange{Before: before, After: after})
	s.push(ctx, note)
	return result, nil
}

// Preview computes the rank and points an approval would award without
// writing anything.
func (s *ReviewService) Preview(ctx context.Context, reportID uuid.UUID) (*ReviewPreview, error) {
	db := s.db.WithContext(ctx)

	var r models.Report
	if err := db.First(&r, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	rank, competing, err := rankOf(db, &r)
	if err != nil {
		return nil, err
	}
	cfg, err := loadScoringConfig(db)
	if err != nil {
		return nil, err
	}
	return &ReviewPreview{
		ReportID:         r.ID,
		Status:           r.Status,
		Rank:             rank,
		Points:           scoring.PointsForRank(rank, cfg),
		CompetingReports: competing,
		Config:           cfg,
	}, nil
}

// UpdateAdminNotes edits the notes of a report in any state. The change is
// published like any other report write.
func (s *ReviewService) UpdateAdminNotes(ctx context.Context, reportID uuid.UUID, notes, reviewer string) (*models.Report, error) {
	var before, after models.Report
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&before, "id = ?", reportID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReportNotFound
			}
			return fmt.Errorf("failed to load report: %w", err)
		}
		if err := tx.Model(&models.Report{}).Where("id = ?", reportID).Update("admin_notes", notes).Error; err != nil {
			return fmt.Errorf("failed to update notes: %w", err)
		}
		return tx.First(&after, "id = ?", reportID).Error
	})
	if err != nil {
		return nil, err
	}

	slog.Info("admin notes updated", "report_id", reportID.String(), "reviewed_by", reviewer)
	s.publisher.Publish(triggers.ReportChange{Before: before, After: after})
	return &after, nil
}

func (s *ReviewService) push(ctx context.Context, n models.Notification) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, n); err != nil {
		slog.Warn("realtime publish failed", "user_id", n.UserID.String(), "error", err)
	}
}

// creditUser adds points to the submitter, creating the user when the
// account has never been seen before. It is a single upsert so concurrent
// approvals for a new submitter cannot both try to insert the row.
func creditUser(tx *gorm.DB, r *models.Report, points int) error {
	user := models.User{
		ID:           r.SubmittedBy,
		Email:        r.SubmittedByEmail,
		Name:         r.SubmittedByName,
		TotalPoints:  points,
		TotalReports: 1,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_points":  gorm.Expr("users.total_points + ?", points),
			"total_reports": gorm.Expr("users.total_reports + ?", 1),
			"updated_at":    time.Now().UTC(),
		}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("failed to credit user: %w", err)
	}
	return nil
}

// rankOf returns the zero-based position of r among all reports sharing its
// rumor URL, oldest first with the id breaking timestamp ties, and the
// number of such reports. Reports without a URL always rank first.
func rankOf(tx *gorm.DB, r *models.Report) (int, int, error) {
	if r.RumorURL == "" {
		return 0, 0, nil
	}
	var ids []uuid.UUID
	if err := tx.Model(&models.Report{}).
		Where("rumor_url = ?", r.RumorURL).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to rank report: %w", err)
	}
	for i, id := range ids {
		if id == r.ID {
			return i, len(ids), nil
		}
	}
	return 0, len(ids), ErrReportNotFound
}

func reviewOutcome(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyReviewed):
		return "conflict"
	case errors.Is(err, ErrReportNotFound):
		return "not_found"
	default:
		return "error"
	}
}
