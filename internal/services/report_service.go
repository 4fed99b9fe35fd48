package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/objectstore"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/triggers"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// Submitter is the authenticated identity filing a report.
type Submitter struct {
	ID    uuid.UUID
	Email string
	Name  string
}

type CreateReportInput struct {
	RumorURL    string
	Description string
	// Image is optional. ImageName is only used for its extension.
	Image     io.Reader
	ImageName string
}

type ReportService struct {
	db        *gorm.DB
	store     objectstore.Store
	publisher triggers.Publisher
	metrics   *metrics.Metrics
}

func NewReportService(db *gorm.DB, store objectstore.Store, publisher triggers.Publisher, m *metrics.Metrics) *ReportService {
	return &ReportService{db: db, store: store, publisher: publisher, metrics: m}
}

// Create files a pending report, uploading the image first when one is
// attached. The submitter's user row is created on first use.
func (s *ReportService) Create(ctx context.Context, who Submitter, in CreateReportInput) (*models.Report, error) {
	in.RumorURL = strings.TrimSpace(in.RumorURL)
	in.Description = strings.TrimSpace(in.Description)
	if !validation.IsRumorURL(in.RumorURL) {
		return nil, fmt.Errorf("%w: rumor_url must be an absolute http(s) URL", ErrInvalidReport)
	}
	if in.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidReport)
	}

	report := models.Report{
		ID:               uuid.New(),
		RumorURL:         in.RumorURL,
		Description:      in.Description,
		SubmittedBy:      who.ID,
		SubmittedByEmail: who.Email,
		SubmittedByName:  who.Name,
		Status:           models.ReportPending,
	}

	var imageKey string
	if in.Image != nil {
		url, key, err := s.upload(ctx, &report, in)
		if err != nil {
			return nil, err
		}
		report.ImageURL = &url
		imageKey = key
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := models.User{}
		err := tx.Where("id = ?", who.ID).
			Attrs(models.User{ID: who.ID, Email: who.Email, Name: who.Name}).
			FirstOrCreate(&user).Error
		if err != nil {
			return fmt.Errorf("failed to load submitter: %w", err)
		}
		if err := tx.Model(&user).Update("last_active", time.Now().UTC()).Error; err != nil {
			return fmt.Errorf("failed to touch submitter: %w", err)
		}
		if err := tx.Create(&report).Error; err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		return nil
	})
	if err != nil {
		if imageKey != "" {
			if derr := s.store.Delete(context.WithoutCancel(ctx), imageKey); derr != nil {
				slog.Warn("failed to remove orphaned image", "key", imageKey, "error", derr)
			}
		}
		slog.Error("report submission failed", "user_id", who.ID.String(), "action", "create_report", "error", err)
		return nil, err
	}

	s.metrics.ReportsSubmitted.Inc()
	slog.Info("report submitted", "report_id", report.ID.String(), "user_id", who.ID.String(),
		"rumor_url", report.RumorURL, "has_image", report.ImageURL != nil)
	s.publisher.Publish(triggers.ReportChange{After: report})
	return &report, nil
}

func (s *ReportService) upload(ctx context.Context, report *models.Report, in CreateReportInput) (string, string, error) {
	if s.store == nil {
		return "", "", fmt.Errorf("%w: image uploads are disabled", ErrInvalidReport)
	}
	ext := strings.ToLower(path.Ext(in.ImageName))
	if !imageExtensions[ext] {
		return "", "", fmt.Errorf("%w: unsupported image type %q", ErrInvalidReport, ext)
	}
	key := fmt.Sprintf("%s/%s%s", report.SubmittedBy, report.ID, ext)
	url, err := s.store.Put(ctx, key, in.Image)
	if err != nil {
		if errors.Is(err, objectstore.ErrDisabled) {
			return "", "", fmt.Errorf("%w: image uploads are disabled", ErrInvalidReport)
		}
		return "", "", fmt.Errorf("failed to upload image: %w", err)
	}
	return url, key, nil
}

func (s *ReportService) Get(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var r models.Report
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return &r, nil
}

// ListMine returns a user's own reports, newest first.
func (s *ReportService) ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Report, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Report{}).
		Where("submitted_by = ?", userID).
		Session(&gorm.Session{})
	return listReports(q, limit, offset)
}

// List is the moderation queue. An empty status lists everything.
func (s *ReportService) List(ctx context.Context, status models.ReportStatus, limit, offset int) ([]models.Report, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Report{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return listReports(q.Session(&gorm.Session{}), limit, offset)
}

func listReports(q *gorm.DB, limit, offset int) ([]models.Report, int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}
	var reports []models.Report
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&reports).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, total, nil
}
