package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/monitoring"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/realtime"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/triggers"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// defaultStaleAfter bounds how long a pending run may go untouched when no
// run timeout is configured.
const defaultStaleAfter = 10 * time.Minute

type FanoutOptions struct {
	PageSize     int
	Concurrency  int
	MaxAttempts  int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

func FanoutOptionsFromConfig(cfg *config.Config) FanoutOptions {
	return FanoutOptions{
		PageSize:     cfg.FanoutPageSize,
		Concurrency:  cfg.FanoutConcurrency,
		MaxAttempts:  cfg.FanoutMaxAttempts,
		RetryBackoff: cfg.FanoutRetryBackoff,
		Timeout:      cfg.FanoutTimeout,
	}
}

type FanoutResult struct {
	Recipients int
	Delivered  int
	Failed     int
	Skipped    bool
}

type RetryResult struct {
	Attempted int
	Resolved  int
	Failed    int
}

// FanoutService tells every user except the submitter that a report was
// approved. It runs from report change triggers and only trusts the
// snapshots it is given.
type FanoutService struct {
	db      *gorm.DB
	hub     realtime.Hub
	metrics *metrics.Metrics
	opts    FanoutOptions
}

func NewFanoutService(db *gorm.DB, hub realtime.Hub, m *metrics.Metrics, opts FanoutOptions) *FanoutService {
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &FanoutService{db: db, hub: hub, metrics: m, opts: opts}
}

// Handler adapts HandleReportChange to the trigger dispatcher.
func (s *FanoutService) Handler() triggers.Handler {
	return func(ctx context.Context, change triggers.ReportChange) error {
		_, err := s.HandleReportChange(ctx, change)
		return err
	}
}

// HandleReportChange broadcasts on the pending to approved edge only. Any
// other write, including edits to an already approved report, is skipped.
func (s *FanoutService) HandleReportChange(ctx context.Context, change triggers.ReportChange) (*FanoutResult, error) {
	if change.Before.Status == models.ReportApproved || change.After.Status != models.ReportApproved {
		s.metrics.FanoutRuns.WithLabelValues("skipped").Inc()
		return &FanoutResult{Skipped: true}, nil
	}
	report := change.After
	if err := s.startRun(ctx, report.ID); err != nil {
		slog.Warn("failed to mark broadcast run started", "report_id", report.ID.String(), "error", err)
	}
	return s.broadcast(ctx, &report)
}

func (s *FanoutService) broadcast(ctx context.Context, report *models.Report) (*FanoutResult, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	result := &FanoutResult{}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)

	var enumErr error
	last := uuid.Nil
	for {
		var ids []uuid.UUID
		err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id <> ? AND id > ?", report.SubmittedBy, last).
			Order("id ASC").
			Limit(s.opts.PageSize).
			Pluck("id", &ids).Error
		if err != nil {
			enumErr = fmt.Errorf("failed to enumerate recipients: %w", err)
			break
		}
		if len(ids) == 0 {
			break
		}
		last = ids[len(ids)-1]

		mu.Lock()
		result.Recipients += len(ids)
		mu.Unlock()

		page := ids
		g.Go(func() error {
			delivered, err := s.writePage(ctx, report, page)
			if err != nil {
				s.recordFailures(ctx, report, page, err)
				mu.Lock()
				result.Failed += len(page)
				mu.Unlock()
				return nil
			}
			s.push(ctx, delivered)
			mu.Lock()
			result.Delivered += len(delivered)
			mu.Unlock()
			return nil
		})

		if len(ids) < s.opts.PageSize {
			break
		}
	}
	_ = g.Wait()

	s.metrics.FanoutDuration.Observe(time.Since(start).Seconds())
	s.metrics.FanoutNotifications.WithLabelValues("delivered").Add(float64(result.Delivered))
	s.metrics.FanoutNotifications.WithLabelValues("failed").Add(float64(result.Failed))

	// An enumeration error leaves the run pending; the retry loop resumes it
	// once it goes stale.
	if enumErr != nil {
		s.metrics.FanoutRuns.WithLabelValues("error").Inc()
		slog.Error("approval broadcast interrupted",
			"report_id", report.ID.String(), "action", "fanout", "recipients", result.Recipients,
			"delivered", result.Delivered, "failed", result.Failed, "error", enumErr)
		s.finishRun(ctx, report.ID, models.FanoutRunPending, enumErr.Error())
		return result, enumErr
	}

	tags := map[string]string{"report_id": report.ID.String(), "action": "fanout"}
	switch {
	case result.Recipients > 0 && result.Delivered == 0:
		s.metrics.FanoutRuns.WithLabelValues("lost").Inc()
		monitoring.CaptureError(
			fmt.Errorf("broadcast delivered to none of %d recipients", result.Recipients),
			"approval broadcast lost", tags)
		s.finishRun(ctx, report.ID, models.FanoutRunLost, "")
	case result.Failed > 0:
		s.metrics.FanoutRuns.WithLabelValues("partial").Inc()
		slog.Warn("approval broadcast partially delivered",
			"report_id", report.ID.String(), "recipients", result.Recipients,
			"delivered", result.Delivered, "failed", result.Failed)
		s.finishRun(ctx, report.ID, models.FanoutRunPartial, "")
	default:
		s.metrics.FanoutRuns.WithLabelValues("complete").Inc()
		slog.Info("approval broadcast delivered",
			"report_id", report.ID.String(), "recipients", result.Recipients,
			"latency_ms", time.Since(start).Milliseconds())
		s.finishRun(ctx, report.ID, models.FanoutRunComplete, "")
	}
	return result, nil
}

// startRun counts an attempt and refreshes updated_at, which is what the
// retry loop measures staleness against.
func (s *FanoutService) startRun(ctx context.Context, reportID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.FanoutRun{}).
		Where("report_id = ? AND status = ?", reportID, models.FanoutRunPending).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"updated_at": time.Now().UTC(),
		}).Error
}

// finishRun records the outcome of a run. Failed recipients of partial and
// lost runs are tracked in fanout_failures, so only pending runs are ever
// resumed.
func (s *FanoutService) finishRun(ctx context.Context, reportID uuid.UUID, status models.FanoutRunStatus, lastError string) {
	err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.FanoutRun{}).
		Where("report_id = ?", reportID).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		monitoring.CaptureError(err, "failed to record broadcast run outcome",
			map[string]string{"report_id": reportID.String(), "action": "fanout"})
	}
}

// ResumeStalled re-runs broadcasts still pending staleAfter after their last
// attempt started: the process that owed them died, or the trigger never
// reached the handler. It returns the number of runs resumed.
func (s *FanoutService) ResumeStalled(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	db := s.db.WithContext(ctx)
	cutoff := time.Now().UTC().Add(-staleAfter)

	var runs []models.FanoutRun
	q := db.Where("status = ? AND updated_at <= ?", models.FanoutRunPending, cutoff).Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return 0, fmt.Errorf("failed to load stalled broadcast runs: %w", err)
	}

	resumed := 0
	for _, run := range runs {
		// Claim the run so two loops never resume the same broadcast.
		res := db.Model(&models.FanoutRun{}).
			Where("report_id = ? AND status = ? AND attempts = ?", run.ReportID, models.FanoutRunPending, run.Attempts).
			Updates(map[string]interface{}{
				"attempts":   gorm.Expr("attempts + ?", 1),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return resumed, fmt.Errorf("failed to claim broadcast run: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}

		var report models.Report
		err := db.First(&report, "id = ?", run.ReportID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return resumed, fmt.Errorf("failed to load report: %w", err)
		}
		if err != nil || report.Status != models.ReportApproved {
			s.finishRun(ctx, run.ReportID, models.FanoutRunSkipped, "report missing or not approved")
			continue
		}

		slog.Warn("resuming stalled approval broadcast",
			"report_id", run.ReportID.String(), "attempts", run.Attempts+1)
		if _, err := s.broadcast(ctx, &report); err != nil {
			return resumed, err
		}
		resumed++
	}
	return resumed, nil
}

// writePage inserts one page of broadcast notifications as a single batch,
// retrying the whole batch with linear backoff.
func (s *FanoutService) writePage(ctx context.Context, report *models.Report, ids []uuid.UUID) ([]models.Notification, error) {
	var err error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		notes := make([]models.Notification, len(ids))
		for i, id := range ids {
			notes[i] = broadcastNotification(report, id)
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&notes, len(notes)).Error
		})
		if err == nil {
			return notes, nil
		}
		if attempt == s.opts.MaxAttempts {
			break
		}
		s.metrics.FanoutNotifications.WithLabelValues("retried").Add(float64(len(ids)))
		select {
		case <-ctx.Done():
			return nil, errors.Join(err, ctx.Err())
		case <-time.After(s.opts.RetryBackoff * time.Duration(attempt)):
		}
	}
	return nil, err
}

func (s *FanoutService) recordFailures(ctx context.Context, report *models.Report, ids []uuid.UUID, cause error) {
	failures := make([]models.FanoutFailure, len(ids))
	for i, id := range ids {
		failures[i] = models.FanoutFailure{
			ReportID:  report.ID,
			UserID:    id,
			Attempts:  s.opts.MaxAttempts,
			LastError: cause.Error(),
		}
		slog.Warn("broadcast notification failed",
			"report_id", report.ID.String(), "user_id", id.String(), "error", cause)
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).CreateInBatches(&failures, 100).Error; err != nil {
		monitoring.CaptureError(err, "failed to record broadcast failures",
			map[string]string{"report_id": report.ID.String(), "action": "fanout"})
	}
}

// RetryFailures re-sends unresolved broadcast failures, oldest first. A
// recipient may end up with a duplicate if an earlier attempt landed after
// all.
func (s *FanoutService) RetryFailures(ctx context.Context, limit int) (*RetryResult, error) {
	db := s.db.WithContext(ctx)

	var failures []models.FanoutFailure
	q := db.Where("resolved_at IS NULL").Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&failures).Error; err != nil {
		return nil, fmt.Errorf("failed to load broadcast failures: %w", err)
	}

	result := &RetryResult{Attempted: len(failures)}
	reports := make(map[uuid.UUID]*models.Report)
	for i := range failures {
		f := &failures[i]
		report, ok := reports[f.ReportID]
		if !ok {
			var r models.Report
			err := db.First(&r, "id = ?", f.ReportID).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return result, fmt.Errorf("failed to load report: %w", err)
			}
			if err == nil {
				report = &r
			}
			reports[f.ReportID] = report
		}

		now := time.Now().UTC()
		if report == nil {
			if err := s.updateFailure(db, f, map[string]interface{}{
				"resolved_at": now,
				"last_error":  "report no longer exists",
			}); err != nil {
				result.Failed++
				continue
			}
			result.Resolved++
			continue
		}

		n := broadcastNotification(report, f.UserID)
		if err := db.Create(&n).Error; err != nil {
			result.Failed++
			slog.Warn("broadcast retry failed",
				"report_id", f.ReportID.String(), "user_id", f.UserID.String(), "error", err)
			_ = s.updateFailure(db, f, map[string]interface{}{
				"attempts":   gorm.Expr("attempts + ?", 1),
				"last_error": err.Error(),
			})
			continue
		}
		s.metrics.FanoutNotifications.WithLabelValues("delivered").Inc()
		s.push(ctx, []models.Notification{n})
		if err := s.updateFailure(db, f, map[string]interface{}{
			"attempts":    gorm.Expr("attempts + ?", 1),
			"resolved_at": now,
		}); err != nil {
			// The notification exists but the row stays unresolved, so the
			// next pass may send a duplicate.
			result.Failed++
			continue
		}
		result.Resolved++
	}

	if result.Attempted > 0 {
		slog.Info("broadcast retry completed",
			"attempted", result.Attempted, "resolved", result.Resolved, "failed", result.Failed)
	}
	return result, nil
}

func (s *FanoutService) updateFailure(db *gorm.DB, f *models.FanoutFailure, updates map[string]interface{}) error {
	if err := db.Model(f).Updates(updates).Error; err != nil {
		slog.Error("failed to update broadcast failure",
			"report_id", f.ReportID.String(), "user_id", f.UserID.String(), "action", "fanout_retry", "error", err)
		return err
	}
	return nil
}

// ListFailures pages broadcast failures, newest first.
func (s *FanoutService) ListFailures(ctx context.Context, unresolvedOnly bool, limit, offset int) ([]models.FanoutFailure, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&models.FanoutFailure{})
	if unresolvedOnly {
		q = q.Where("resolved_at IS NULL")
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count broadcast failures: %w", err)
	}
	var failures []models.FanoutFailure
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&failures).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list broadcast failures: %w", err)
	}
	return failures, total, nil
}

// StartRetryLoop resumes stalled broadcast runs and retries unresolved
// failures every interval until done is closed.
func (s *FanoutService) StartRetryLoop(interval time.Duration, limit int, done chan struct{}) {
	staleAfter := s.opts.Timeout
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.ResumeStalled(context.Background(), staleAfter, limit); err != nil {
					monitoring.CaptureError(err, "broadcast resume failed",
						map[string]string{"action": "fanout_resume"})
				}
				if _, err := s.RetryFailures(context.Background(), limit); err != nil {
					monitoring.CaptureError(err, "broadcast retry loop failed",
						map[string]string{"action": "fanout_retry"})
				}
			case <-done:
				return
			}
		}
	}()
}

func (s *FanoutService) push(ctx context.Context, notes []models.Notification) {
	if s.hub == nil {
		return
	}
	for _, n := range notes {
		if err := s.hub.Publish(ctx, n); err != nil {
			slog.Warn("realtime publish failed", "user_id", n.UserID.String(), "error", err)
			return
		}
	}
}
