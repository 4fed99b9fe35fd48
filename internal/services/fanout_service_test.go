package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/triggers"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newFanout(env *testEnv, pageSize int) *FanoutService {
	return NewFanoutService(env.db, env.hub, env.metrics, FanoutOptions{
		PageSize:     pageSize,
		Concurrency:  3,
		MaxAttempts:  2,
		RetryBackoff: time.Millisecond,
		Timeout:      time.Minute,
	})
}

func seedUsers(t *testing.T, env *testEnv, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = seedUser(t, env.db, uuid.NewString()[:8]+"@example.com").ID
	}
	return ids
}

func approvedChange(r *models.Report) triggers.ReportChange {
	before := *r
	before.Status = models.ReportPending
	after := *r
	after.Status = models.ReportApproved
	return triggers.ReportChange{Before: before, After: after}
}

func broadcastRecipients(t *testing.T, db *gorm.DB, reportID uuid.UUID) map[uuid.UUID]int {
	t.Helper()
	var notes []models.Notification
	require.NoError(t, db.Where("report_id = ? AND type = ?", reportID, models.NotificationReportBroadcast).Find(&notes).Error)
	out := make(map[uuid.UUID]int, len(notes))
	for _, n := range notes {
		out[n.UserID]++
	}
	return out
}

func TestFanout_Guard(t *testing.T) {
	tests := []struct {
		name   string
		before models.ReportStatus
		after  models.ReportStatus
		skip   bool
	}{
		{"pending to approved", models.ReportPending, models.ReportApproved, false},
		{"approved edit", models.ReportApproved, models.ReportApproved, true},
		{"pending to rejected", models.ReportPending, models.ReportRejected, true},
		{"new report", "", models.ReportPending, true},
		{"pending edit", models.ReportPending, models.ReportPending, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			seedUsers(t, env, 2)
			id := uuid.New()

			res, err := newFanout(env, 10).HandleReportChange(context.Background(), triggers.ReportChange{
				Before: models.Report{ID: id, RumorURL: rumor, Status: tt.before},
				After:  models.Report{ID: id, RumorURL: rumor, Status: tt.after, SubmittedBy: uuid.New()},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.skip, res.Skipped)

			want := int64(2)
			if tt.skip {
				want = 0
			}
			assert.Equal(t, want, countRows(t, env.db, &models.Notification{}, ""))
		})
	}
}

func TestFanout_ExcludesSubmitter(t *testing.T) {
	env := newTestEnv(t)
	users := seedUsers(t, env, 7)
	submitter := users[3]
	r := seedReport(t, env.db, rumor, baseTime, submitter)

	res, err := newFanout(env, 2).HandleReportChange(context.Background(), approvedChange(r))
	require.NoError(t, err)
	assert.Equal(t, 6, res.Recipients)
	assert.Equal(t, 6, res.Delivered)
	assert.Zero(t, res.Failed)

	got := broadcastRecipients(t, env.db, r.ID)
	assert.Len(t, got, 6)
	assert.NotContains(t, got, submitter)
	for id, n := range got {
		assert.Equal(t, 1, n, "recipient %s", id)
	}

	var n models.Notification
	require.NoError(t, env.db.First(&n, "user_id = ?", users[0]).Error)
	assert.False(t, n.Read)
	assert.Contains(t, n.Message, rumor)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.FanoutRuns.WithLabelValues("complete")))
}

func TestFanout_NoOtherUsers(t *testing.T) {
	env := newTestEnv(t)
	submitter := seedUsers(t, env, 1)[0]
	r := seedReport(t, env.db, rumor, baseTime, submitter)

	res, err := newFanout(env, 10).HandleReportChange(context.Background(), approvedChange(r))
	require.NoError(t, err)
	assert.Zero(t, res.Recipients)
	assert.False(t, res.Skipped)
	assert.Zero(t, countRows(t, env.db, &models.Notification{}, ""))
}

func TestFanout_PartialFailureIsRecordedAndRetried(t *testing.T) {
	env := newTestEnv(t)
	users := seedUsers(t, env, 5)
	submitter, unlucky := users[0], users[2]
	r := seedReport(t, env.db, rumor, baseTime, submitter)

	var failing atomic.Bool
	failing.Store(true)
	failNotificationWrites(t, env.db, &failing, func(id uuid.UUID) bool { return id == unlucky })

	svc := newFanout(env, 1)
	res, err := svc.HandleReportChange(context.Background(), approvedChange(r))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Recipients)
	assert.Equal(t, 3, res.Delivered)
	assert.Equal(t, 1, res.Failed)

	got := broadcastRecipients(t, env.db, r.ID)
	assert.NotContains(t, got, unlucky)
	assert.Len(t, got, 3)

	var f models.FanoutFailure
	require.NoError(t, env.db.First(&f, "user_id = ?", unlucky).Error)
	assert.Equal(t, r.ID, f.ReportID)
	assert.Equal(t, 2, f.Attempts)
	assert.Contains(t, f.LastError, "injected")
	assert.Nil(t, f.ResolvedAt)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.FanoutRuns.WithLabelValues("partial")))

	// Still failing: the row stays open and counts another attempt.
	rr, err := svc.RetryFailures(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RetryResult{Attempted: 1, Failed: 1}, *rr)

	failing.Store(false)
	rr, err = svc.RetryFailures(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RetryResult{Attempted: 1, Resolved: 1}, *rr)

	got = broadcastRecipients(t, env.db, r.ID)
	assert.Equal(t, 1, got[unlucky])
	require.NoError(t, env.db.First(&f, "id = ?", f.ID).Error)
	assert.NotNil(t, f.ResolvedAt)
	assert.Equal(t, 4, f.Attempts)

	open, total, err := svc.ListFailures(context.Background(), true, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Zero(t, total)
}

func TestFanout_TotalLossIsCounted(t *testing.T) {
	env := newTestEnv(t)
	users := seedUsers(t, env, 4)
	r := seedReport(t, env.db, rumor, baseTime, users[0])

	var failing atomic.Bool
	failing.Store(true)
	failNotificationWrites(t, env.db, &failing, func(uuid.UUID) bool { return true })

	res, err := newFanout(env, 2).HandleReportChange(context.Background(), approvedChange(r))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Recipients)
	assert.Zero(t, res.Delivered)
	assert.Equal(t, 3, res.Failed)

	assert.Equal(t, int64(3), countRows(t, env.db, &models.FanoutFailure{}, "resolved_at IS NULL"))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.FanoutRuns.WithLabelValues("lost")))
	assert.Equal(t, float64(3), testutil.ToFloat64(env.metrics.FanoutNotifications.WithLabelValues("failed")))
}

func TestFanout_RetryResolvesMissingReport(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&models.FanoutFailure{ReportID: uuid.New(), UserID: uuid.New(), Attempts: 1}).Error)

	res, err := newFanout(env, 10).RetryFailures(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Zero(t, countRows(t, env.db, &models.Notification{}, ""))
}

// Approval through the review service reaches the fan-out via the trigger
// dispatcher, once.
func TestFanout_ThroughDispatcher(t *testing.T) {
	env := newTestEnv(t)
	users := seedUsers(t, env, 4)
	r := seedReport(t, env.db, rumor, baseTime, users[1])

	d := triggers.NewDispatcher(4, 2, time.Minute, env.metrics)
	d.On("approval_broadcast", newFanout(env, 2).Handler())
	d.Start()
	defer d.Stop()

	reviews := NewReviewService(env.db, d, env.hub, env.metrics)
	_, err := reviews.Review(context.Background(), r.ID, approve("m"))
	require.NoError(t, err)
	_, err = reviews.UpdateAdminNotes(context.Background(), r.ID, "pinned", "m")
	require.NoError(t, err)
	d.Drain()

	got := broadcastRecipients(t, env.db, r.ID)
	assert.Len(t, got, 3)
	assert.NotContains(t, got, users[1])
	for _, n := range got {
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, models.FanoutRunComplete, loadRun(t, env.db, r.ID).Status)
}

func loadRun(t *testing.T, db *gorm.DB, reportID uuid.UUID) models.FanoutRun {
	t.Helper()
	var run models.FanoutRun
	require.NoError(t, db.First(&run, "report_id = ?", reportID).Error)
	return run
}

// The approval commits but its change never reaches the dispatcher, as when
// the process restarts right after the review. The pending run left by the
// approval is what brings the broadcast back.
func TestFanout_ResumesBroadcastNeverDispatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	users := seedUsers(t, env, 3)
	r := seedReport(t, env.db, rumor, baseTime, users[0])

	_, err := env.reviews.Review(ctx, r.ID, approve("m"))
	require.NoError(t, err)
	require.Len(t, env.publisher.Changes(), 1)
	assert.Empty(t, broadcastRecipients(t, env.db, r.ID))

	run := loadRun(t, env.db, r.ID)
	assert.Equal(t, models.FanoutRunPending, run.Status)
	assert.Zero(t, run.Attempts)

	f := newFanout(env, 10)
	resumed, err := f.ResumeStalled(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Zero(t, resumed, "runs younger than the stale threshold are left alone")

	resumed, err = f.ResumeStalled(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	got := broadcastRecipients(t, env.db, r.ID)
	assert.Len(t, got, 2)
	assert.NotContains(t, got, users[0])

	run = loadRun(t, env.db, r.ID)
	assert.Equal(t, models.FanoutRunComplete, run.Status)
	assert.Equal(t, 1, run.Attempts)

	resumed, err = f.ResumeStalled(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, resumed)
	assert.Len(t, broadcastRecipients(t, env.db, r.ID), 2)
}

func TestFanout_RetryLoopResumesStalledRuns(t *testing.T) {
	env := newTestEnv(t)
	users := seedUsers(t, env, 3)
	r := seedReport(t, env.db, rumor, baseTime, users[2])
	_, err := env.reviews.Review(context.Background(), r.ID, approve("m"))
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&models.FanoutRun{}).Where("report_id = ?", r.ID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-time.Hour)).Error)

	f := newFanout(env, 10)
	done := make(chan struct{})
	f.StartRetryLoop(5*time.Millisecond, 10, done)
	defer close(done)

	require.Eventually(t, func() bool {
		var run models.FanoutRun
		if err := env.db.First(&run, "report_id = ?", r.ID).Error; err != nil {
			return false
		}
		return run.Status == models.FanoutRunComplete
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, broadcastRecipients(t, env.db, r.ID), 2)
}

func TestFanout_ResumeSkipsReportNoLongerApproved(t *testing.T) {
	env := newTestEnv(t)
	seedUsers(t, env, 2)
	require.NoError(t, env.db.Create(&models.FanoutRun{
		ReportID: uuid.New(), Status: models.FanoutRunPending,
		CreatedAt: time.Now().UTC().Add(-time.Hour), UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}).Error)

	resumed, err := newFanout(env, 10).ResumeStalled(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, resumed)
	assert.Equal(t, int64(1), countRows(t, env.db, &models.FanoutRun{}, "status = ?", models.FanoutRunSkipped))
	assert.Zero(t, countRows(t, env.db, &models.Notification{}, ""))
}

// A recipient query failure is neither a delivered nor a lost run: it is
// labelled error and the run stays pending for the retry loop.
func TestFanout_EnumerationErrorKeepsRunPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	users := seedUsers(t, env, 3)
	r := seedReport(t, env.db, rumor, baseTime, users[0])
	_, err := env.reviews.Review(ctx, r.ID, approve("m"))
	require.NoError(t, err)

	var enabled atomic.Bool
	failTable(t, env.db, "users", "query", &enabled)
	enabled.Store(true)

	f := newFanout(env, 10)
	_, err = f.HandleReportChange(ctx, approvedChange(r))
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.FanoutRuns.WithLabelValues("error")))
	assert.Zero(t, testutil.ToFloat64(env.metrics.FanoutRuns.WithLabelValues("complete")))
	run := loadRun(t, env.db, r.ID)
	assert.Equal(t, models.FanoutRunPending, run.Status)
	assert.NotEmpty(t, run.LastError)

	enabled.Store(false)
	resumed, err := f.ResumeStalled(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	assert.Len(t, broadcastRecipients(t, env.db, r.ID), 2)
	assert.Equal(t, models.FanoutRunComplete, loadRun(t, env.db, r.ID).Status)
}

// When the notification lands but the failure row cannot be marked
// resolved, the row is reported as failed, not resolved.
func TestFanout_RetryCountsUnsavedResolutionAsFailed(t *testing.T) {
	env := newTestEnv(t)
	users := seedUsers(t, env, 2)
	r := seedReport(t, env.db, rumor, baseTime, users[0])
	require.NoError(t, env.db.Model(r).Update("status", models.ReportApproved).Error)
	require.NoError(t, env.db.Create(&models.FanoutFailure{ReportID: r.ID, UserID: users[1], Attempts: 2}).Error)

	var enabled atomic.Bool
	failTable(t, env.db, "fanout_failures", "update", &enabled)
	enabled.Store(true)

	res, err := newFanout(env, 10).RetryFailures(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, RetryResult{Attempted: 1, Resolved: 0, Failed: 1}, *res)
	assert.Equal(t, int64(1), countRows(t, env.db, &models.FanoutFailure{}, "resolved_at IS NULL"))
}
