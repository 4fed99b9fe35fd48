package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/scoring"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const rumor = "https://news.example.com/miracle-cure"

func approve(reviewer string) ReviewInput {
	return ReviewInput{Decision: models.ReportApproved, Reviewer: reviewer}
}

// Six reports on one URL, approved newest first. Points follow submission
// order, not approval order.
func TestReview_TieredScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	submitters := make([]uuid.UUID, 6)
	reports := make([]*models.Report, 6)
	for i := range reports {
		submitters[i] = uuid.New()
		reports[i] = seedReport(t, env.db, rumor, baseTime.Add(time.Duration(i)*time.Minute), submitters[i])
	}

	want := []int{50, 40, 30, 20, 15, 10}
	for i := len(reports) - 1; i >= 0; i-- {
		res, err := env.reviews.Review(ctx, reports[i].ID, approve("mod@example.com"))
		require.NoError(t, err)
		assert.Equal(t, want[i], res.PointsAwarded, "report %d", i)
		require.NotNil(t, res.Rank)
		assert.Equal(t, i, *res.Rank)
		assert.Equal(t, models.ReportApproved, res.Report.Status)
		require.NotNil(t, res.Report.PointsAwarded)
		assert.Equal(t, want[i], *res.Report.PointsAwarded)
	}

	for i, id := range submitters {
		u := loadUser(t, env.db, id)
		assert.Equal(t, want[i], u.TotalPoints)
		assert.Equal(t, 1, u.TotalReports)
	}
	assert.Equal(t, int64(6), countRows(t, env.db, &models.PointsLedgerEntry{}, ""))
	assert.Equal(t, float64(165), testutil.ToFloat64(env.metrics.PointsAwarded))
}

func TestReview_Reject(t *testing.T) {
	env := newTestEnv(t)
	submitter := uuid.New()
	r := seedReport(t, env.db, rumor, baseTime, submitter)

	res, err := env.reviews.Review(context.Background(), r.ID, ReviewInput{
		Decision: models.ReportRejected, Reviewer: "mod@example.com", Notes: "satire site",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportRejected, res.Report.Status)
	assert.Nil(t, res.Report.PointsAwarded)
	assert.Nil(t, res.Rank)
	require.NotNil(t, res.Report.AdminNotes)
	assert.Equal(t, "satire site", *res.Report.AdminNotes)
	require.NotNil(t, res.Report.ReviewedBy)
	assert.Equal(t, "mod@example.com", *res.Report.ReviewedBy)
	assert.NotNil(t, res.Report.ReviewedAt)

	assert.Zero(t, countRows(t, env.db, &models.PointsLedgerEntry{}, ""))
	assert.Zero(t, countRows(t, env.db, &models.User{}, ""))

	var n models.Notification
	require.NoError(t, env.db.First(&n, "user_id = ?", submitter).Error)
	assert.Equal(t, models.NotificationReportRejected, n.Type)
	assert.Zero(t, n.Points)
	assert.Contains(t, n.Message, "satire site")
	require.NotNil(t, n.ReportID)
	assert.Equal(t, r.ID, *n.ReportID)
}

func TestReview_TerminalStates(t *testing.T) {
	for _, first := range []models.ReportStatus{models.ReportApproved, models.ReportRejected} {
		t.Run(string(first), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			submitter := uuid.New()
			r := seedReport(t, env.db, rumor, baseTime, submitter)

			_, err := env.reviews.Review(ctx, r.ID, ReviewInput{Decision: first, Reviewer: "a"})
			require.NoError(t, err)

			ledger := countRows(t, env.db, &models.PointsLedgerEntry{}, "")
			notes := countRows(t, env.db, &models.Notification{}, "")
			users := countRows(t, env.db, &models.User{}, "")

			for _, again := range []models.ReportStatus{models.ReportApproved, models.ReportRejected} {
				_, err := env.reviews.Review(ctx, r.ID, ReviewInput{Decision: again, Reviewer: "b"})
				assert.ErrorIs(t, err, ErrAlreadyReviewed)
			}

			assert.Equal(t, ledger, countRows(t, env.db, &models.PointsLedgerEntry{}, ""))
			assert.Equal(t, notes, countRows(t, env.db, &models.Notification{}, ""))
			assert.Equal(t, users, countRows(t, env.db, &models.User{}, ""))

			var got models.Report
			require.NoError(t, env.db.First(&got, "id = ?", r.ID).Error)
			assert.Equal(t, first, got.Status)
			assert.Equal(t, "a", *got.ReviewedBy)
			assert.Len(t, env.publisher.Changes(), 1)
		})
	}
}

func TestReview_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	r := seedReport(t, env.db, rumor, baseTime, uuid.New())

	_, err := env.reviews.Review(context.Background(), r.ID, ReviewInput{Decision: models.ReportPending})
	assert.ErrorIs(t, err, ErrInvalidDecision)

	_, err = env.reviews.Review(context.Background(), uuid.New(), approve("a"))
	assert.ErrorIs(t, err, ErrReportNotFound)

	var got models.Report
	require.NoError(t, env.db.First(&got, "id = ?", r.ID).Error)
	assert.Equal(t, models.ReportPending, got.Status)
	assert.Empty(t, env.publisher.Changes())
}

func TestReview_ConcurrentApprovalsCreditOnce(t *testing.T) {
	env := newTestEnv(t)
	submitter := uuid.New()
	r := seedReport(t, env.db, rumor, baseTime, submitter)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.reviews.Review(context.Background(), r.ID, approve("mod"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyReviewed)
		}
	}
	assert.Equal(t, 1, succeeded)

	u := loadUser(t, env.db, submitter)
	assert.Equal(t, 50, u.TotalPoints)
	assert.Equal(t, 1, u.TotalReports)
	assert.Equal(t, int64(1), countRows(t, env.db, &models.PointsLedgerEntry{}, ""))
	assert.Equal(t, int64(1), countRows(t, env.db, &models.Notification{}, "user_id = ?", submitter))
}

func TestReview_CreditsExistingUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := seedUser(t, env.db, "regular@example.com")

	first := seedReport(t, env.db, "https://a.example.com/x", baseTime, u.ID)
	second := seedReport(t, env.db, "https://b.example.com/y", baseTime, u.ID)

	_, err := env.reviews.Review(ctx, first.ID, approve("m"))
	require.NoError(t, err)
	_, err = env.reviews.Review(ctx, second.ID, approve("m"))
	require.NoError(t, err)

	got := loadUser(t, env.db, u.ID)
	assert.Equal(t, 100, got.TotalPoints)
	assert.Equal(t, 2, got.TotalReports)
	assert.Equal(t, "regular@example.com", got.Email)

	total, err := NewUserService(env.db).LedgerTotal(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, got.TotalPoints, total)
}

func TestReview_LazilyCreatesSubmitter(t *testing.T) {
	env := newTestEnv(t)
	submitter := uuid.New()
	r := seedReport(t, env.db, rumor, baseTime, submitter)

	_, err := env.reviews.Review(context.Background(), r.ID, approve("m"))
	require.NoError(t, err)

	u := loadUser(t, env.db, submitter)
	assert.Equal(t, r.SubmittedByEmail, u.Email)
	assert.Equal(t, r.SubmittedByName, u.Name)
	assert.Equal(t, 50, u.TotalPoints)
	assert.Equal(t, 1, u.TotalReports)
}

// Two approvals for the same submitter, who has no account row yet, must
// both land on one row.
func TestReview_ConcurrentFirstCreditsForNewSubmitter(t *testing.T) {
	env := newTestEnv(t)
	submitter := uuid.New()
	first := seedReport(t, env.db, rumor, baseTime, submitter)
	second := seedReport(t, env.db, rumor, baseTime.Add(time.Minute), submitter)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, r := range []*models.Report{first, second} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = env.reviews.Review(context.Background(), id, approve("mod"))
		}(i, r.ID)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, int64(1), countRows(t, env.db, &models.User{}, "id = ?", submitter))
	u := loadUser(t, env.db, submitter)
	assert.Equal(t, 90, u.TotalPoints)
	assert.Equal(t, 2, u.TotalReports)
}

func TestCreditUser_InsertThenIncrement(t *testing.T) {
	env := newTestEnv(t)
	submitter := uuid.New()
	r := seedReport(t, env.db, rumor, baseTime, submitter)

	err := env.db.Transaction(func(tx *gorm.DB) error {
		if err := creditUser(tx, r, 30); err != nil {
			return err
		}
		return creditUser(tx, r, 15)
	})
	require.NoError(t, err)

	u := loadUser(t, env.db, submitter)
	assert.Equal(t, 45, u.TotalPoints)
	assert.Equal(t, 2, u.TotalReports)
	assert.Equal(t, r.SubmittedByEmail, u.Email)
}

// Points depend on the report's position by submission time, whatever order
// the moderator works through the queue in.
func TestReview_OutOfOrderApprovals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reports := make([]*models.Report, 6)
	for i := range reports {
		reports[i] = seedReport(t, env.db, rumor, baseTime.Add(time.Duration(i)*time.Minute), uuid.New())
	}

	steps := []struct {
		index  int
		points int
	}{
		{2, 30},
		{0, 50},
		{4, 15},
		{5, 10},
	}
	for _, step := range steps {
		res, err := env.reviews.Review(ctx, reports[step.index].ID, approve("m"))
		require.NoError(t, err)
		assert.Equal(t, step.points, res.PointsAwarded, "report %d", step.index)
		require.NotNil(t, res.Rank)
		assert.Equal(t, step.index, *res.Rank)
	}

	for _, i := range []int{1, 3} {
		var r models.Report
		require.NoError(t, env.db.First(&r, "id = ?", reports[i].ID).Error)
		assert.Equal(t, models.ReportPending, r.Status)
		assert.Nil(t, r.PointsAwarded)
	}
	assert.Equal(t, float64(105), testutil.ToFloat64(env.metrics.PointsAwarded))
}

func TestReview_EmptyURLRanksFirst(t *testing.T) {
	env := newTestEnv(t)
	seedReport(t, env.db, "", baseTime, uuid.New())
	r := seedReport(t, env.db, "", baseTime.Add(time.Hour), uuid.New())

	res, err := env.reviews.Review(context.Background(), r.ID, approve("m"))
	require.NoError(t, err)
	assert.Equal(t, 0, *res.Rank)
	assert.Equal(t, 50, res.PointsAwarded)

	var entry models.PointsLedgerEntry
	require.NoError(t, env.db.First(&entry, "report_id = ?", r.ID).Error)
	assert.Nil(t, entry.RumorURL)
}

func TestReview_TimestampTieBrokenByID(t *testing.T) {
	env := newTestEnv(t)
	a := seedReport(t, env.db, rumor, baseTime, uuid.New())
	b := seedReport(t, env.db, rumor, baseTime, uuid.New())

	ids := []string{a.ID.String(), b.ID.String()}
	sort.Strings(ids)
	later := b
	if ids[1] == a.ID.String() {
		later = a
	}

	for i := 0; i < 3; i++ {
		p, err := env.reviews.Preview(context.Background(), later.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Rank)
		assert.Equal(t, 2, p.CompetingReports)
	}
}

func TestReview_RankCountsEveryStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rejected := seedReport(t, env.db, rumor, baseTime, uuid.New())
	r := seedReport(t, env.db, rumor, baseTime.Add(time.Second), uuid.New())

	_, err := env.reviews.Review(ctx, rejected.ID, ReviewInput{Decision: models.ReportRejected})
	require.NoError(t, err)

	res, err := env.reviews.Review(ctx, r.ID, approve("m"))
	require.NoError(t, err)
	assert.Equal(t, 1, *res.Rank)
	assert.Equal(t, 40, res.PointsAwarded)
}

func TestReview_UsesCurrentConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.scoring.SaveCurrent(ctx, scoring.Config{Tiers: []int{7}, DefaultPoints: 2}, "ops")
	require.NoError(t, err)

	first := seedReport(t, env.db, rumor, baseTime, uuid.New())
	second := seedReport(t, env.db, rumor, baseTime.Add(time.Second), uuid.New())

	res, err := env.reviews.Review(ctx, second.ID, approve("m"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.PointsAwarded)

	res, err = env.reviews.Review(ctx, first.ID, approve("m"))
	require.NoError(t, err)
	assert.Equal(t, 7, res.PointsAwarded)
}

func TestReview_PreviewMatchesApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedReport(t, env.db, rumor, baseTime.Add(time.Duration(i)*time.Second), uuid.New())
	}
	r := seedReport(t, env.db, rumor, baseTime.Add(time.Minute), uuid.New())

	p, err := env.reviews.Preview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportPending, p.Status)
	assert.Equal(t, 3, p.Rank)
	assert.Equal(t, 4, p.CompetingReports)
	assert.Equal(t, scoring.DefaultConfig(), p.Config)

	assert.Empty(t, env.publisher.Changes())
	assert.Zero(t, countRows(t, env.db, &models.Notification{}, ""))

	res, err := env.reviews.Review(ctx, r.ID, approve("m"))
	require.NoError(t, err)
	assert.Equal(t, p.Points, res.PointsAwarded)
	assert.Equal(t, p.Rank, *res.Rank)

	_, err = env.reviews.Preview(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestReview_PublishesChangeAndPushesNotification(t *testing.T) {
	env := newTestEnv(t)
	submitter := uuid.New()
	r := seedReport(t, env.db, rumor, baseTime, submitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, unsubscribe, err := env.hub.Subscribe(ctx, submitter)
	require.NoError(t, err)
	defer unsubscribe()

	_, err = env.reviews.Review(context.Background(), r.ID, approve("m"))
	require.NoError(t, err)

	changes := env.publisher.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, models.ReportPending, changes[0].Before.Status)
	assert.Equal(t, models.ReportApproved, changes[0].After.Status)
	assert.Equal(t, r.ID, changes[0].After.ID)

	select {
	case n := <-events:
		assert.Equal(t, models.NotificationReportApproved, n.Type)
		assert.Equal(t, 50, n.Points)
	case <-time.After(time.Second):
		t.Fatal("no realtime notification for the submitter")
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Reviews.WithLabelValues("approved", "ok")))
}

func TestReview_UpdateAdminNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := seedReport(t, env.db, rumor, baseTime, uuid.New())
	_, err := env.reviews.Review(ctx, r.ID, approve("m"))
	require.NoError(t, err)

	got, err := env.reviews.UpdateAdminNotes(ctx, r.ID, "source confirmed", "m")
	require.NoError(t, err)
	assert.Equal(t, models.ReportApproved, got.Status)
	require.NotNil(t, got.AdminNotes)
	assert.Equal(t, "source confirmed", *got.AdminNotes)

	changes := env.publisher.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, models.ReportApproved, changes[1].Before.Status)
	assert.Equal(t, models.ReportApproved, changes[1].After.Status)

	_, err = env.reviews.UpdateAdminNotes(ctx, uuid.New(), "x", "m")
	assert.ErrorIs(t, err, ErrReportNotFound)
}
