package services

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/database/dbtest"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/realtime"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/triggers"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []triggers.ReportChange
}

func (p *recordingPublisher) Publish(c triggers.ReportChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
}

func (p *recordingPublisher) Changes() []triggers.ReportChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]triggers.ReportChange, len(p.changes))
	copy(out, p.changes)
	return out
}

type testEnv struct {
	db        *gorm.DB
	metrics   *metrics.Metrics
	publisher *recordingPublisher
	hub       *realtime.MemoryHub
	reviews   *ReviewService
	scoring   *ScoringService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.New(t)
	m := metrics.New(prometheus.NewRegistry())
	pub := &recordingPublisher{}
	hub := realtime.NewMemoryHub()
	t.Cleanup(func() { hub.Close() })
	return &testEnv{
		db:        db,
		metrics:   m,
		publisher: pub,
		hub:       hub,
		reviews:   NewReviewService(db, pub, hub, m),
		scoring:   NewScoringService(db),
	}
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: email}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedReport(t *testing.T, db *gorm.DB, url string, createdAt time.Time, submitter uuid.UUID) *models.Report {
	t.Helper()
	r := &models.Report{
		RumorURL:         url,
		Description:      "looks fabricated to me",
		SubmittedBy:      submitter,
		SubmittedByEmail: submitter.String()[:8] + "@example.com",
		SubmittedByName:  "reporter " + submitter.String()[:8],
		CreatedAt:        createdAt,
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func loadUser(t *testing.T, db *gorm.DB, id uuid.UUID) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return u
}

// failNotificationWrites makes every insert into notifications fail while
// enabled is true and the batch contains a recipient matched by target.
func failNotificationWrites(t *testing.T, db *gorm.DB, enabled *atomic.Bool, target func(uuid.UUID) bool) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_notifications", func(tx *gorm.DB) {
		if !enabled.Load() || tx.Statement.Table != "notifications" {
			return
		}
		hit := false
		visit := func(v reflect.Value) {
			v = reflect.Indirect(v)
			if v.Kind() != reflect.Struct {
				return
			}
			if id, ok := v.FieldByName("UserID").Interface().(uuid.UUID); ok && target(id) {
				hit = true
			}
		}
		rv := reflect.Indirect(tx.Statement.ReflectValue)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				visit(rv.Index(i))
			}
		case reflect.Struct:
			visit(rv)
		}
		if hit {
			tx.AddError(errors.New("injected notification write failure"))
		}
	})
	require.NoError(t, err)
}

// failTable makes every query or update ("query", "update") against table
// fail while enabled is true.
func failTable(t *testing.T, db *gorm.DB, table, op string, enabled *atomic.Bool) {
	t.Helper()
	fail := func(tx *gorm.DB) {
		if enabled.Load() && tx.Statement.Table == table {
			tx.AddError(errors.New("injected " + op + " failure on " + table))
		}
	}
	name := "test:fail_" + op + "_" + table
	var err error
	switch op {
	case "query":
		err = db.Callback().Query().Before("gorm:query").Register(name, fail)
	case "update":
		err = db.Callback().Update().Before("gorm:update").Register(name, fail)
	default:
		t.Fatalf("unknown op %q", op)
	}
	require.NoError(t, err)
}
