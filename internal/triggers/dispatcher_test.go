package triggers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func change(status models.ReportStatus) ReportChange {
	id := uuid.New()
	return ReportChange{
		Before: models.Report{ID: id, Status: models.ReportPending},
		After:  models.Report{ID: id, Status: status},
	}
}

func TestDispatcher_RunsEveryHandler(t *testing.T) {
	d := NewDispatcher(8, 2, time.Second, metrics.New(prometheus.NewRegistry()))

	var mu sync.Mutex
	seen := map[string]int{}
	d.On("a", func(_ context.Context, c ReportChange) error {
		mu.Lock()
		seen["a"]++
		mu.Unlock()
		return nil
	})
	d.On("b", func(_ context.Context, c ReportChange) error {
		mu.Lock()
		seen["b"]++
		mu.Unlock()
		return errors.New("handler b fails")
	})
	d.Start()

	for i := 0; i < 5; i++ {
		d.Publish(change(models.ReportApproved))
	}
	d.Stop()

	assert.Equal(t, 5, seen["a"])
	assert.Equal(t, 5, seen["b"])
}

func TestDispatcher_PublishDoesNotBlockWhenQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1, time.Second, metrics.New(prometheus.NewRegistry()))

	release := make(chan struct{})
	var handled atomic.Int32
	d.On("slow", func(_ context.Context, c ReportChange) error {
		<-release
		handled.Add(1)
		return nil
	})
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish(change(models.ReportApproved))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(release)
	d.Stop()
	assert.Equal(t, int32(10), handled.Load())
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	d := NewDispatcher(4, 1, time.Second, metrics.New(prometheus.NewRegistry()))

	var after atomic.Int32
	d.On("panics", func(_ context.Context, c ReportChange) error {
		panic("boom")
	})
	d.On("after", func(_ context.Context, c ReportChange) error {
		after.Add(1)
		return nil
	})
	d.Start()

	d.Publish(change(models.ReportRejected))
	d.Stop()

	assert.Equal(t, int32(1), after.Load())
}
